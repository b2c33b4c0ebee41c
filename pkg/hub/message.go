// Package hub is a channel-based websocket fan-out.
//
// The animation server runs one hub for its frame stream: every attached pose
// sink receives every frame, and a sink that falls behind is disconnected
// instead of slowing the tick loop.
package hub

import "github.com/teslashibe/go-asl/pkg/protocol"

// MessageType selects the websocket frame type used for a Message.
type MessageType int

const (
	// JSONMessage goes out as a text frame.
	JSONMessage MessageType = iota
	// BinaryMessage goes out as a binary frame.
	BinaryMessage
)

// Message is one payload queued for every subscriber.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps already encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// Encode turns a protocol message into a hub message.
func Encode(msg *protocol.Message) (Message, error) {
	data, err := msg.Bytes()
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}

// BroadcastProtocol encodes msg and broadcasts it.
func (h *Hub) BroadcastProtocol(msg *protocol.Message) error {
	m, err := Encode(msg)
	if err != nil {
		return err
	}
	h.Broadcast(m)
	return nil
}
