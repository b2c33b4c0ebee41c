// Package protocol defines the WebSocket message types exchanged between the
// animation server and remote pose sinks or controllers.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-asl/pkg/gesture"
	"github.com/teslashibe/go-asl/pkg/motion"
)

// MessageType names the payload carried in Data.
type MessageType string

const (
	// Server → client messages
	TypeFrame    MessageType = "frame"    // Composed joint transforms for one tick
	TypeComplete MessageType = "complete" // A clip finished playing
	TypeStatus   MessageType = "status"   // Playback status
	TypeClips    MessageType = "clips"    // Clip catalog

	// Client → server messages
	TypePlay MessageType = "play" // Start a clip
	TypeStop MessageType = "stop" // Abandon the current clip

	// Replies
	TypeAck   MessageType = "ack"   // Command accepted
	TypeError MessageType = "error" // Command rejected

	// Bidirectional
	TypePing MessageType = "ping" // Latency probe
	TypePong MessageType = "pong" // Probe reply
)

// Message is the envelope every websocket payload travels in.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	ID        string          `json:"id,omitempty"` // Correlates a reply with its request
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage encodes data into a message stamped with the current time.
// A nil data leaves Data empty.
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// WithID sets the correlation id and returns m.
func (m *Message) WithID(id string) *Message {
	m.ID = id
	return m
}

// ParseData decodes Data into v. An empty Data leaves v untouched.
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes encodes the envelope.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage decodes an envelope and rejects one without a type.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// FrameData is one composed animation frame.
type FrameData = motion.Frame

// CompleteData reports a finished playthrough.
type CompleteData = gesture.Completion

// StatusData is the playback status.
type StatusData = gesture.Status

// ClipInfo describes one clip in the catalog.
type ClipInfo struct {
	Name      string            `json:"name"`
	Label     string            `json:"label"`
	Duration  float64           `json:"duration"`
	Keyframes int               `json:"keyframes"`
	Joints    []gesture.JointID `json:"joints"`
}

// ClipsData is the clip catalog.
type ClipsData struct {
	Clips []ClipInfo `json:"clips"`
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// PlayCommand starts a clip by name.
type PlayCommand struct {
	Clip string `json:"clip"`
}

// =============================================================================
// Reply Message Types
// =============================================================================

// AckData confirms a command.
type AckData struct {
	Command MessageType `json:"command"`
	PlayID  string      `json:"play_id,omitempty"`
	Stopped bool        `json:"stopped,omitempty"`
}

// ErrorData reports why a command failed.
type ErrorData struct {
	Command MessageType `json:"command,omitempty"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

// Error codes carried in ErrorData.
const (
	CodeUnknownClip = "unknown_clip"
	CodeBusy        = "busy"
	CodeBadRequest  = "bad_request"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal"
)

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData carries the sender's clock for latency measurement.
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData echoes a ping with the responder's clock.
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
