package protocol

import (
	"errors"
	"time"

	"github.com/teslashibe/go-asl/pkg/gesture"
	"github.com/teslashibe/go-asl/pkg/motion"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message
func NewFrameMessage(f motion.Frame) (*Message, error) {
	return NewMessage(TypeFrame, f)
}

// NewCompleteMessage creates a completion message
func NewCompleteMessage(c gesture.Completion) (*Message, error) {
	return NewMessage(TypeComplete, c)
}

// NewStatusMessage creates a playback status message
func NewStatusMessage(s gesture.Status) (*Message, error) {
	return NewMessage(TypeStatus, s)
}

// NewClipsMessage creates a catalog message from a library
func NewClipsMessage(lib *gesture.Library) (*Message, error) {
	return NewMessage(TypeClips, CatalogOf(lib))
}

// CatalogOf describes every clip in lib.
func CatalogOf(lib *gesture.Library) ClipsData {
	clips := lib.Clips()
	out := ClipsData{Clips: make([]ClipInfo, 0, len(clips))}
	for _, c := range clips {
		out.Clips = append(out.Clips, ClipInfo{
			Name:      c.Name(),
			Label:     c.Label(),
			Duration:  c.Duration(),
			Keyframes: c.Len(),
			Joints:    c.Joints(),
		})
	}
	return out
}

// NewPlayMessage creates a play command message
func NewPlayMessage(clip string) (*Message, error) {
	return NewMessage(TypePlay, PlayCommand{Clip: clip})
}

// NewStopMessage creates a stop command message
func NewStopMessage() (*Message, error) {
	return NewMessage(TypeStop, nil)
}

// NewAckMessage creates an acknowledgement
func NewAckMessage(ack AckData) (*Message, error) {
	return NewMessage(TypeAck, ack)
}

// NewErrorMessage creates an error reply
func NewErrorMessage(command MessageType, code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{
		Command: command,
		Code:    code,
		Message: message,
	})
}

// ErrorCode maps an engine error to a wire error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, gesture.ErrUnknownClip):
		return CodeUnknownClip
	case errors.Is(err, gesture.ErrBusy):
		return CodeBusy
	default:
		return CodeBadRequest
	}
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCompleteData extracts completion data from a message
func (m *Message) GetCompleteData() (*CompleteData, error) {
	var data CompleteData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatusData extracts playback status from a message
func (m *Message) GetStatusData() (*StatusData, error) {
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetClipsData extracts the clip catalog from a message
func (m *Message) GetClipsData() (*ClipsData, error) {
	var data ClipsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPlayCommand extracts a play command from a message
func (m *Message) GetPlayCommand() (*PlayCommand, error) {
	var data PlayCommand
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	if data.Clip == "" {
		return nil, errors.New("play command has no clip")
	}
	return &data, nil
}

// GetAckData extracts an acknowledgement from a message
func (m *Message) GetAckData() (*AckData, error) {
	var data AckData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts an error reply from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
