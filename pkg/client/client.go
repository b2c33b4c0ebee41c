// Package client connects to an animation server as a remote pose sink and
// controller.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-asl/internal/httpc"
	"github.com/teslashibe/go-asl/internal/log"
	"github.com/teslashibe/go-asl/pkg/gesture"
	"github.com/teslashibe/go-asl/pkg/motion"
	"github.com/teslashibe/go-asl/pkg/protocol"
)

// DefaultTimeout bounds a control request when the context has no deadline.
const DefaultTimeout = 10 * time.Second

// ErrClosed is returned after Close.
var ErrClosed = errors.New("client closed")

// CommandError is a command rejected by the server.
type CommandError struct {
	Command protocol.MessageType
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s rejected (%s): %s", e.Command, e.Code, e.Message)
}

// Is lets callers match server rejections against engine errors.
func (e *CommandError) Is(target error) bool {
	switch e.Code {
	case protocol.CodeUnknownClip:
		return target == gesture.ErrUnknownClip
	case protocol.CodeBusy:
		return target == gesture.ErrBusy
	}
	return false
}

// Event is one message from the frame stream. Exactly one field is set.
type Event struct {
	Frame    *motion.Frame
	Complete *gesture.Completion
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Client holds a control connection to an animation server.
type Client struct {
	base   string
	http   string
	dialer websocket.Dialer
	logger *slog.Logger

	ctrl   *websocket.Conn
	ctrlMu sync.Mutex
	closed bool

	seq atomic.Uint64
}

// Dial opens a control session with the server at baseURL
// (http://, https://, ws:// or wss://).
func Dial(ctx context.Context, baseURL string, opts ...Option) (*Client, error) {
	base, err := wsBase(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		base: base,
		http: "http" + strings.TrimPrefix(base, "ws"),
		dialer: websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.For("client")
	}

	conn, _, err := c.dialer.DialContext(ctx, base+"/ws/control", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", baseURL, err)
	}
	c.ctrl = conn
	c.logger.Debug("control session open", "url", base)
	return c, nil
}

// wsBase converts a server URL to a websocket base without trailing slash.
func wsBase(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url %q: unsupported scheme %s", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server url %q: missing host", raw)
	}
	return strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/"), nil
}

// Play starts a clip and returns its playthrough id.
func (c *Client) Play(ctx context.Context, name string) (string, error) {
	msg, err := protocol.NewPlayMessage(name)
	if err != nil {
		return "", err
	}
	reply, err := c.request(ctx, msg)
	if err != nil {
		return "", err
	}
	ack, err := reply.GetAckData()
	if err != nil {
		return "", err
	}
	return ack.PlayID, nil
}

// Stop abandons the running clip and reports whether one was running.
func (c *Client) Stop(ctx context.Context) (bool, error) {
	msg, err := protocol.NewStopMessage()
	if err != nil {
		return false, err
	}
	reply, err := c.request(ctx, msg)
	if err != nil {
		return false, err
	}
	ack, err := reply.GetAckData()
	if err != nil {
		return false, err
	}
	return ack.Stopped, nil
}

// Clips fetches the clip catalog.
func (c *Client) Clips(ctx context.Context) ([]protocol.ClipInfo, error) {
	msg, err := protocol.NewMessage(protocol.TypeClips, nil)
	if err != nil {
		return nil, err
	}
	reply, err := c.request(ctx, msg)
	if err != nil {
		return nil, err
	}
	data, err := reply.GetClipsData()
	if err != nil {
		return nil, err
	}
	return data.Clips, nil
}

// Status fetches the playback status.
func (c *Client) Status(ctx context.Context) (gesture.Status, error) {
	msg, err := protocol.NewMessage(protocol.TypeStatus, nil)
	if err != nil {
		return gesture.Status{}, err
	}
	reply, err := c.request(ctx, msg)
	if err != nil {
		return gesture.Status{}, err
	}
	st, err := reply.GetStatusData()
	if err != nil {
		return gesture.Status{}, err
	}
	return *st, nil
}

// Pose fetches the most recent frame over the REST API.
func (c *Client) Pose(ctx context.Context) (motion.Frame, error) {
	var f motion.Frame
	if err := httpc.GetJSON(ctx, httpc.Client, c.http+"/api/pose", &f); err != nil {
		return motion.Frame{}, fmt.Errorf("fetch pose: %w", err)
	}
	return f, nil
}

// Ping measures the control round trip.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	msg, err := protocol.NewPingMessage(strconv.FormatInt(start.UnixNano(), 36))
	if err != nil {
		return 0, err
	}
	if _, err := c.request(ctx, msg); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// request sends msg and waits for the reply carrying its id.
// A failed write or read closes the control session; later calls return
// ErrClosed.
func (c *Client) request(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	id := strconv.FormatUint(c.seq.Add(1), 10)
	data, err := msg.WithID(id).Bytes()
	if err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	c.ctrl.SetWriteDeadline(deadline)
	c.ctrl.SetReadDeadline(deadline)

	// Unblock the read if ctx is canceled first.
	stop := context.AfterFunc(ctx, func() {
		c.ctrl.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := c.ctrl.WriteMessage(websocket.TextMessage, data); err != nil {
		c.abandon()
		return nil, fmt.Errorf("send %s: %w", msg.Type, err)
	}

	for {
		_, raw, err := c.ctrl.ReadMessage()
		if err != nil {
			c.abandon()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read %s reply: %w", msg.Type, err)
		}
		reply, err := protocol.ParseMessage(raw)
		if err != nil {
			c.logger.Warn("ignoring malformed reply", "error", err)
			continue
		}
		if reply.ID != id {
			continue
		}
		if reply.Type == protocol.TypeError {
			e, err := reply.GetErrorData()
			if err != nil {
				return nil, err
			}
			return nil, &CommandError{Command: msg.Type, Code: e.Code, Message: e.Message}
		}
		return reply, nil
	}
}

// abandon closes a control connection that can no longer be read.
// Caller holds ctrlMu.
func (c *Client) abandon() {
	c.closed = true
	c.ctrl.Close()
}

// Frames opens the frame stream. The channel is closed when ctx is done or
// the server goes away.
func (c *Client) Frames(ctx context.Context) (<-chan Event, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.base+"/ws/frames", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame stream: %w", err)
	}

	out := make(chan Event, 64)
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})

	go func() {
		defer close(out)
		defer stop()
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Debug("frame stream ended", "error", err)
				}
				return
			}

			msg, err := protocol.ParseMessage(data)
			if err != nil {
				c.logger.Warn("ignoring malformed message", "error", err)
				continue
			}

			var ev Event
			switch msg.Type {
			case protocol.TypeFrame:
				ev.Frame, err = msg.GetFrameData()
			case protocol.TypeComplete:
				ev.Complete, err = msg.GetCompleteData()
			default:
				continue
			}
			if err != nil {
				c.logger.Warn("ignoring undecodable message", "type", msg.Type, "error", err)
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close ends the control session.
func (c *Client) Close() error {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.ctrl.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ctrl.Close()
}
