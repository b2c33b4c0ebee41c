package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	// Deadline for a single write, including pings.
	writeTimeout = 10 * time.Second

	// A subscriber that sends no pong within this window is considered gone.
	idleTimeout = 60 * time.Second

	// Pings go out often enough to land inside idleTimeout.
	keepalive = idleTimeout * 9 / 10

	// Pose sinks only ever send control frames.
	readLimit = 4 * 1024

	// About two seconds of frames at 30Hz.
	queueDepth = 64
)

// Subscriber is one websocket attached to a hub.
type Subscriber struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// Subscribe attaches conn to hub. It returns nil once the hub has stopped.
func Subscribe(hub *Hub, conn *websocket.Conn) *Subscriber {
	s := &Subscriber{
		hub:  hub,
		conn: conn,
		send: make(chan Message, queueDepth),
	}
	select {
	case hub.join <- s:
		return s
	case <-hub.done:
		return nil
	}
}

// Serve subscribes conn and blocks until the connection ends.
// Use it as the body of a websocket handler.
func Serve(hub *Hub, conn *websocket.Conn) {
	s := Subscribe(hub, conn)
	if s == nil {
		conn.Close()
		return
	}
	go s.writeLoop()
	s.readLoop()
}

// readLoop discards inbound data and notices when the peer goes away.
func (s *Subscriber) readLoop() {
	defer func() {
		select {
		case s.hub.leave <- s:
		case <-s.hub.done:
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(readLimit)
	s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the only writer on the connection.
func (s *Subscriber) writeLoop() {
	ping := time.NewTicker(keepalive)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case m, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Hub dropped us or shut down
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			kind := websocket.TextMessage
			if m.Type == BinaryMessage {
				kind = websocket.BinaryMessage
			}
			if err := s.conn.WriteMessage(kind, m.Data); err != nil {
				return
			}

		case <-ping.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
