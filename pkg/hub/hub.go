package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-asl/internal/log"
)

// queueSize bounds messages waiting for the fan-out loop.
const queueSize = 256

// Hub fans messages out to every subscribed websocket.
//
// All subscriber bookkeeping happens on the Run goroutine; other goroutines
// talk to it over channels. The subscriber set is also guarded by mu so
// Subscribers can be read from anywhere.
type Hub struct {
	name   string
	logger *slog.Logger

	subs  map[*Subscriber]struct{}
	mu    sync.RWMutex
	queue chan Message
	join  chan *Subscriber
	leave chan *Subscriber
	done  chan struct{}

	// Last retained message, replayed to new subscribers.
	retained atomic.Pointer[Message]

	running atomic.Bool
	dropped atomic.Uint64
}

// New creates a hub. name tags its log lines.
func New(name string) *Hub {
	return &Hub{
		name:   name,
		logger: log.For("hub").With("hub", name),
		subs:   make(map[*Subscriber]struct{}),
		queue:  make(chan Message, queueSize),
		join:   make(chan *Subscriber),
		leave:  make(chan *Subscriber),
		done:   make(chan struct{}),
	}
}

// SetLogger replaces the hub's logger. Call before Run.
func (h *Hub) SetLogger(l *slog.Logger) {
	h.logger = l.With("hub", h.name)
}

// Run services joins, leaves and broadcasts until ctx is done. When it
// returns every subscriber's queue is closed, which ends its connection.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case s := <-h.join:
			if m := h.retained.Load(); m != nil {
				s.send <- *m
			}
			h.mu.Lock()
			h.subs[s] = struct{}{}
			n := len(h.subs)
			h.mu.Unlock()
			h.logger.Info("subscriber joined", "subscribers", n)

		case s := <-h.leave:
			h.mu.Lock()
			h.remove(s)
			n := len(h.subs)
			h.mu.Unlock()
			h.logger.Info("subscriber left", "subscribers", n)

		case m := <-h.queue:
			h.mu.Lock()
			for s := range h.subs {
				select {
				case s.send <- m:
				default:
					// A stalled pose sink must not hold back the others
					h.remove(s)
					h.logger.Warn("dropped stalled subscriber")
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove closes s's queue once. Caller holds mu.
func (h *Hub) remove(s *Subscriber) {
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	for s := range h.subs {
		h.remove(s)
	}
	h.mu.Unlock()
	h.running.Store(false)
	close(h.done)
}

// Broadcast queues msg for every subscriber. It never blocks: when the
// queue is full the message is dropped and counted.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.queue <- msg:
	default:
		if n := h.dropped.Add(1); n%100 == 1 {
			h.logger.Warn("broadcast queue full, dropping message", "dropped", n)
		}
	}
}

// Retain remembers msg as the latest state; new subscribers receive it
// before anything else.
func (h *Hub) Retain(msg Message) {
	h.retained.Store(&msg)
}

// BroadcastJSON encodes v and broadcasts it as a text message.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastBinary broadcasts raw bytes as a binary message.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// Subscribers returns how many sockets are attached.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Dropped returns how many broadcasts were discarded because the queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
