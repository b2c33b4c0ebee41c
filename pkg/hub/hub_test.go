package hub

import (
	"context"
	"testing"
	"time"

	"github.com/teslashibe/go-asl/internal/log"
	"github.com/teslashibe/go-asl/pkg/protocol"
)

func newTestHub(name string) *Hub {
	h := New(name)
	h.SetLogger(log.Discard())
	return h
}

func TestNewHub(t *testing.T) {
	h := newTestHub("frames")

	if h.Subscribers() != 0 {
		t.Error("Subscribers should be 0 initially")
	}
	if h.IsRunning() {
		t.Error("Hub should not be running before Run")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newTestHub("frames")
	ctx, cancel := context.WithCancel(context.Background())

	go h.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for !h.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !h.IsRunning() {
		t.Fatal("Hub should report running")
	}

	cancel()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Hub did not stop")
	}
	if h.IsRunning() {
		t.Error("Hub should not report running after stop")
	}
}

func TestRegisterAfterStop(t *testing.T) {
	h := newTestHub("frames")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.Run(ctx)

	if c := Subscribe(h, nil); c != nil {
		t.Error("Subscribe should return nil once the hub stopped")
	}
}

func TestBroadcastDropsWhenFull(t *testing.T) {
	h := newTestHub("frames")

	// Nothing drains the channel without Run.
	for i := 0; i < cap(h.queue)+10; i++ {
		h.BroadcastBinary([]byte{byte(i)})
	}

	if h.Dropped() != 10 {
		t.Errorf("Dropped = %d, want 10", h.Dropped())
	}
}

func TestBroadcastProtocol(t *testing.T) {
	h := newTestHub("frames")

	msg, _ := protocol.NewStopMessage()
	if err := h.BroadcastProtocol(msg); err != nil {
		t.Fatalf("BroadcastProtocol error: %v", err)
	}

	got := <-h.queue
	if got.Type != JSONMessage {
		t.Errorf("Type = %v, want JSON", got.Type)
	}
	parsed, err := protocol.ParseMessage(got.Data)
	if err != nil {
		t.Fatalf("ParseMessage error: %v", err)
	}
	if parsed.Type != protocol.TypeStop {
		t.Errorf("Type = %s, want stop", parsed.Type)
	}
}

func TestBroadcastJSON(t *testing.T) {
	h := newTestHub("frames")

	if err := h.BroadcastJSON(map[string]int{"seq": 1}); err != nil {
		t.Fatalf("BroadcastJSON error: %v", err)
	}
	if err := h.BroadcastJSON(make(chan int)); err == nil {
		t.Error("BroadcastJSON should fail for unencodable values")
	}

	got := <-h.queue
	if string(got.Data) != `{"seq":1}` {
		t.Errorf("Data = %s", got.Data)
	}
}

func TestRetainedMessageOnSubscribe(t *testing.T) {
	h := newTestHub("frames")
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	h.Retain(NewJSONMessage([]byte(`{"seq":9}`)))

	s := Subscribe(h, nil)
	if s == nil {
		t.Fatal("Subscribe returned nil on a running hub")
	}

	select {
	case m := <-s.send:
		if string(m.Data) != `{"seq":9}` {
			t.Errorf("first message = %s, want retained frame", m.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("retained message not delivered")
	}

	h.Broadcast(NewJSONMessage([]byte(`{"seq":10}`)))
	select {
	case m := <-s.send:
		if string(m.Data) != `{"seq":10}` {
			t.Errorf("broadcast = %s", m.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}

	cancel()
	<-h.Done()
	if _, ok := <-s.send; ok {
		t.Error("subscriber queue should be closed after shutdown")
	}
	if h.Subscribers() != 0 {
		t.Errorf("Subscribers = %d, want 0", h.Subscribers())
	}
}
