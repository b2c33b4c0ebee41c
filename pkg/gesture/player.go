package gesture

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/teslashibe/go-asl/internal/log"
)

// Completion describes one finished playthrough.
type Completion struct {
	// PlayID identifies the playthrough that finished.
	PlayID string `json:"play_id"`

	// Clip is the name of the clip that finished.
	Clip string `json:"clip"`

	// Label is the clip's caption.
	Label string `json:"label"`

	// Duration is the clip length in seconds.
	Duration float64 `json:"duration"`

	// Count is the number of playthroughs completed so far, this one included.
	Count uint64 `json:"count"`
}

// Status is a consistent view of the player at one instant.
type Status struct {
	State     PlaybackState `json:"state"`
	Clip      string        `json:"clip,omitempty"`
	Label     string        `json:"label,omitempty"`
	PlayID    string        `json:"play_id,omitempty"`
	Elapsed   float64       `json:"elapsed"`
	Duration  float64       `json:"duration"`
	Progress  float64       `json:"progress"`
	Completed uint64        `json:"completed"`
}

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithOnComplete registers fn to run once every time a clip finishes.
func WithOnComplete(fn func()) PlayerOption {
	return func(p *Player) {
		p.onComplete = append(p.onComplete, fn)
	}
}

// WithLogger sets the logger used for playback events.
func WithLogger(l *slog.Logger) PlayerOption {
	return func(p *Player) {
		p.logger = l
	}
}

// Player is the playback state machine: Idle, or Playing one clip.
//
// Time only moves through Advance; the Player never reads a clock. All methods
// are safe for concurrent use. Completion callbacks run after the internal
// lock is released, so they may call back into the Player.
type Player struct {
	mu sync.Mutex

	lib    *Library
	logger *slog.Logger

	state   PlaybackState
	active  *Clip
	last    *Clip
	elapsed float64
	playID  string
	count   uint64

	onComplete []func()
	listeners  []func(Completion)
}

// NewPlayer creates an idle player over lib.
func NewPlayer(lib *Library, opts ...PlayerOption) *Player {
	p := &Player{
		lib:   lib,
		state: StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.For("gesture")
	}
	return p
}

// OnComplete registers fn to run once every time a clip finishes.
func (p *Player) OnComplete(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onComplete = append(p.onComplete, fn)
}

// OnCompletion registers fn to receive details of every finished playthrough.
func (p *Player) OnCompletion(fn func(Completion)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Library returns the catalog the player resolves names against.
func (p *Player) Library() *Library {
	return p.lib
}

// Play starts the named clip from time zero, replacing anything in flight.
// An unknown name returns ErrUnknownClip and leaves the player untouched.
func (p *Player) Play(name string) error {
	_, err := p.Start(name)
	return err
}

// Start is Play that also returns the id of the new playthrough.
func (p *Player) Start(name string) (string, error) {
	return p.start(name, false)
}

// StartIfIdle starts the named clip only when nothing is playing. The check
// and the start happen under one lock; a busy player returns ErrBusy.
func (p *Player) StartIfIdle(name string) (string, error) {
	return p.start(name, true)
}

func (p *Player) start(name string, onlyIfIdle bool) (string, error) {
	clip, err := p.lib.Lookup(name)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()

	p.mu.Lock()
	interrupted := ""
	if p.state == StatePlaying {
		if onlyIfIdle {
			playing := p.active.Name()
			p.mu.Unlock()
			return "", fmt.Errorf("%w: %s", ErrBusy, playing)
		}
		interrupted = p.active.Name()
	}
	p.state = StatePlaying
	p.active = clip
	p.elapsed = 0
	p.playID = id
	p.mu.Unlock()

	if interrupted != "" {
		p.logger.Info("gesture restarted", "clip", name, "interrupted", interrupted, "play_id", id)
	} else {
		p.logger.Info("gesture started", "clip", name, "duration", clip.Duration(), "play_id", id)
	}
	return id, nil
}

// Stop abandons the current clip without firing completion.
// It reports whether anything was playing.
func (p *Player) Stop() bool {
	p.mu.Lock()
	if p.state != StatePlaying {
		p.mu.Unlock()
		return false
	}
	name := p.active.Name()
	p.last = p.active
	p.reset()
	p.mu.Unlock()

	p.logger.Info("gesture stopped", "clip", name)
	return true
}

// Advance moves playback forward by dt seconds. Negative and NaN deltas count
// as zero. When the clip reaches its duration the player returns to Idle and
// completion fires exactly once. Advance reports whether that happened.
func (p *Player) Advance(dt float64) bool {
	if math.IsNaN(dt) || dt < 0 {
		dt = 0
	}

	p.mu.Lock()
	if p.state != StatePlaying {
		p.mu.Unlock()
		return false
	}

	p.elapsed += dt
	if p.elapsed < p.active.Duration() {
		p.mu.Unlock()
		return false
	}

	p.count++
	done := Completion{
		PlayID:   p.playID,
		Clip:     p.active.Name(),
		Label:    p.active.Label(),
		Duration: p.active.Duration(),
		Count:    p.count,
	}
	p.last = p.active
	p.reset()

	callbacks := append([]func(){}, p.onComplete...)
	listeners := append([]func(Completion){}, p.listeners...)
	p.mu.Unlock()

	p.logger.Info("gesture completed", "clip", done.Clip, "play_id", done.PlayID)

	for _, fn := range callbacks {
		fn()
	}
	for _, fn := range listeners {
		fn(done)
	}
	return true
}

// reset returns to Idle. Caller holds mu.
func (p *Player) reset() {
	p.state = StateIdle
	p.active = nil
	p.elapsed = 0
	p.playID = ""
}

// CurrentPose returns the pose for this instant. While idle that is the rest
// pose of the last clip played, or the neutral pose if nothing has played.
func (p *Player) CurrentPose() Pose {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.poseLocked()
}

func (p *Player) poseLocked() Pose {
	if p.state == StatePlaying {
		return Evaluate(p.active, p.elapsed)
	}
	if p.last != nil {
		return p.last.RestPose()
	}
	return NeutralPose()
}

// State returns the current playback state.
func (p *Player) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Elapsed returns seconds since the current clip started, or 0 when idle.
func (p *Player) Elapsed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elapsed
}

// ActiveClip returns the playing clip, or nil when idle.
func (p *Player) ActiveClip() *Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Snapshot returns the status and pose taken under one lock.
func (p *Player) Snapshot() (Status, Pose) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		State:     p.state,
		Elapsed:   p.elapsed,
		Completed: p.count,
	}
	if p.active != nil {
		st.Clip = p.active.Name()
		st.Label = p.active.Label()
		st.PlayID = p.playID
		st.Duration = p.active.Duration()
		st.Progress = clamp(p.elapsed/st.Duration, 0, 1)
	}
	return st, p.poseLocked()
}

// Status returns the current playback status.
func (p *Player) Status() Status {
	st, _ := p.Snapshot()
	return st
}
