package motion

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-asl/internal/log"
	"github.com/teslashibe/go-asl/pkg/gesture"
)

// DefaultRate is the tick interval of Run when none is given (~30Hz).
const DefaultRate = 33 * time.Millisecond

// AnimatorOption configures an Animator.
type AnimatorOption func(*Animator)

// WithAnimatorLogger sets the logger for loop diagnostics.
func WithAnimatorLogger(l *slog.Logger) AnimatorOption {
	return func(a *Animator) {
		a.logger = l
	}
}

// Animator drives a gesture Player and the Idle layer from one tick source.
//
// Each Tick advances the player, advances absolute time, steps the idle layer
// and composes both onto the same joints. Tick must be called from a single
// goroutine; Play, Stop, Status and Frame may be called from anywhere.
type Animator struct {
	player *gesture.Player
	logger *slog.Logger

	mu    sync.RWMutex
	idle  *Idle
	clock float64
	seq   uint64
	last  Frame

	// Diagnostics
	errorCount uint64
}

// NewAnimator creates an animator over player with the given idle tuning.
func NewAnimator(player *gesture.Player, params ProceduralParams, opts ...AnimatorOption) *Animator {
	a := &Animator{
		player: player,
		idle:   NewIdle(params),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = log.For("motion")
	}

	status, pose := player.Snapshot()
	a.last = buildFrame(0, 0, status, pose, Offsets{TorsoScaleY: 1})
	return a
}

// Player returns the underlying gesture player.
func (a *Animator) Player() *gesture.Player {
	return a.player
}

// Play starts the named clip. See gesture.Player.Start.
func (a *Animator) Play(name string) (string, error) {
	return a.player.Start(name)
}

// PlayIfIdle starts the named clip unless one is already playing.
// See gesture.Player.StartIfIdle.
func (a *Animator) PlayIfIdle(name string) (string, error) {
	return a.player.StartIfIdle(name)
}

// Stop abandons the current clip.
func (a *Animator) Stop() bool {
	return a.player.Stop()
}

// Status returns the current playback status.
func (a *Animator) Status() gesture.Status {
	return a.player.Status()
}

// OnCompletion registers fn for every finished playthrough.
func (a *Animator) OnCompletion(fn func(gesture.Completion)) {
	a.player.OnCompletion(fn)
}

// Time returns absolute animation time in seconds.
func (a *Animator) Time() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.clock
}

// Frame returns the most recently produced frame.
func (a *Animator) Frame() Frame {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// Tick advances everything by dt seconds and returns the composed frame.
// Negative and NaN deltas count as zero.
func (a *Animator) Tick(dt float64) Frame {
	if math.IsNaN(dt) || dt < 0 {
		dt = 0
	}

	// 1. Primary: authored clip (may fire completion callbacks)
	a.player.Advance(dt)
	status, pose := a.player.Snapshot()

	a.mu.Lock()
	defer a.mu.Unlock()

	// 2. Secondary: procedural layer on absolute time
	a.clock += dt
	a.seq++
	off := a.idle.Step(a.clock)

	// 3. Compose
	a.last = buildFrame(a.seq, a.clock, status, pose, off)
	return a.last
}

func buildFrame(seq uint64, t float64, st gesture.Status, pose gesture.Pose, off Offsets) Frame {
	return Frame{
		Seq:      seq,
		Time:     t,
		State:    st.State,
		Clip:     st.Clip,
		Label:    st.Label,
		Progress: st.Progress,
		Joints:   Compose(pose, off),
	}
}

// Run ticks at the given rate, feeding each frame to sink, until ctx is done.
// Deltas come from the wall clock between ticks. Sink errors are logged and
// never stop the loop.
func (a *Animator) Run(ctx context.Context, rate time.Duration, sink Sink) error {
	if rate <= 0 {
		rate = DefaultRate
	}

	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	a.logger.Info("animator started", "hz", math.Round(1/rate.Seconds()))

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("animator stopped", "ticks", a.Frame().Seq)
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now

			fr := a.Tick(dt)
			if sink == nil {
				continue
			}
			if err := sink.Apply(fr); err != nil {
				a.errorCount++
				if a.errorCount%100 == 1 {
					a.logger.Warn("pose sink error", "error", err, "count", a.errorCount)
				}
			}
		}
	}
}
