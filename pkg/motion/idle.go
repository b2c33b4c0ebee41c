package motion

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams is returned when procedural parameters are unusable.
var ErrInvalidParams = errors.New("invalid procedural parameters")

// ProceduralParams tunes the idle layer. Rates are in radians per second of
// absolute time, amplitudes in radians or scene units.
type ProceduralParams struct {
	SwayRate        float64 `yaml:"sway_rate" json:"sway_rate"`
	SwayGain        float64 `yaml:"sway_gain" json:"sway_gain"`
	BobRate         float64 `yaml:"bob_rate" json:"bob_rate"`
	BobAmplitude    float64 `yaml:"bob_amplitude" json:"bob_amplitude"`
	BreathRate      float64 `yaml:"breath_rate" json:"breath_rate"`
	BreathAmplitude float64 `yaml:"breath_amplitude" json:"breath_amplitude"`
}

// DefaultProceduralParams returns the tuning of the original figure.
func DefaultProceduralParams() ProceduralParams {
	return ProceduralParams{
		SwayRate:        0.5,
		SwayGain:        0.001,
		BobRate:         0.8,
		BobAmplitude:    0.02,
		BreathRate:      1.2,
		BreathAmplitude: 0.01,
	}
}

// Validate rejects negative or non-finite values.
func (p ProceduralParams) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"sway_rate", p.SwayRate},
		{"sway_gain", p.SwayGain},
		{"bob_rate", p.BobRate},
		{"bob_amplitude", p.BobAmplitude},
		{"breath_rate", p.BreathRate},
		{"breath_amplitude", p.BreathAmplitude},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidParams, f.name, f.v)
		}
	}
	return nil
}

// Offsets are the secondary values the idle layer contributes for one tick.
type Offsets struct {
	HeadYaw     float64 `json:"head_yaw"`      // Accumulated yaw drift (radians)
	HeadY       float64 `json:"head_y"`        // Vertical head bob
	TorsoScaleY float64 `json:"torso_scale_y"` // Breathing scale, 1 at rest
}

// Idle is the procedural motion layer. It runs regardless of playback state.
//
// Head yaw is a drift: each Step adds sin(T*SwayRate)*SwayGain to a running
// total that is never bounded. Bob and breathing are plain functions of T.
// Idle is not safe for concurrent use; the Animator owns it.
type Idle struct {
	params ProceduralParams
	yaw    float64
}

// NewIdle creates an idle layer.
func NewIdle(params ProceduralParams) *Idle {
	return &Idle{params: params}
}

// Params returns the layer's tuning.
func (l *Idle) Params() ProceduralParams {
	return l.params
}

// Step advances the drift by one tick at absolute time t and returns the offsets.
func (l *Idle) Step(t float64) Offsets {
	p := l.params
	l.yaw += math.Sin(t*p.SwayRate) * p.SwayGain
	return Offsets{
		HeadYaw:     l.yaw,
		HeadY:       math.Sin(t*p.BobRate) * p.BobAmplitude,
		TorsoScaleY: 1 + math.Sin(t*p.BreathRate)*p.BreathAmplitude,
	}
}

// Yaw returns the accumulated head yaw drift.
func (l *Idle) Yaw() float64 {
	return l.yaw
}

// Reset clears the accumulated drift.
func (l *Idle) Reset() {
	l.yaw = 0
}
