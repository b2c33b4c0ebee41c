// Package motion composes authored gestures with procedural idle motion.
// It implements a primary/secondary architecture where:
// - The primary source is the gesture Player (authored clips)
// - The secondary source is the Idle layer (breathing, head sway and bob)
// - The Animator sums them once per tick into a Frame for the pose sink
package motion

import (
	"github.com/teslashibe/go-asl/pkg/gesture"
)

// Transform is the local transform of one joint.
type Transform struct {
	Rotation gesture.Vec3 `json:"rotation"` // Euler angles in radians
	Position gesture.Vec3 `json:"position"` // Offset from the joint's bind position
	Scale    gesture.Vec3 `json:"scale"`
}

// Identity returns a transform with no rotation, no offset and unit scale.
func Identity() Transform {
	return Transform{Scale: gesture.V(1, 1, 1)}
}

// Frame is everything a pose sink needs for one tick.
type Frame struct {
	// Seq increases by one per tick.
	Seq uint64 `json:"seq"`

	// Time is absolute animation time in seconds.
	Time float64 `json:"time"`

	State    gesture.PlaybackState `json:"state"`
	Clip     string                `json:"clip,omitempty"`
	Label    string                `json:"label,omitempty"`
	Progress float64               `json:"progress"`

	// Joints holds the composed transform of every joint.
	Joints map[gesture.JointID]Transform `json:"joints"`
}

// Joint returns the transform of j, or Identity if the frame lacks it.
func (f Frame) Joint(j gesture.JointID) Transform {
	if t, ok := f.Joints[j]; ok {
		return t
	}
	return Identity()
}

// Sink applies frames to a render hierarchy (or a socket, or a log).
type Sink interface {
	Apply(Frame) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Frame) error

// Apply calls f.
func (f SinkFunc) Apply(fr Frame) error {
	return f(fr)
}

// MultiSink fans a frame out to several sinks. Every sink sees every frame;
// the first error is returned.
type MultiSink []Sink

// Apply forwards fr to each sink.
func (m MultiSink) Apply(fr Frame) error {
	var first error
	for _, s := range m {
		if err := s.Apply(fr); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Compose layers procedural offsets onto a base pose.
//
// Every known joint gets a transform. Head yaw and head height come from the
// idle layer and add to the authored rotation; the torso carries the
// breathing scale.
func Compose(base gesture.Pose, off Offsets) map[gesture.JointID]Transform {
	out := make(map[gesture.JointID]Transform, len(gesture.AllJoints))
	for _, j := range gesture.AllJoints {
		t := Identity()
		t.Rotation = base.Rotation(j)
		out[j] = t
	}

	head := out[gesture.JointHead]
	head.Rotation.Y += off.HeadYaw
	head.Position.Y = off.HeadY
	out[gesture.JointHead] = head

	torso := out[gesture.JointTorso]
	torso.Scale.Y = off.TorsoScaleY
	out[gesture.JointTorso] = torso

	return out
}
