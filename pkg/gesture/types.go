// Package gesture provides the keyframe animation engine for the signing figure.
//
// Gestures are short hand-authored clips: ordered keyframes of joint rotations.
// A Player advances a clip in time and evaluates the current Pose with
// ease-out-cubic interpolation between the bracketing keyframes.
//
// Clips and Libraries are immutable once built. Poses are plain values owned by
// whoever asked for them.
package gesture

import (
	"fmt"
	"math"
	"sort"
)

// JointID names a logical joint of the figure.
type JointID string

const (
	JointHead      JointID = "head"
	JointTorso     JointID = "torso"
	JointLeftArm   JointID = "left_arm"
	JointRightArm  JointID = "right_arm"
	JointLeftHand  JointID = "left_hand"
	JointRightHand JointID = "right_hand"
)

// AllJoints lists every joint the figure exposes, in hierarchy order.
var AllJoints = []JointID{
	JointTorso,
	JointHead,
	JointLeftArm,
	JointLeftHand,
	JointRightArm,
	JointRightHand,
}

// Valid reports whether j is one of the known joints.
func (j JointID) Valid() bool {
	for _, k := range AllJoints {
		if k == j {
			return true
		}
	}
	return false
}

// Vec3 is a triple of Euler angles in radians (or a position/scale where noted).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// V builds a Vec3.
func V(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// Add returns the component-wise sum of v and o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns the component-wise difference of v and o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale multiplies every component by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Lerp interpolates each component from v towards b by t.
func (v Vec3) Lerp(b Vec3, t float64) Vec3 {
	return Vec3{
		X: lerp(v.X, b.X, t),
		Y: lerp(v.Y, b.Y, t),
		Z: lerp(v.Z, b.Z, t),
	}
}

// IsFinite reports whether no component is NaN or infinite.
func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// Keyframe is a timestamped target pose within a clip.
type Keyframe struct {
	// Time is the offset from clip start in seconds.
	Time float64 `json:"time"`

	// Rotations holds the local Euler rotation of each animated joint.
	Rotations map[JointID]Vec3 `json:"rotations"`
}

// K builds a keyframe. Handy for authoring clip tables.
func K(t float64, rot map[JointID]Vec3) Keyframe {
	return Keyframe{Time: t, Rotations: rot}
}

func (k Keyframe) clone() Keyframe {
	rot := make(map[JointID]Vec3, len(k.Rotations))
	for j, v := range k.Rotations {
		rot[j] = v
	}
	return Keyframe{Time: k.Time, Rotations: rot}
}

// Pose is the set of joint rotations at one instant.
type Pose struct {
	Rotations map[JointID]Vec3 `json:"rotations"`
}

// NeutralPose returns every known joint at zero rotation.
func NeutralPose() Pose {
	rot := make(map[JointID]Vec3, len(AllJoints))
	for _, j := range AllJoints {
		rot[j] = Vec3{}
	}
	return Pose{Rotations: rot}
}

// Rotation returns the rotation of j, or zero if the pose does not animate it.
func (p Pose) Rotation(j JointID) Vec3 {
	return p.Rotations[j]
}

// Joints returns the animated joints in sorted order.
func (p Pose) Joints() []JointID {
	return sortedJoints(p.Rotations)
}

// Clone returns a deep copy of p.
func (p Pose) Clone() Pose {
	rot := make(map[JointID]Vec3, len(p.Rotations))
	for j, v := range p.Rotations {
		rot[j] = v
	}
	return Pose{Rotations: rot}
}

// Equal reports whether p and o animate the same joints with identical values.
func (p Pose) Equal(o Pose) bool {
	if len(p.Rotations) != len(o.Rotations) {
		return false
	}
	for j, v := range p.Rotations {
		w, ok := o.Rotations[j]
		if !ok || v != w {
			return false
		}
	}
	return true
}

// PlaybackState represents the current state of gesture playback.
type PlaybackState int

const (
	// StateIdle means no clip is playing.
	StateIdle PlaybackState = iota

	// StatePlaying means a clip is actively advancing.
	StatePlaying
)

// String returns a human-readable state name.
func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s PlaybackState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *PlaybackState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StateIdle
	case "playing":
		*s = StatePlaying
	default:
		return fmt.Errorf("unknown playback state %q", b)
	}
	return nil
}

func sortedJoints(m map[JointID]Vec3) []JointID {
	out := make([]JointID, 0, len(m))
	for j := range m {
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
