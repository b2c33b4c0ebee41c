package gesture

import (
	"fmt"
)

// Clip is a named, fixed sequence of keyframes representing one gesture.
// A Clip never changes after NewClip returns.
type Clip struct {
	name      string
	label     string
	keyframes []Keyframe
	times     []float64
	joints    []JointID
}

// NewClip validates keyframes and builds a Clip.
//
// Keyframes must be at least two, start at time >= 0, be strictly increasing in
// time, and all animate the same non-empty set of known joints with finite
// values. The clip's duration is the time of its last keyframe.
func NewClip(name, label string, keyframes ...Keyframe) (*Clip, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: clip name is empty", ErrInvalidClip)
	}
	if len(keyframes) < 2 {
		return nil, fmt.Errorf("%w: clip %q has %d keyframes, need at least 2",
			ErrInvalidClip, name, len(keyframes))
	}

	c := &Clip{
		name:      name,
		label:     label,
		keyframes: make([]Keyframe, len(keyframes)),
		times:     make([]float64, len(keyframes)),
	}

	for i, kf := range keyframes {
		if !isFinite(kf.Time) {
			return nil, fmt.Errorf("%w: clip %q keyframe %d has non-finite time",
				ErrInvalidClip, name, i)
		}
		if i == 0 && kf.Time < 0 {
			return nil, fmt.Errorf("%w: clip %q starts at negative time %v",
				ErrInvalidClip, name, kf.Time)
		}
		if i > 0 && kf.Time <= keyframes[i-1].Time {
			return nil, fmt.Errorf("%w: clip %q keyframe %d at %v is not after %v",
				ErrInvalidClip, name, i, kf.Time, keyframes[i-1].Time)
		}
		if len(kf.Rotations) == 0 {
			return nil, fmt.Errorf("%w: clip %q keyframe %d animates no joints",
				ErrInvalidClip, name, i)
		}
		for j, v := range kf.Rotations {
			if !j.Valid() {
				return nil, fmt.Errorf("%w: clip %q keyframe %d uses unknown joint %q",
					ErrInvalidClip, name, i, j)
			}
			if !v.IsFinite() {
				return nil, fmt.Errorf("%w: clip %q keyframe %d joint %q is not finite",
					ErrInvalidClip, name, i, j)
			}
		}
		if i > 0 {
			if err := sameJoints(keyframes[0], kf); err != nil {
				return nil, fmt.Errorf("%w: clip %q keyframe %d: %v", ErrInvalidClip, name, i, err)
			}
		}

		c.keyframes[i] = kf.clone()
		c.times[i] = kf.Time
	}

	c.joints = sortedJoints(c.keyframes[0].Rotations)
	return c, nil
}

// MustClip is NewClip for static tables; it panics on invalid data.
func MustClip(name, label string, keyframes ...Keyframe) *Clip {
	c, err := NewClip(name, label, keyframes...)
	if err != nil {
		panic(err)
	}
	return c
}

// Name returns the library key of the clip.
func (c *Clip) Name() string {
	return c.name
}

// Label returns the caption shown while the clip plays.
func (c *Clip) Label() string {
	return c.label
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	return c.times[len(c.times)-1]
}

// Start returns the time of the first keyframe.
func (c *Clip) Start() float64 {
	return c.times[0]
}

// Len returns the number of keyframes.
func (c *Clip) Len() int {
	return len(c.keyframes)
}

// Keyframe returns a copy of keyframe i.
func (c *Clip) Keyframe(i int) Keyframe {
	return c.keyframes[i].clone()
}

// Joints returns the animated joints in sorted order.
func (c *Clip) Joints() []JointID {
	out := make([]JointID, len(c.joints))
	copy(out, c.joints)
	return out
}

// RestPose returns the pose of the first keyframe.
func (c *Clip) RestPose() Pose {
	return c.poseAt(0)
}

// EndPose returns the pose of the last keyframe.
func (c *Clip) EndPose() Pose {
	return c.poseAt(len(c.keyframes) - 1)
}

func (c *Clip) poseAt(i int) Pose {
	return Pose{Rotations: c.keyframes[i].Rotations}.Clone()
}

// String implements fmt.Stringer.
func (c *Clip) String() string {
	return fmt.Sprintf("%s (%.2fs, %d keyframes)", c.name, c.Duration(), len(c.keyframes))
}

func sameJoints(a, b Keyframe) error {
	if len(a.Rotations) != len(b.Rotations) {
		return fmt.Errorf("animates %d joints, first keyframe animates %d",
			len(b.Rotations), len(a.Rotations))
	}
	for j := range a.Rotations {
		if _, ok := b.Rotations[j]; !ok {
			return fmt.Errorf("missing joint %q", j)
		}
	}
	return nil
}
