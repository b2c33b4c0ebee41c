package gesture

import (
	"sort"
)

// lerp performs linear interpolation between two values.
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// clamp restricts a value to a range.
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// EaseOutCubic remaps t in [0, 1] so motion decelerates into the target.
func EaseOutCubic(t float64) float64 {
	t = clamp(t, 0, 1)
	u := 1 - t
	return 1 - u*u*u
}

// InterpolateKeyframes blends two keyframes at eased parameter t.
// Only joints present in both keyframes appear in the result.
func InterpolateKeyframes(a, b Keyframe, t float64) Pose {
	rot := make(map[JointID]Vec3, len(a.Rotations))
	for j, va := range a.Rotations {
		vb, ok := b.Rotations[j]
		if !ok {
			continue
		}
		rot[j] = va.Lerp(vb, t)
	}
	return Pose{Rotations: rot}
}

// Evaluate returns the pose of clip at time t (seconds since clip start).
//
// Times at or before the first keyframe return the first keyframe exactly and
// times at or after the duration return the last keyframe exactly, so Evaluate
// is defined for every float including NaN.
func Evaluate(clip *Clip, t float64) Pose {
	if !(t > clip.Start()) {
		return clip.RestPose()
	}
	if t >= clip.Duration() {
		return clip.EndPose()
	}

	times := clip.times

	// First keyframe strictly after t; 1 <= idx <= len-1 given the clamps above.
	idx := sort.Search(len(times), func(i int) bool {
		return times[i] > t
	})

	a := clip.keyframes[idx-1]
	b := clip.keyframes[idx]

	alpha := (t - a.Time) / (b.Time - a.Time)
	return InterpolateKeyframes(a, b, EaseOutCubic(alpha))
}
