package gesture

import "fmt"

// Built-in clip names.
const (
	ClipHello    = "hello"
	ClipThankYou = "thank-you"
)

// pose4 is shorthand for the four joints the built-in signs animate.
func pose4(rightArm, rightHand, leftArm, head Vec3) map[JointID]Vec3 {
	return map[JointID]Vec3{
		JointRightArm:  rightArm,
		JointRightHand: rightHand,
		JointLeftArm:   leftArm,
		JointHead:      head,
	}
}

var zero = Vec3{}

// builtInClips returns fresh copies of the authored sign clips.
func builtInClips() []struct {
	name, label string
	keyframes   []Keyframe
} {
	return []struct {
		name, label string
		keyframes   []Keyframe
	}{
		{
			name:  ClipHello,
			label: "Hello!",
			keyframes: []Keyframe{
				K(0, pose4(zero, zero, zero, zero)),
				K(0.5, pose4(V(0, 0.3, -0.8), zero, zero, V(0, 0.1, 0))),
				K(1, pose4(V(0, 0.5, -1.2), V(0, 0, 0.3), zero, V(0, 0.2, 0))),
				K(2.5, pose4(V(0, 0.5, -1.2), V(0, 0, -0.3), zero, V(0, 0.2, 0))),
				K(3.5, pose4(V(0, 0.5, -1.2), V(0, 0, 0.3), zero, V(0, 0.2, 0))),
				K(4.5, pose4(V(0, 0.3, -0.8), zero, zero, V(0, 0.1, 0))),
				K(5, pose4(zero, zero, zero, zero)),
			},
		},
		{
			name:  ClipThankYou,
			label: "Thank You!",
			keyframes: []Keyframe{
				K(0, pose4(zero, zero, zero, zero)),
				K(1, pose4(V(0, 0.8, -0.5), V(0.5, 0, 0), zero, V(0, 0.3, 0))),
				K(2, pose4(V(0, 1.2, -0.3), V(1, 0, 0), zero, V(0, 0.5, 0))),
				K(3.5, pose4(V(0, 0.8, -0.8), V(0.2, 0, 0), zero, V(0, 0.3, 0))),
				K(5, pose4(V(0, 0.3, -0.5), zero, zero, V(0, 0.1, 0))),
				K(6, pose4(zero, zero, zero, zero)),
			},
		},
	}
}

// BuiltIn builds the library of authored sign clips.
func BuiltIn() (*Library, error) {
	defs := builtInClips()
	clips := make([]*Clip, 0, len(defs))
	for _, d := range defs {
		c, err := NewClip(d.name, d.label, d.keyframes...)
		if err != nil {
			return nil, fmt.Errorf("built-in clip %q: %w", d.name, err)
		}
		clips = append(clips, c)
	}
	return NewLibrary(clips...)
}

// MustBuiltIn is BuiltIn for process start; it panics if the tables are broken.
func MustBuiltIn() *Library {
	l, err := BuiltIn()
	if err != nil {
		panic(err)
	}
	return l
}
