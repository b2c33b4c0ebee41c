package gesture

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/teslashibe/go-asl/internal/log"
)

func newTestPlayer(t *testing.T, opts ...PlayerOption) *Player {
	t.Helper()
	opts = append([]PlayerOption{WithLogger(log.Discard())}, opts...)
	return NewPlayer(MustBuiltIn(), opts...)
}

func rampClip(t *testing.T) *Clip {
	t.Helper()
	c, err := NewClip("ramp", "",
		K(0, map[JointID]Vec3{JointHead: V(0, 0, 0)}),
		K(1, map[JointID]Vec3{JointHead: V(1, 1, 1)}),
	)
	if err != nil {
		t.Fatalf("NewClip(ramp) failed: %v", err)
	}
	return c
}

func TestBuiltIn(t *testing.T) {
	lib, err := BuiltIn()
	if err != nil {
		t.Fatalf("BuiltIn failed: %v", err)
	}

	if lib.Len() != 2 {
		t.Errorf("Expected 2 built-in clips, got %d", lib.Len())
	}

	names := lib.Names()
	if len(names) != 2 || names[0] != ClipHello || names[1] != ClipThankYou {
		t.Errorf("Unexpected names: %v", names)
	}

	hello, err := lib.Lookup(ClipHello)
	if err != nil {
		t.Fatalf("Lookup(hello) failed: %v", err)
	}
	if hello.Duration() != 5 {
		t.Errorf("Expected hello duration 5, got %v", hello.Duration())
	}
	if hello.Len() != 7 {
		t.Errorf("Expected 7 keyframes, got %d", hello.Len())
	}
	if hello.Label() != "Hello!" {
		t.Errorf("Expected label 'Hello!', got %q", hello.Label())
	}

	thanks, err := lib.Lookup(ClipThankYou)
	if err != nil {
		t.Fatalf("Lookup(thank-you) failed: %v", err)
	}
	if thanks.Duration() != 6 || thanks.Len() != 6 {
		t.Errorf("Unexpected thank-you shape: %s", thanks)
	}
}

func TestLookup_NotFound(t *testing.T) {
	lib := MustBuiltIn()

	_, err := lib.Lookup("nonexistent")
	if !errors.Is(err, ErrUnknownClip) {
		t.Errorf("Expected ErrUnknownClip, got %v", err)
	}
	if lib.Has("nonexistent") {
		t.Error("Has should be false for unknown clip")
	}
}

func TestNewLibrary_Duplicate(t *testing.T) {
	a := MustClip("a", "", K(0, map[JointID]Vec3{JointHead: {}}), K(1, map[JointID]Vec3{JointHead: {}}))
	b := MustClip("a", "", K(0, map[JointID]Vec3{JointHead: {}}), K(2, map[JointID]Vec3{JointHead: {}}))

	_, err := NewLibrary(a, b)
	if !errors.Is(err, ErrDuplicateClip) {
		t.Errorf("Expected ErrDuplicateClip, got %v", err)
	}

	_, err = NewLibrary(a, nil)
	if !errors.Is(err, ErrInvalidClip) {
		t.Errorf("Expected ErrInvalidClip for nil clip, got %v", err)
	}
}

func TestNewClip_Validation(t *testing.T) {
	head := func(x float64) map[JointID]Vec3 { return map[JointID]Vec3{JointHead: V(x, 0, 0)} }

	cases := []struct {
		name string
		clip string
		kfs  []Keyframe
	}{
		{"empty name", "", []Keyframe{K(0, head(0)), K(1, head(0))}},
		{"single keyframe", "c", []Keyframe{K(0, head(0))}},
		{"negative start", "c", []Keyframe{K(-1, head(0)), K(1, head(0))}},
		{"not increasing", "c", []Keyframe{K(0, head(0)), K(2, head(0)), K(1, head(0))}},
		{"duplicate time", "c", []Keyframe{K(0, head(0)), K(1, head(0)), K(1, head(0))}},
		{"nan time", "c", []Keyframe{K(0, head(0)), K(math.NaN(), head(0))}},
		{"infinite value", "c", []Keyframe{K(0, head(0)), K(1, head(math.Inf(1)))}},
		{"no joints", "c", []Keyframe{K(0, nil), K(1, nil)}},
		{"unknown joint", "c", []Keyframe{
			K(0, map[JointID]Vec3{"tail": {}}),
			K(1, map[JointID]Vec3{"tail": {}}),
		}},
		{"missing joint", "c", []Keyframe{
			K(0, map[JointID]Vec3{JointHead: {}, JointLeftArm: {}}),
			K(1, map[JointID]Vec3{JointHead: {}}),
		}},
		{"swapped joint", "c", []Keyframe{
			K(0, map[JointID]Vec3{JointHead: {}}),
			K(1, map[JointID]Vec3{JointTorso: {}}),
		}},
	}

	for _, tc := range cases {
		_, err := NewClip(tc.clip, "", tc.kfs...)
		if !errors.Is(err, ErrInvalidClip) {
			t.Errorf("%s: expected ErrInvalidClip, got %v", tc.name, err)
		}
	}
}

func TestNewClip_CopiesInput(t *testing.T) {
	rot := map[JointID]Vec3{JointHead: V(1, 0, 0)}
	c, err := NewClip("c", "", K(0, rot), K(1, map[JointID]Vec3{JointHead: {}}))
	if err != nil {
		t.Fatalf("NewClip failed: %v", err)
	}

	rot[JointHead] = V(9, 9, 9)
	if got := c.RestPose().Rotation(JointHead); got != V(1, 0, 0) {
		t.Errorf("Clip should not alias caller's map, got %+v", got)
	}

	kf := c.Keyframe(0)
	kf.Rotations[JointHead] = V(7, 7, 7)
	if got := c.RestPose().Rotation(JointHead); got != V(1, 0, 0) {
		t.Errorf("Keyframe() should return a copy, got %+v", got)
	}
}

func TestEaseOutCubic(t *testing.T) {
	cases := map[float64]float64{
		-1:  0,
		0:   0,
		0.5: 0.875,
		1:   1,
		2:   1,
	}
	for in, want := range cases {
		if got := EaseOutCubic(in); got != want {
			t.Errorf("EaseOutCubic(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestEvaluate_EaseApplied(t *testing.T) {
	c := rampClip(t)

	got := Evaluate(c, 0.5).Rotation(JointHead)
	if got.X != 0.875 || got.Y != 0.875 || got.Z != 0.875 {
		t.Errorf("Expected 0.875 on every axis, got %+v", got)
	}
}

func TestEvaluate_ClampBeforeStart(t *testing.T) {
	lib := MustBuiltIn()
	for _, c := range lib.Clips() {
		start := Evaluate(c, 0)
		for _, tt := range []float64{-0.0001, -1, -1e9, math.Inf(-1), math.NaN()} {
			if got := Evaluate(c, tt); !got.Equal(start) {
				t.Errorf("%s: Evaluate(%v) = %v, want start pose %v", c.Name(), tt, got, start)
			}
		}
	}
}

func TestEvaluate_ClampAfterEnd(t *testing.T) {
	lib := MustBuiltIn()
	for _, c := range lib.Clips() {
		end := Evaluate(c, c.Duration())
		if !end.Equal(c.EndPose()) {
			t.Errorf("%s: Evaluate(duration) should be the last keyframe", c.Name())
		}
		for _, tt := range []float64{c.Duration() + 1e-9, c.Duration() + 1, 1e12, math.Inf(1)} {
			if got := Evaluate(c, tt); !got.Equal(end) {
				t.Errorf("%s: Evaluate(%v) = %v, want end pose %v", c.Name(), tt, got, end)
			}
		}
	}
}

func TestEvaluate_ContinuousAtKeyframes(t *testing.T) {
	const eps = 1e-9
	const tol = 1e-6

	lib := MustBuiltIn()
	for _, c := range lib.Clips() {
		for i := 1; i < c.Len()-1; i++ {
			kf := c.Keyframe(i)
			exact := Evaluate(c, kf.Time)
			before := Evaluate(c, kf.Time-eps)
			after := Evaluate(c, kf.Time+eps)

			for _, j := range c.Joints() {
				want := kf.Rotations[j]
				if exact.Rotation(j) != want {
					t.Errorf("%s kf %d %s: exact %+v, want %+v", c.Name(), i, j, exact.Rotation(j), want)
				}
				for _, got := range []Vec3{before.Rotation(j), after.Rotation(j)} {
					d := got.Sub(want)
					if abs(d.X) > tol || abs(d.Y) > tol || abs(d.Z) > tol {
						t.Errorf("%s kf %d %s: %+v too far from %+v", c.Name(), i, j, got, want)
					}
				}
			}
		}
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	c := MustBuiltIn().Clips()[0]
	for _, tt := range []float64{0.1, 0.77, 2.5, 4.999} {
		if !Evaluate(c, tt).Equal(Evaluate(c, tt)) {
			t.Errorf("Evaluate(%v) not deterministic", tt)
		}
	}
}

func TestPlayer_IdleNeutral(t *testing.T) {
	p := newTestPlayer(t)

	if p.State() != StateIdle {
		t.Errorf("Expected idle, got %s", p.State())
	}
	if !p.CurrentPose().Equal(NeutralPose()) {
		t.Error("Idle player with no history should report the neutral pose")
	}

	if p.Advance(10) {
		t.Error("Advance while idle should not complete anything")
	}
	if p.State() != StateIdle || p.Elapsed() != 0 {
		t.Error("Advance while idle must be a no-op")
	}
}

func TestPlayer_HelloScenario(t *testing.T) {
	var fired int
	p := newTestPlayer(t, WithOnComplete(func() { fired++ }))

	if err := p.Play(ClipHello); err != nil {
		t.Fatalf("Play(hello) failed: %v", err)
	}

	p.Advance(2.5)

	hello, _ := p.Library().Lookup(ClipHello)
	if got, want := p.CurrentPose(), Evaluate(hello, 2.5); !got.Equal(want) {
		t.Errorf("CurrentPose = %v, want %v", got, want)
	}

	if !p.Advance(3.0) {
		t.Error("Advance past duration should report completion")
	}
	if fired != 1 {
		t.Errorf("Expected 1 completion, got %d", fired)
	}
	if p.State() != StateIdle {
		t.Errorf("Expected idle after completion, got %s", p.State())
	}
	if p.Elapsed() != 0 {
		t.Errorf("Expected elapsed reset to 0, got %v", p.Elapsed())
	}
	if !p.CurrentPose().Equal(hello.RestPose()) {
		t.Error("Idle pose should be the rest pose of the last clip")
	}
}

func TestPlayer_CompletesExactlyOnce(t *testing.T) {
	var fired int
	var details []Completion
	p := newTestPlayer(t, WithOnComplete(func() { fired++ }))
	p.OnCompletion(func(c Completion) { details = append(details, c) })

	id, err := p.Start(ClipHello)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		p.Advance(1.0)
	}
	p.Advance(0.001)
	p.Advance(10)

	if fired != 1 {
		t.Errorf("Expected exactly 1 completion, got %d", fired)
	}
	if len(details) != 1 {
		t.Fatalf("Expected 1 completion detail, got %d", len(details))
	}
	if details[0].PlayID != id || details[0].Clip != ClipHello || details[0].Count != 1 {
		t.Errorf("Unexpected completion: %+v", details[0])
	}
	if p.State() != StateIdle || p.Elapsed() != 0 {
		t.Errorf("Expected idle at 0, got %s at %v", p.State(), p.Elapsed())
	}
}

func TestPlayer_HugeDelta(t *testing.T) {
	var fired int
	p := newTestPlayer(t, WithOnComplete(func() { fired++ }))

	_ = p.Play(ClipThankYou)
	p.Advance(math.MaxFloat64)

	if fired != 1 || p.State() != StateIdle {
		t.Errorf("Huge delta should complete once, fired=%d state=%s", fired, p.State())
	}
}

func TestPlayer_NegativeDelta(t *testing.T) {
	p := newTestPlayer(t)
	_ = p.Play(ClipHello)

	p.Advance(1)
	p.Advance(-0.5)
	p.Advance(math.NaN())

	if p.Elapsed() != 1 {
		t.Errorf("Negative and NaN deltas must not move time, elapsed=%v", p.Elapsed())
	}
}

func TestPlayer_Restart(t *testing.T) {
	var fired int
	p := newTestPlayer(t, WithOnComplete(func() { fired++ }))

	_ = p.Play(ClipHello)
	p.Advance(4)

	if err := p.Play(ClipThankYou); err != nil {
		t.Fatalf("Play(thank-you) failed: %v", err)
	}
	if p.Elapsed() != 0 {
		t.Errorf("Restart should reset elapsed, got %v", p.Elapsed())
	}
	if c := p.ActiveClip(); c == nil || c.Name() != ClipThankYou {
		t.Errorf("Expected thank-you active, got %v", c)
	}

	p.Advance(1.5)
	thanks, _ := p.Library().Lookup(ClipThankYou)
	if !p.CurrentPose().Equal(Evaluate(thanks, 1.5)) {
		t.Error("Pose after restart should come from the new clip only")
	}

	// hello would have finished at 5s; thank-you runs until 6s.
	p.Advance(1)
	if fired != 0 {
		t.Errorf("Interrupted clip must not complete, fired=%d", fired)
	}
}

func TestPlayer_UnknownClip(t *testing.T) {
	p := newTestPlayer(t)

	_ = p.Play(ClipHello)
	p.Advance(1.25)
	before := p.Status()

	err := p.Play("nonexistent")
	if !errors.Is(err, ErrUnknownClip) {
		t.Errorf("Expected ErrUnknownClip, got %v", err)
	}

	after := p.Status()
	if before != after {
		t.Errorf("Unknown clip changed state: %+v -> %+v", before, after)
	}
}

func TestPlayer_Stop(t *testing.T) {
	var fired int
	p := newTestPlayer(t, WithOnComplete(func() { fired++ }))

	if p.Stop() {
		t.Error("Stop while idle should report false")
	}

	_ = p.Play(ClipThankYou)
	p.Advance(2)
	if !p.Stop() {
		t.Error("Stop while playing should report true")
	}

	if fired != 0 {
		t.Error("Stop must not fire completion")
	}
	thanks, _ := p.Library().Lookup(ClipThankYou)
	if !p.CurrentPose().Equal(thanks.RestPose()) {
		t.Error("Stopped player should hold the rest pose")
	}
}

func TestPlayer_Status(t *testing.T) {
	p := newTestPlayer(t)

	id, _ := p.Start(ClipHello)
	p.Advance(1.25)

	st := p.Status()
	if st.State != StatePlaying || st.Clip != ClipHello || st.PlayID != id {
		t.Errorf("Unexpected status: %+v", st)
	}
	if st.Progress != 0.25 {
		t.Errorf("Expected progress 0.25, got %v", st.Progress)
	}
}

func TestPlayer_CallbackMayReenter(t *testing.T) {
	p := newTestPlayer(t)
	p.OnComplete(func() {
		// Chaining from the callback must not deadlock.
		_ = p.Play(ClipThankYou)
	})

	_ = p.Play(ClipHello)
	p.Advance(6)

	if c := p.ActiveClip(); c == nil || c.Name() != ClipThankYou {
		t.Errorf("Expected chained thank-you, got %v", c)
	}
}

func TestPlayer_Concurrent(t *testing.T) {
	p := newTestPlayer(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				switch n % 4 {
				case 0:
					_ = p.Play(ClipHello)
				case 1:
					p.Advance(0.1)
				case 2:
					_ = p.CurrentPose()
				case 3:
					_ = p.Status()
				}
			}
		}(i)
	}
	wg.Wait()

	if el := p.Elapsed(); el < 0 || el > 5 {
		t.Errorf("Elapsed out of range: %v", el)
	}
}

func TestPlaybackState_String(t *testing.T) {
	if StateIdle.String() != "idle" || StatePlaying.String() != "playing" {
		t.Error("Unexpected state names")
	}
	if PlaybackState(42).String() != "unknown" {
		t.Error("Expected unknown for out-of-range state")
	}
}

func TestPlaybackState_UnmarshalText(t *testing.T) {
	var s PlaybackState
	if err := s.UnmarshalText([]byte("playing")); err != nil || s != StatePlaying {
		t.Errorf("playing decoded as %s (err %v)", s, err)
	}
	if err := s.UnmarshalText([]byte("idle")); err != nil || s != StateIdle {
		t.Errorf("idle decoded as %s (err %v)", s, err)
	}
	s = StatePlaying
	if err := s.UnmarshalText([]byte("paused")); err == nil {
		t.Error("Expected error for unknown state name")
	}
	if s != StatePlaying {
		t.Errorf("Failed decode changed state to %s", s)
	}
}

func TestPlayer_StartIfIdle(t *testing.T) {
	p := newTestPlayer(t)

	id, err := p.StartIfIdle(ClipHello)
	if err != nil {
		t.Fatalf("StartIfIdle failed: %v", err)
	}

	if _, err := p.StartIfIdle(ClipThankYou); !errors.Is(err, ErrBusy) {
		t.Fatalf("Expected ErrBusy, got %v", err)
	}
	if st := p.Status(); st.Clip != ClipHello || st.PlayID != id {
		t.Errorf("Busy start replaced playback: %+v", st)
	}

	if _, err := p.StartIfIdle("goodbye"); !errors.Is(err, ErrUnknownClip) {
		t.Errorf("Expected ErrUnknownClip, got %v", err)
	}

	p.Advance(5)
	if _, err := p.StartIfIdle(ClipThankYou); err != nil {
		t.Errorf("StartIfIdle after completion failed: %v", err)
	}
}

func TestPlayer_StartIfIdleConcurrent(t *testing.T) {
	p := newTestPlayer(t)

	const n = 50
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		ids   []string
		busy  int
		start = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			id, err := p.StartIfIdle(ClipHello)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ids = append(ids, id)
			case errors.Is(err, ErrBusy):
				busy++
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(ids) != 1 || busy != n-1 {
		t.Fatalf("Expected 1 start and %d busy, got %d and %d", n-1, len(ids), busy)
	}

	var completed []string
	p.OnCompletion(func(c Completion) { completed = append(completed, c.PlayID) })
	p.Advance(5)
	if len(completed) != 1 || completed[0] != ids[0] {
		t.Errorf("Accepted playthrough should complete, got %v", completed)
	}
}

func TestClip_Start(t *testing.T) {
	c := rampClip(t)
	if !c.RestPose().Equal(Evaluate(c, c.Start())) {
		t.Error("Pose at Start should be the rest pose")
	}
	p := c.RestPose()
	p.Rotations[JointHead] = V(9, 9, 9)
	if c.RestPose().Equal(p) {
		t.Error("RestPose should return an independent copy")
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
