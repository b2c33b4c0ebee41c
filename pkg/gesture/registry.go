package gesture

import (
	"fmt"
	"sort"
)

// Library is the read-only catalog of clips, keyed by name.
//
// A Library is never mutated after NewLibrary returns, so any number of
// goroutines may read it without locking.
type Library struct {
	clips map[string]*Clip
	names []string
}

// NewLibrary builds a library from validated clips.
// Duplicate names and nil clips are rejected.
func NewLibrary(clips ...*Clip) (*Library, error) {
	l := &Library{
		clips: make(map[string]*Clip, len(clips)),
		names: make([]string, 0, len(clips)),
	}

	for i, c := range clips {
		if c == nil {
			return nil, fmt.Errorf("%w: clip %d is nil", ErrInvalidClip, i)
		}
		if _, ok := l.clips[c.Name()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateClip, c.Name())
		}
		l.clips[c.Name()] = c
		l.names = append(l.names, c.Name())
	}
	sort.Strings(l.names)

	return l, nil
}

// Lookup retrieves a clip by name.
func (l *Library) Lookup(name string) (*Clip, error) {
	c, ok := l.clips[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClip, name)
	}
	return c, nil
}

// Has reports whether name is registered.
func (l *Library) Has(name string) bool {
	_, ok := l.clips[name]
	return ok
}

// Names returns all registered clip names, sorted alphabetically.
func (l *Library) Names() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Len returns the number of registered clips.
func (l *Library) Len() int {
	return len(l.clips)
}

// Clips returns every clip in name order.
func (l *Library) Clips() []*Clip {
	out := make([]*Clip, 0, len(l.names))
	for _, n := range l.names {
		out = append(out, l.clips[n])
	}
	return out
}
