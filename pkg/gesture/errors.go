package gesture

import "errors"

var (
	// ErrUnknownClip is returned when a clip name is not registered.
	ErrUnknownClip = errors.New("unknown clip")

	// ErrInvalidClip is returned when clip data breaks a construction invariant.
	ErrInvalidClip = errors.New("invalid clip data")

	// ErrDuplicateClip is returned when two clips share a name in one library.
	ErrDuplicateClip = errors.New("duplicate clip name")

	// ErrBusy is returned by StartIfIdle while a clip is playing.
	ErrBusy = errors.New("a clip is already playing")
)
