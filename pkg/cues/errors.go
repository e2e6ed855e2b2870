package cues

import "errors"

var (
	// ErrInvalidRule is returned when a cue rule is malformed.
	ErrInvalidRule = errors.New("invalid cue rule")

	// ErrDuplicateRule is returned when two rules share an ID.
	ErrDuplicateRule = errors.New("duplicate cue rule")

	// ErrInvalidHysteresis is returned when show or hide frame counts are
	// less than one.
	ErrInvalidHysteresis = errors.New("invalid hysteresis frame counts")
)
