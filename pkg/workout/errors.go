package workout

import "errors"

var (
	// ErrNotFound is returned when a workout is not registered.
	ErrNotFound = errors.New("workout not found")

	// ErrInvalidDefinition is returned when a workout file is malformed.
	ErrInvalidDefinition = errors.New("invalid workout definition")
)
