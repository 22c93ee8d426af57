package domain

import (
	"errors"
	"fmt"
)

// ErrMalformedInput marks requests rejected before any business logic runs.
var ErrMalformedInput = errors.New("malformed input")

// MalformedInputError describes why a request body was rejected.
type MalformedInputError struct {
	Reason string
}

func (e MalformedInputError) Error() string {
	if e.Reason == "" {
		return ErrMalformedInput.Error()
	}
	return ErrMalformedInput.Error() + ": " + e.Reason
}

// Is lets errors.Is match ErrMalformedInput.
func (e MalformedInputError) Is(target error) bool {
	return target == ErrMalformedInput
}

// Malformed returns a MalformedInputError with a formatted reason.
func Malformed(format string, args ...any) error {
	return MalformedInputError{Reason: fmt.Sprintf(format, args...)}
}

// ErrNotFound is returned when a record addressed by id does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// ErrAlreadyExists is returned when a create targets an id that is taken.
type ErrAlreadyExists struct {
	Entity EntityType
	ID     string
}

func (e ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.ID)
}
