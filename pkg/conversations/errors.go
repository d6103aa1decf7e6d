package conversations

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState means a requested status is not one of the four values.
	ErrInvalidState = errors.New("invalid conversation state")

	// ErrIllegalTransition means the target is not reachable from the current status.
	ErrIllegalTransition = errors.New("illegal conversation transition")

	// ErrConcurrentModification means a conditional update lost a race.
	// Safe to retry once.
	ErrConcurrentModification = errors.New("conversation modified concurrently")
)

// InvalidStateError carries the rejected value
type InvalidStateError struct {
	Value string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %q", ErrInvalidState, e.Value)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// TransitionError carries the rejected edge
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrIllegalTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }
