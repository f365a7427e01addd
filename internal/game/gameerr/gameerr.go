// Package gameerr defines the error taxonomy shared by the game core.
//
// Every error returned across a component boundary wraps exactly one of the
// sentinels below so that the transport layer can decide, with errors.Is,
// whether to reject the action, ask the client to retry, or tear down state.
package gameerr

import (
	"errors"
	"fmt"
)

var (
	// ErrArgument marks a value rejected at construction or at a call boundary.
	// The offending object never exists in an invalid state.
	ErrArgument = errors.New("invalid argument")
	// ErrState marks an operation that is illegal in the current state, such as a
	// second declaration. The already committed fact is left unchanged.
	ErrState = errors.New("invalid state")
	// ErrTimeout marks a bounded wait that expired. Callers may retry.
	ErrTimeout = errors.New("timed out")
)

// Argumentf returns an error wrapping ErrArgument.
func Argumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrArgument, fmt.Sprintf(format, args...))
}

// Statef returns an error wrapping ErrState.
func Statef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

// Timeoutf returns an error wrapping ErrTimeout.
func Timeoutf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTimeout, fmt.Sprintf(format, args...))
}

// Kind classifies err into one of the taxonomy names.
//
// Postcondition: Returns "argument", "state", "timeout", or "internal".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrArgument):
		return "argument"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "internal"
	}
}

// Rejectable reports whether err is a protocol violation that should be surfaced to
// the client as a rejected action without tearing down its session.
func Rejectable(err error) bool {
	return errors.Is(err, ErrArgument) || errors.Is(err, ErrState)
}
