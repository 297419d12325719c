package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned for unknown or ended sessions.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrRateLimited is returned when a session sends messages too fast.
	ErrRateLimited = errors.New("session: rate limit exceeded")
)

// ValidationError is bad prospect input. It is shown inline next to the
// field and never logged as a fault.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("session: invalid %s: %s", e.Field, e.Message)
}

// StateError is an internal invariant violation.
type StateError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("session: %s %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }
