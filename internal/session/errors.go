package session

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Backend when a named record does not exist.
var ErrNotFound = errors.New("record not found")

// PersistenceError reports a failed durable read or write of the session.
// The in-memory session stays the working copy, so the caller may retry.
type PersistenceError struct {
	Op        string // "load", "save" or "delete"
	SessionID string
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("session %s: %s failed: %v", e.SessionID, e.Op, e.Err)
	}
	return fmt.Sprintf("session %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsPersistenceError reports whether err wraps a *PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
