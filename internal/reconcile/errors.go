package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrNothingToCommit is returned when no counted title survives payload
	// building. No request is sent.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrUnknownTitle is returned when a title is not in the loaded catalog.
	ErrUnknownTitle = errors.New("title not found")
)

// ConflictError reports an operation that disagrees with the current
// catalog or session: an unknown title, or an empty commit.
type ConflictError struct {
	Title string // empty for session-wide conflicts
	Err   error
}

func (e *ConflictError) Error() string {
	if e.Title == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%q: %v", e.Title, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// IsConflictError reports whether err wraps a *ConflictError.
func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
