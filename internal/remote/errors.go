package remote

import (
	"errors"
	"fmt"
)

// TransportError reports a failure to reach the inventory store or to read
// its response: network errors, timeouts, non-2xx statuses.
type TransportError struct {
	Op         string // "catalog", "save" or "commit"
	StatusCode int    // 0 when no response arrived
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// LogicalError reports a response the store produced on purpose to signal
// failure ({"ok": false, "error": ...}) or a body it could not have meant.
type LogicalError struct {
	Op      string
	Message string
}

func (e *LogicalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// IsTransportError reports whether err wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsLogicalError reports whether err wraps a *LogicalError.
func IsLogicalError(err error) bool {
	var le *LogicalError
	return errors.As(err, &le)
}
