package orchestrator

import (
	"errors"
	"fmt"
)

// ErrInternal is the opaque error surfaced to callers when an
// invocation fails after validation. The specific cause is logged and
// triggers rollback, but is not exposed; callers cannot act on it.
var ErrInternal = errors.New("internal error")

// InvalidOperationError reports an illegal state transition, such as
// invoking a build that is already active or stopping one that is not.
// It is surfaced unchanged so callers can present the reason.
type InvalidOperationError struct {
	Reason string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("invalid operation: %s", e.Reason)
}

// IsInvalidOperation reports whether err is an InvalidOperationError.
func IsInvalidOperation(err error) bool {
	var ive *InvalidOperationError
	return errors.As(err, &ive)
}

func invalidOperation(format string, args ...any) error {
	return &InvalidOperationError{Reason: fmt.Sprintf(format, args...)}
}
