package statebus

import (
	"errors"
	"fmt"

	"github.com/jilio/statebus/internal/dotpath"
)

var (
	// ErrDispatchHandlerMissing is returned by Dispatch for a CustomAction
	// without a Handler.
	ErrDispatchHandlerMissing = errors.New("statebus: dispatch handler missing")

	// ErrMiddlewareRejected matches every *MiddlewareError.
	ErrMiddlewareRejected = errors.New("statebus: middleware rejected commit")

	// ErrInvalidPath is returned for writes to an empty or malformed path.
	ErrInvalidPath = dotpath.ErrInvalidPath

	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("statebus: container closed")
)

// MiddlewareError reports a commit aborted by the middleware. The previous
// value stays current and the action is not published.
type MiddlewareError struct {
	Action string
	Err    error
}

func (e *MiddlewareError) Error() string {
	return fmt.Sprintf("statebus: middleware rejected %q: %v", e.Action, e.Err)
}

// Unwrap lets errors.Is match both ErrMiddlewareRejected and the cause.
func (e *MiddlewareError) Unwrap() []error {
	return []error{ErrMiddlewareRejected, e.Err}
}
