package dispatch

import (
	"errors"
	"fmt"
)

// ErrHandlerFailed is matched by every *HandlerError.
var ErrHandlerFailed = errors.New("dispatch: handler failed")

// HandlerError reports a handler that returned an error or panicked.
// Exactly one of Err and Panic is set.
type HandlerError struct {
	SessionID string
	MessageID uint32
	Priority  Priority
	Err       error
	Panic     any
	Stack     []byte
}

// Error returns the error message.
func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("dispatch: handler panic in session %s, message %d, tier %s: %v",
			e.SessionID, e.MessageID, e.Priority, e.Panic)
	}
	return fmt.Sprintf("dispatch: handler error in session %s, message %d, tier %s: %v",
		e.SessionID, e.MessageID, e.Priority, e.Err)
}

// Unwrap returns ErrHandlerFailed and, for returned errors, the cause.
func (e *HandlerError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrHandlerFailed, e.Err}
	}
	return []error{ErrHandlerFailed}
}

// Kind returns "panic" or "error".
func (e *HandlerError) Kind() string {
	if e.Panic != nil {
		return "panic"
	}
	return "error"
}
