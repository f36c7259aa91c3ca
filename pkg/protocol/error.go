package protocol

import (
	"errors"
	"fmt"
)

// ErrInvalidState is the parent of every lifecycle error raised by
// OutgoingMessage. Use errors.Is(err, ErrInvalidState) to detect any of them.
var ErrInvalidState = errors.New("protocol: invalid message state")

// Lifecycle errors. Each wraps ErrInvalidState.
var (
	// ErrNotInitialized is returned when a message is used before Initialize.
	ErrNotInitialized = fmt.Errorf("%w: message not initialized", ErrInvalidState)

	// ErrAlreadyInitialized is returned when Initialize is called twice.
	ErrAlreadyInitialized = fmt.Errorf("%w: message already initialized", ErrInvalidState)

	// ErrReadOnly is returned when a compiled message is mutated.
	ErrReadOnly = fmt.Errorf("%w: message is compiled and read-only", ErrInvalidState)

	// ErrNotCompiled is returned when the frame is read before Compile.
	ErrNotCompiled = fmt.Errorf("%w: message not compiled", ErrInvalidState)
)

// ErrEncoding is the parent of every *EncodingError.
var ErrEncoding = errors.New("protocol: encoding error")

// EncodingError reports a value that cannot be represented on the wire, or
// bytes that are not a valid encoding.
type EncodingError struct {
	Op     string // Codec operation, e.g. "EncodeB64"
	Reason string
}

// Error implements the error interface.
func (e *EncodingError) Error() string {
	return fmt.Sprintf("protocol: %s: %s", e.Op, e.Reason)
}

// Unwrap returns ErrEncoding so callers can match with errors.Is.
func (e *EncodingError) Unwrap() error {
	return ErrEncoding
}

func encodingErrorf(op, format string, args ...any) *EncodingError {
	return &EncodingError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
