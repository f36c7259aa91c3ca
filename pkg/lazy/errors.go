package lazy

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrLoadFailed is matched by every *LoadError.
	ErrLoadFailed = errors.New("lazy: load failed")

	// ErrFlushFailed is matched by every *FlushError.
	ErrFlushFailed = errors.New("lazy: flush failed")
)

// LoadError reports a loader failure for a named attribute.
type LoadError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("lazy: load %s: %v", e.Name, e.Err)
}

// Unwrap returns both ErrLoadFailed and the underlying cause.
func (e *LoadError) Unwrap() []error {
	return []error{ErrLoadFailed, e.Err}
}

// FlushError reports a write-back failure for a named attribute.
type FlushError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *FlushError) Error() string {
	return fmt.Sprintf("lazy: flush %s: %v", e.Name, e.Err)
}

// Unwrap returns both ErrFlushFailed and the underlying cause.
func (e *FlushError) Unwrap() []error {
	return []error{ErrFlushFailed, e.Err}
}
