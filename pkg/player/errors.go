package player

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrConstructionFailed is matched by every *ConstructionError.
	ErrConstructionFailed = errors.New("player: construction failed")

	// ErrInvalidMotto is returned when a motto is not valid UTF-8.
	ErrInvalidMotto = errors.New("player: motto must be valid UTF-8")

	// ErrNoSession is returned when sending to a player without a session.
	ErrNoSession = errors.New("player: no session attached")

	// ErrRoomNotLoaded is returned when moving into a room that is not loaded.
	ErrRoomNotLoaded = errors.New("player: room not loaded")

	// ErrUsernameTaken is returned by Register for a name already in use.
	ErrUsernameTaken = errors.New("player: username taken")
)

// ConstructionError reports a player that could not be built because its
// identifier does not resolve in the store.
type ConstructionError struct {
	// By is "id", "username" or "sso".
	By    string
	Value string
	Err   error
}

// Error implements the error interface.
func (e *ConstructionError) Error() string {
	return fmt.Sprintf("player: no player with %s %q: %v", e.By, e.Value, e.Err)
}

// Unwrap returns ErrConstructionFailed and the cause.
func (e *ConstructionError) Unwrap() []error {
	return []error{ErrConstructionFailed, e.Err}
}

// RangeError reports a stored attribute that does not fit its type.
type RangeError struct {
	Key   string
	Value int64
}

// Error implements the error interface.
func (e *RangeError) Error() string {
	return fmt.Sprintf("player: stored %s %d out of range", e.Key, e.Value)
}
