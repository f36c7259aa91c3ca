// Package store defines the attribute store consumed by entities and its
// backends.
//
// A store maps (entity, key) to an opaque byte value. Entities are named by
// string so that player ids ("42") and lookup indexes ("username",
// "sso") share one keyspace. Retries and backoff are the backend's concern;
// callers see plain errors.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrStoreClosed is returned when a closed store is used.
	ErrStoreClosed = errors.New("store: closed")
)

// Store persists entity attributes. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value of key for entity, or ErrNotFound.
	Get(ctx context.Context, entity, key string) ([]byte, error)

	// Set creates or overwrites the value of key for entity.
	Set(ctx context.Context, entity, key string, value []byte) error

	// Delete removes key for entity. Deleting a missing key is not an error.
	Delete(ctx context.Context, entity, key string) error

	// Close releases the resources held by the store.
	Close() error
}

// KeyError adds the entity and key to a backend error.
type KeyError struct {
	Op     string
	Entity string
	Key    string
	Err    error
}

// Error implements the error interface.
func (e *KeyError) Error() string {
	return fmt.Sprintf("store: %s %s/%s: %v", e.Op, e.Entity, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *KeyError) Unwrap() error {
	return e.Err
}

func keyErr(op, entity, key string, err error) error {
	if err == nil {
		return nil
	}
	return &KeyError{Op: op, Entity: entity, Key: key, Err: err}
}
