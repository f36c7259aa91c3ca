package player

import (
	"context"

	"github.com/ihi-server/ihi/pkg/store"
)

// InstanceStorage holds values for the lifetime of one Player value.
// Nothing in it is persisted.
type InstanceStorage struct {
	values map[string]any
}

// NewInstanceStorage creates empty storage.
func NewInstanceStorage() *InstanceStorage {
	return &InstanceStorage{values: make(map[string]any)}
}

// Get returns the value stored under key.
func (s *InstanceStorage) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores v under key.
func (s *InstanceStorage) Set(key string, v any) {
	s.values[key] = v
}

// Delete removes key.
func (s *InstanceStorage) Delete(key string) {
	delete(s.values, key)
}

// Len returns the number of stored values.
func (s *InstanceStorage) Len() int {
	return len(s.values)
}

// persistentPrefix keeps plugin data apart from the player's own attributes.
const persistentPrefix = "data."

// PersistentStorage reads and writes the store directly under the player's
// entity. Values survive reconnects.
type PersistentStorage struct {
	store  store.Store
	entity string
}

// Get returns the value stored under key, or store.ErrNotFound.
func (s *PersistentStorage) Get(ctx context.Context, key string) ([]byte, error) {
	return s.store.Get(ctx, s.entity, persistentPrefix+key)
}

// Set stores value under key.
func (s *PersistentStorage) Set(ctx context.Context, key string, value []byte) error {
	return s.store.Set(ctx, s.entity, persistentPrefix+key, value)
}

// Delete removes key.
func (s *PersistentStorage) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, s.entity, persistentPrefix+key)
}
