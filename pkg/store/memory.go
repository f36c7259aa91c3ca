package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store. It is the default backend and the one
// used in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[string]map[string][]byte
	closed   bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entities: make(map[string]map[string][]byte)}
}

// Get implements Store. The returned slice is a copy.
func (m *MemoryStore) Get(ctx context.Context, entity, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	v, ok := m.entities[entity][key]
	if !ok {
		return nil, keyErr("get", entity, key, ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

// Set implements Store. The value is copied.
func (m *MemoryStore) Set(ctx context.Context, entity, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	attrs := m.entities[entity]
	if attrs == nil {
		attrs = make(map[string][]byte)
		m.entities[entity] = attrs
	}
	attrs[key] = append([]byte{}, value...)
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, entity, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if attrs := m.entities[entity]; attrs != nil {
		delete(attrs, key)
		if len(attrs) == 0 {
			delete(m.entities, entity)
		}
	}
	return nil
}

// Close implements Store. Closing twice is a no-op.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.entities = nil
	return nil
}

// Count returns the number of entities with at least one attribute.
// This is for monitoring/testing purposes.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}
