// Package lazy provides a load-on-first-access, write-back-on-mutation value
// holder for persisted entity attributes.
//
// A Value is in one of three states: unloaded, loaded-clean, loaded-dirty.
//
//	         Get (loader ok)          Set
//	unloaded ───────────────► clean ──────► dirty
//	    ▲                       ▲             │
//	    │        Reset          │  Flush ok   │
//	    └───────────────────────┴─────────────┘
//
// A Value performs no locking. It belongs to one entity and is accessed from
// that entity's single processing context.
package lazy

import "context"

// Loader materializes a value from the backing store.
type Loader[T any] func(ctx context.Context) (T, error)

// Writer persists a value to the backing store.
type Writer[T any] func(ctx context.Context, v T) error

// Value is a lazily loaded, dirty-tracked attribute.
type Value[T any] struct {
	name   string
	load   Loader[T]
	value  T
	loaded bool
	dirty  bool
}

// New creates an unloaded Value. name identifies the attribute in errors.
func New[T any](name string, load Loader[T]) *Value[T] {
	return &Value[T]{name: name, load: load}
}

// Name returns the attribute name.
func (v *Value[T]) Name() string {
	return v.name
}

// Get returns the value, invoking the loader if it is not loaded.
// On loader failure the Value stays unloaded and the next Get retries.
func (v *Value[T]) Get(ctx context.Context) (T, error) {
	if v.loaded {
		return v.value, nil
	}

	loaded, err := v.load(ctx)
	if err != nil {
		var zero T
		return zero, &LoadError{Name: v.name, Err: err}
	}

	v.value = loaded
	v.loaded = true
	v.dirty = false
	return v.value, nil
}

// Set replaces the value and marks it dirty. The store is not touched.
func (v *Value[T]) Set(value T) {
	v.value = value
	v.loaded = true
	v.dirty = true
}

// Reset forces the next Get to reload, discarding any unflushed change.
func (v *Value[T]) Reset() {
	var zero T
	v.value = zero
	v.loaded = false
	v.dirty = false
}

// Peek returns the cached value without loading.
// ok is false when the value is not loaded.
func (v *Value[T]) Peek() (value T, ok bool) {
	return v.value, v.loaded
}

// Loaded reports whether the value is materialized.
func (v *Value[T]) Loaded() bool {
	return v.loaded
}

// Dirty reports whether the value changed since the last load or flush.
func (v *Value[T]) Dirty() bool {
	return v.dirty
}

// MarkClean clears the dirty flag without writing.
func (v *Value[T]) MarkClean() {
	v.dirty = false
}

// Flush writes the value back if it is dirty. A failed write keeps it dirty.
func (v *Value[T]) Flush(ctx context.Context, write Writer[T]) error {
	if !v.dirty {
		return nil
	}
	if err := write(ctx, v.value); err != nil {
		return &FlushError{Name: v.name, Err: err}
	}
	v.dirty = false
	return nil
}
