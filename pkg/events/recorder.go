package events

import (
	"context"
	"sync"
)

// Record is one captured event.
type Record struct {
	Name    string
	Payload any
}

// Recorder keeps every event and error in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Record
	errors []error
}

// Fire implements Sink.
func (r *Recorder) Fire(_ context.Context, name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Record{Name: name, Payload: payload})
}

// Error implements Sink.
func (r *Recorder) Error(_ context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.events...)
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name
	}
	return names
}

// Errors returns a copy of the recorded errors.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors...)
}
