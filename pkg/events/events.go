// Package events carries side-channel notifications out of the session layer.
//
// Sinks are fire-and-forget: nothing the core does depends on what a sink
// does with an event. The one exception is Listeners, which runs subscribers
// synchronously so gameplay can cancel a Cancellable payload before the
// action it describes happens.
package events

import (
	"context"
	"sync"

	"github.com/ihi-server/ihi/pkg/world"
)

// Event names fired by the session layer.
const (
	MoveBefore    = "roomunit_move:before"
	MoveAfter     = "roomunit_move:after"
	HandlerFailed = "handler:failed"
	PlayerLogin   = "player:login"
	PlayerLogout  = "player:logout"
)

// Sink receives named events and handler failures.
type Sink interface {
	Fire(ctx context.Context, name string, payload any)
	Error(ctx context.Context, err error)
}

// Cancellable is implemented by payloads a listener may veto.
type Cancellable interface {
	Cancel()
	Cancelled() bool
}

// MoveEvent is the payload of MoveBefore and MoveAfter.
type MoveEvent struct {
	EntityID uint32         `json:"entity_id"`
	From     world.Position `json:"from"`
	To       world.Position `json:"to"`

	cancelled bool
}

// Cancel vetoes the move. It has no effect on MoveAfter.
func (e *MoveEvent) Cancel() {
	e.cancelled = true
}

// Cancelled reports whether a listener vetoed the move.
func (e *MoveEvent) Cancelled() bool {
	return e.cancelled
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Fire(context.Context, string, any) {}
func (discard) Error(context.Context, error)      {}

// Multi fans every event out to each sink in order.
type Multi []Sink

// Fire implements Sink.
func (m Multi) Fire(ctx context.Context, name string, payload any) {
	for _, s := range m {
		s.Fire(ctx, name, payload)
	}
}

// Error implements Sink.
func (m Multi) Error(ctx context.Context, err error) {
	for _, s := range m {
		s.Error(ctx, err)
	}
}

// Listener observes one named event.
type Listener func(ctx context.Context, payload any)

// Listeners runs in-process subscribers synchronously, in subscription order.
// It is safe for concurrent use.
type Listeners struct {
	mu     sync.RWMutex
	byName map[string][]Listener
	errs   []func(ctx context.Context, err error)
}

// NewListeners creates an empty subscriber set.
func NewListeners() *Listeners {
	return &Listeners{byName: make(map[string][]Listener)}
}

// On subscribes fn to name.
func (l *Listeners) On(name string, fn Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byName[name] = append(l.byName[name], fn)
}

// OnError subscribes fn to handler failures.
func (l *Listeners) OnError(fn func(ctx context.Context, err error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, fn)
}

// Fire implements Sink.
func (l *Listeners) Fire(ctx context.Context, name string, payload any) {
	l.mu.RLock()
	fns := l.byName[name]
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(ctx, payload)
	}
}

// Error implements Sink.
func (l *Listeners) Error(ctx context.Context, err error) {
	l.mu.RLock()
	fns := l.errs
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(ctx, err)
	}
}
