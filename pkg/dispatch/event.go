package dispatch

import "github.com/ihi-server/ihi/pkg/protocol"

// Session is the originating connection of an inbound message, as seen by
// handlers. The transport owns it.
type Session interface {
	ID() string
	SendMessage(msg *protocol.OutgoingMessage) error
}

// Event is one inbound message travelling through the chain.
type Event struct {
	Message *protocol.IncomingMessage
	Session Session

	tier      Priority
	cancelled bool
}

// Cancel stops every tier after the current one. It is undone if the
// calling handler then returns an error or panics.
func (e *Event) Cancel() {
	e.cancelled = true
}

// Cancelled reports whether a handler cancelled the event.
func (e *Event) Cancelled() bool {
	return e.cancelled
}

// Tier returns the tier currently running.
func (e *Event) Tier() Priority {
	return e.tier
}
