package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ihi-server/ihi/internal/metrics"
	"github.com/ihi-server/ihi/pkg/events"
	"github.com/ihi-server/ihi/pkg/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "ihi/dispatch"

// Handler processes one event. A returned error is logged and reported but
// does not cancel the event or stop later handlers.
type Handler func(ctx context.Context, ev *Event) error

// Result summarizes one Dispatch.
type Result struct {
	// Cancelled is true if a handler cancelled the event.
	Cancelled bool

	// Handled counts handlers that ran to completion without error.
	Handled int

	// Failures counts handlers that returned an error or panicked.
	Failures int
}

type entry struct {
	id      uint64
	handler Handler
}

// tiers holds the handlers of one message id, indexed by Priority.
type tiers [numTiers][]entry

// Chain routes inbound messages to handlers by message id and tier.
//
// Registration is safe for concurrent use with Dispatch. A Dispatch works on
// a snapshot of the handlers registered when it starts.
type Chain struct {
	mu       sync.RWMutex
	handlers map[uint32]*tiers
	nextID   uint64

	logger  *slog.Logger
	sink    events.Sink
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Chain.
type Option func(*Chain)

// WithLogger sets the logger for handler failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		c.logger = logger
	}
}

// WithSink sets where handler failures are reported.
func WithSink(sink events.Sink) Option {
	return func(c *Chain) {
		c.sink = sink
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Chain) {
		c.metrics = m
	}
}

// WithTracerName sets the tracer name resolved from the global provider.
func WithTracerName(name string) Option {
	return func(c *Chain) {
		c.tracer = otel.Tracer(name)
	}
}

// NewChain creates an empty Chain.
func NewChain(opts ...Option) *Chain {
	c := &Chain{
		handlers: make(map[uint32]*tiers),
		logger:   slog.Default(),
		sink:     events.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(defaultTracerName)
	}
	return c
}

// Registration identifies one registered handler.
type Registration struct {
	chain     *Chain
	messageID uint32
	priority  Priority
	id        uint64
}

// MessageID returns the message id the handler is bound to.
func (r Registration) MessageID() uint32 { return r.messageID }

// Priority returns the tier the handler is bound to.
func (r Registration) Priority() Priority { return r.priority }

// Remove unregisters the handler. It reports whether the handler was still
// registered.
func (r Registration) Remove() bool {
	if r.chain == nil {
		return false
	}
	return r.chain.unregister(r)
}

// Register binds handler to messageID at the given tier. Handlers of one
// tier run in registration order.
//
// It panics if priority is not a valid tier or handler is nil.
func (c *Chain) Register(messageID uint32, priority Priority, handler Handler) Registration {
	if !priority.Valid() {
		panic(fmt.Sprintf("dispatch: invalid priority %d", priority))
	}
	if handler == nil {
		panic("dispatch: nil handler")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.handlers[messageID]
	if t == nil {
		t = &tiers{}
		c.handlers[messageID] = t
	}
	if priority == DefaultAction && len(t[DefaultAction]) > 0 {
		c.logger.Warn("multiple default actions registered",
			"message_id", messageID,
			"count", len(t[DefaultAction])+1)
	}

	c.nextID++
	t[priority] = append(t[priority], entry{id: c.nextID, handler: handler})

	return Registration{chain: c, messageID: messageID, priority: priority, id: c.nextID}
}

// Unregister removes a handler. Equivalent to r.Remove().
func (c *Chain) Unregister(r Registration) bool {
	return c.unregister(r)
}

func (c *Chain) unregister(r Registration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.handlers[r.messageID]
	if t == nil {
		return false
	}
	list := t[r.priority]
	for i, e := range list {
		if e.id != r.id {
			continue
		}
		// Copy so in-flight snapshots keep their view.
		next := make([]entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		t[r.priority] = next

		if t.empty() {
			delete(c.handlers, r.messageID)
		}
		return true
	}
	return false
}

func (t *tiers) empty() bool {
	for _, list := range t {
		if len(list) > 0 {
			return false
		}
	}
	return true
}

// Handlers returns the number of handlers registered for messageID at tier.
func (c *Chain) Handlers(messageID uint32, priority Priority) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t := c.handlers[messageID]
	if t == nil || !priority.Valid() {
		return 0
	}
	return len(t[priority])
}

func (c *Chain) snapshot(messageID uint32) (tiers, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t := c.handlers[messageID]
	if t == nil {
		return tiers{}, false
	}
	return *t, true
}

// Dispatch runs msg through the tiers HighPriority, LowPriority,
// DefaultAction, Watcher. After each tier it stops if the event was
// cancelled. Handler failures are isolated: they are logged, reported to the
// sink and counted, any Cancel made by the failing handler is undone, and
// dispatch continues.
//
// Dispatch blocks until every selected handler returns. It must be called
// from the session's processing context so that messages of one session are
// handled one at a time.
func (c *Chain) Dispatch(ctx context.Context, sess Session, msg *protocol.IncomingMessage) Result {
	start := time.Now()

	var sessionID string
	if sess != nil {
		sessionID = sess.ID()
	}

	ctx, span := c.tracer.Start(ctx, "dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.Int64("ihi.message_id", int64(msg.ID)),
			attribute.String("ihi.session_id", sessionID),
		),
	)
	defer span.End()

	var res Result
	handlers, ok := c.snapshot(msg.ID)
	if !ok {
		c.logger.Debug("unhandled message", "session_id", sessionID, "message_id", msg.ID)
		c.metrics.ObserveDispatch(msg.ID, metrics.OutcomeUnhandled, time.Since(start).Seconds())
		return res
	}

	ev := &Event{Message: msg, Session: sess}
	for _, tier := range Order {
		ev.tier = tier
		for _, e := range handlers[tier] {
			was := ev.cancelled
			if herr := c.safeExecute(ctx, e.handler, ev, sessionID); herr != nil {
				// A failed handler's cancellation does not count.
				ev.cancelled = was
				res.Failures++
				span.RecordError(herr)
				continue
			}
			res.Handled++
		}
		if ev.cancelled {
			break
		}
	}
	res.Cancelled = ev.cancelled

	span.SetAttributes(
		attribute.Bool("ihi.cancelled", res.Cancelled),
		attribute.Int("ihi.handled", res.Handled),
		attribute.Int("ihi.failures", res.Failures),
	)
	if res.Failures > 0 {
		span.SetStatus(codes.Error, "handler failures")
	} else {
		span.SetStatus(codes.Ok, "")
	}

	outcome := metrics.OutcomeHandled
	if res.Cancelled {
		outcome = metrics.OutcomeCancelled
	}
	c.metrics.ObserveDispatch(msg.ID, outcome, time.Since(start).Seconds())

	return res
}

// safeExecute runs one handler, turning a returned error or panic into a
// reported *HandlerError.
func (c *Chain) safeExecute(ctx context.Context, h Handler, ev *Event, sessionID string) (herr *HandlerError) {
	defer func() {
		if r := recover(); r != nil {
			herr = &HandlerError{
				SessionID: sessionID,
				MessageID: ev.Message.ID,
				Priority:  ev.tier,
				Panic:     r,
				Stack:     debug.Stack(),
			}
			c.logger.Error("handler panic",
				"session_id", sessionID,
				"message_id", ev.Message.ID,
				"tier", ev.tier.String(),
				"panic", r,
				"stack", string(herr.Stack))
			c.report(ctx, herr)
		}
	}()

	if err := h(ctx, ev); err != nil {
		herr = &HandlerError{
			SessionID: sessionID,
			MessageID: ev.Message.ID,
			Priority:  ev.tier,
			Err:       err,
		}
		c.logger.Error("handler error",
			"session_id", sessionID,
			"message_id", ev.Message.ID,
			"tier", ev.tier.String(),
			"error", err)
		c.report(ctx, herr)
	}
	return herr
}

func (c *Chain) report(ctx context.Context, herr *HandlerError) {
	c.metrics.HandlerFailed(herr.Priority.String(), herr.Kind())
	c.sink.Error(ctx, herr)
}
