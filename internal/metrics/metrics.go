// Package metrics defines the Prometheus collectors exported by the server.
//
// Every method is safe on a nil *Metrics, so components can be built
// without instrumentation in tests.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "ihi").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for dispatch duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "ihi",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the server's collectors.
type Metrics struct {
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	handlerFailures  *prometheus.CounterVec
	attributeLoads   *prometheus.CounterVec
	attributeFlushes *prometheus.CounterVec
	framesSent       prometheus.Counter
	bytesSent        prometheus.Counter
	activeSessions   prometheus.Gauge
	queueDrops       prometheus.Counter
	eventsFired      *prometheus.CounterVec
}

// New registers the collectors with the configured registry.
// Registering twice against the same registry panics.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		dispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "dispatch_total",
			Help:        "Inbound messages dispatched through the handler chain",
			ConstLabels: config.ConstLabels,
		}, []string{"message_id", "outcome"}),

		dispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "dispatch_duration_seconds",
			Help:        "Time spent running the handler chain for one message",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		handlerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "handler_failures_total",
			Help:        "Handlers that returned an error or panicked",
			ConstLabels: config.ConstLabels,
		}, []string{"tier", "kind"}),

		attributeLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "attribute_loads_total",
			Help:        "Entity attribute loads from the store",
			ConstLabels: config.ConstLabels,
		}, []string{"attribute", "result"}),

		attributeFlushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "attribute_flushes_total",
			Help:        "Entity attribute write-backs to the store",
			ConstLabels: config.ConstLabels,
		}, []string{"attribute", "result"}),

		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "frames_sent_total",
			Help:        "Compiled frames written to sessions",
			ConstLabels: config.ConstLabels,
		}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "frame_bytes_sent_total",
			Help:        "Bytes of compiled frames written to sessions",
			ConstLabels: config.ConstLabels,
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "active_sessions",
			Help:        "Currently connected sessions",
			ConstLabels: config.ConstLabels,
		}),

		queueDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "queue_drops_total",
			Help:        "Inbound messages dropped because a session backlog was full",
			ConstLabels: config.ConstLabels,
		}),

		eventsFired: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "events_fired_total",
			Help:        "Side-channel events fired by name",
			ConstLabels: config.ConstLabels,
		}, []string{"name"}),
	}
}

// Outcome labels for ObserveDispatch.
const (
	OutcomeHandled   = "handled"
	OutcomeCancelled = "cancelled"
	OutcomeUnhandled = "unhandled"
)

// ObserveDispatch records one pass through the handler chain.
func (m *Metrics) ObserveDispatch(messageID uint32, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(strconv.FormatUint(uint64(messageID), 10), outcome).Inc()
	m.dispatchDuration.Observe(seconds)
}

// HandlerFailed records a failed handler. kind is "error" or "panic".
func (m *Metrics) HandlerFailed(tier, kind string) {
	if m == nil {
		return
	}
	m.handlerFailures.WithLabelValues(tier, kind).Inc()
}

// AttributeLoaded records a store load for an attribute.
func (m *Metrics) AttributeLoaded(attribute string, err error) {
	if m == nil {
		return
	}
	m.attributeLoads.WithLabelValues(attribute, result(err)).Inc()
}

// AttributeFlushed records a write-back for an attribute.
func (m *Metrics) AttributeFlushed(attribute string, err error) {
	if m == nil {
		return
	}
	m.attributeFlushes.WithLabelValues(attribute, result(err)).Inc()
}

// FrameSent records one frame of n bytes written to a session.
func (m *Metrics) FrameSent(n int) {
	if m == nil {
		return
	}
	m.framesSent.Inc()
	m.bytesSent.Add(float64(n))
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// QueueDropped records an inbound message rejected by a full backlog.
func (m *Metrics) QueueDropped() {
	if m == nil {
		return
	}
	m.queueDrops.Inc()
}

// EventFired records a side-channel event.
func (m *Metrics) EventFired(name string) {
	if m == nil {
		return
	}
	m.eventsFired.WithLabelValues(name).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
