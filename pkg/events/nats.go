package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the subset of *nats.Conn used by NATSSink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes events as JSON to "<prefix>.<name>" and failures to
// "<prefix>.error". Publish errors are logged and dropped.
type NATSSink struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

type envelope struct {
	Event     string    `json:"event"`
	Payload   any       `json:"payload,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// NewNATSSink creates a NATSSink. An empty prefix defaults to "ihi.events".
func NewNATSSink(pub Publisher, prefix string, logger *slog.Logger) *NATSSink {
	if prefix == "" {
		prefix = "ihi.events"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSink{pub: pub, prefix: prefix, logger: logger}
}

// Fire implements Sink.
func (s *NATSSink) Fire(_ context.Context, name string, payload any) {
	s.publish(s.prefix+"."+name, envelope{Event: name, Payload: payload, Timestamp: time.Now().UTC()})
}

// Error implements Sink.
func (s *NATSSink) Error(_ context.Context, err error) {
	s.publish(s.prefix+".error", envelope{Event: HandlerFailed, Error: err.Error(), Timestamp: time.Now().UTC()})
}

func (s *NATSSink) publish(subject string, env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		s.logger.Warn("event encode failed", "subject", subject, "error", err)
		return
	}
	if err := s.pub.Publish(subject, data); err != nil {
		s.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}

// ConnectNATS dials a NATS server with reconnect settings suited to a
// long-running event publisher.
func ConnectNATS(url, clientName string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	}
	return nats.Connect(url, opts...)
}
