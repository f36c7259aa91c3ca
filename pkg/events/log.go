package events

import (
	"context"
	"log/slog"
)

// LogSink writes events and failures to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Fire implements Sink.
func (s *LogSink) Fire(ctx context.Context, name string, payload any) {
	s.logger.DebugContext(ctx, "event fired", "event", name, "payload", payload)
}

// Error implements Sink.
func (s *LogSink) Error(ctx context.Context, err error) {
	s.logger.ErrorContext(ctx, "handler failure", "error", err)
}
