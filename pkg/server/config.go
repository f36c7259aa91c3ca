package server

import (
	"time"

	"github.com/ihi-server/ihi/pkg/protocol"
)

// SessionConfig holds configuration for individual sessions.
type SessionConfig struct {
	// ReadTimeout is the maximum time to wait for a message from the client.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HeartbeatInterval is the time between transport pings. Zero disables
	// them. Default: 30 seconds.
	HeartbeatInterval time.Duration

	// FlushTimeout bounds the final player flush when a session closes.
	// Default: 5 seconds.
	FlushTimeout time.Duration

	// MaxPacketSize is the largest inbound packet payload accepted.
	// Default: protocol.DefaultMaxPacketSize.
	MaxPacketSize int

	// MaxEventQueue is the number of inbound packets a session may have
	// waiting for dispatch. Default: 256.
	MaxEventQueue int

	// MaxDispatchQueue is the buffer of functions funnelled onto the event
	// loop. Default: 64.
	MaxDispatchQueue int
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		FlushTimeout:      5 * time.Second,
		MaxPacketSize:     protocol.DefaultMaxPacketSize,
		MaxEventQueue:     256,
		MaxDispatchQueue:  64,
	}
}

// Clone returns a copy of the SessionConfig.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// withDefaults fills zero fields from DefaultSessionConfig.
func (c *SessionConfig) withDefaults() *SessionConfig {
	d := DefaultSessionConfig()
	if c == nil {
		return d
	}
	out := c.Clone()
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = d.ReadTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.FlushTimeout <= 0 {
		out.FlushTimeout = d.FlushTimeout
	}
	if out.MaxPacketSize <= 0 {
		out.MaxPacketSize = d.MaxPacketSize
	}
	if out.MaxEventQueue <= 0 {
		out.MaxEventQueue = d.MaxEventQueue
	}
	if out.MaxDispatchQueue <= 0 {
		out.MaxDispatchQueue = d.MaxDispatchQueue
	}
	return out
}
