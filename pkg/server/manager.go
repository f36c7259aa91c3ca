package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ihi-server/ihi/internal/metrics"
	"github.com/ihi-server/ihi/pkg/dispatch"
)

// Manager tracks open sessions and periodically flushes their players.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	chain  *dispatch.Chain
	config *SessionConfig

	maxSessions   int
	flushInterval time.Duration

	done      chan struct{}
	flushDone chan struct{}
	closed    atomic.Bool

	totalCreated atomic.Uint64
	totalClosed  atomic.Uint64

	onSessionOpen  func(*Session)
	onSessionClose func(*Session)

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSessionConfig sets the configuration of new sessions.
func WithSessionConfig(cfg *SessionConfig) ManagerOption {
	return func(m *Manager) {
		m.config = cfg
	}
}

// WithMaxSessions limits concurrent sessions. Zero means no limit.
func WithMaxSessions(n int) ManagerOption {
	return func(m *Manager) {
		m.maxSessions = n
	}
}

// WithFlushInterval sets how often dirty players are written back.
// Zero disables periodic flushing. Default: 1 minute.
func WithFlushInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.flushInterval = d
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithManagerMetrics enables Prometheus instrumentation.
func WithManagerMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// OnSessionOpen registers a callback run after a session starts.
func OnSessionOpen(fn func(*Session)) ManagerOption {
	return func(m *Manager) {
		m.onSessionOpen = fn
	}
}

// OnSessionClose registers a callback run when a session shuts down.
func OnSessionClose(fn func(*Session)) ManagerOption {
	return func(m *Manager) {
		m.onSessionClose = fn
	}
}

// NewManager creates a Manager dispatching through chain.
func NewManager(chain *dispatch.Chain, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions:      make(map[string]*Session),
		chain:         chain,
		flushInterval: time.Minute,
		done:          make(chan struct{}),
		flushDone:     make(chan struct{}),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.config = m.config.withDefaults()
	m.logger = m.logger.With("component", "session_manager")

	if m.flushInterval > 0 {
		go m.flushLoop()
	} else {
		close(m.flushDone)
	}
	return m
}

// Open creates and starts a session on conn.
func (m *Manager) Open(conn Conn) (*Session, error) {
	if m.closed.Load() {
		return nil, ErrServerClosed
	}

	s := NewSession(conn, m.chain, m.config, m.logger, m.metrics)
	s.onClose = m.remove

	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		s.cancel()
		return nil, ErrServerClosed
	}
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		s.cancel()
		return nil, ErrMaxSessionsReached
	}
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.totalCreated.Add(1)
	m.metrics.SessionOpened()
	s.logger.Info("session opened")

	s.Start()
	if m.onSessionOpen != nil {
		m.onSessionOpen(s)
	}
	return s, nil
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	_, ok := m.sessions[s.ID()]
	delete(m.sessions, s.ID())
	m.mu.Unlock()

	if !ok {
		return
	}
	m.totalClosed.Add(1)
	m.metrics.SessionClosed()
	if m.onSessionClose != nil {
		m.onSessionClose(s)
	}
}

// SessionConfig returns the configuration new sessions are created with.
// It must not be modified.
func (m *Manager) SessionConfig() *SessionConfig {
	return m.config
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Each calls fn for every open session. fn must not open or close sessions.
func (m *Manager) Each(fn func(*Session)) {
	for _, s := range m.snapshot() {
		fn(s)
	}
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Stats holds session counters.
type Stats struct {
	Active       int
	TotalCreated uint64
	TotalClosed  uint64
}

// Stats returns current session counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Active:       m.Count(),
		TotalCreated: m.totalCreated.Load(),
		TotalClosed:  m.totalClosed.Load(),
	}
}

// FlushAll schedules a write-back of every attached player on its session's
// event loop. It does not wait for the writes.
func (m *Manager) FlushAll() {
	for _, s := range m.snapshot() {
		s.Dispatch(func() {
			p := s.Player()
			if p == nil || !p.Dirty() {
				return
			}
			if err := p.Flush(s.Context()); err != nil {
				s.logger.Error("periodic flush failed", "player_id", p.ID(), "error", err)
			}
		})
	}
}

func (m *Manager) flushLoop() {
	defer close(m.flushDone)

	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.FlushAll()
		case <-m.done:
			return
		}
	}
}

// Shutdown stops the flush ticker, closes every session and waits for their
// final flushes or ctx, whichever comes first.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.closed.Swap(true) {
		return nil
	}
	close(m.done)
	<-m.flushDone

	sessions := m.snapshot()
	for _, s := range sessions {
		s.Close()
	}
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.logger.Info("session manager stopped",
		"created", m.totalCreated.Load(),
		"closed", m.totalClosed.Load())
	return nil
}
