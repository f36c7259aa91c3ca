package server

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"github.com/ihi-server/ihi/internal/metrics"
	"github.com/ihi-server/ihi/pkg/dispatch"
	"github.com/ihi-server/ihi/pkg/protocol"
	"github.com/ihi-server/ihi/pkg/player"
)

// Session is one connected client.
type Session struct {
	id     string
	conn   Conn
	chain  *dispatch.Chain
	config *SessionConfig

	// Inbound backlog, drained by EventLoop.
	backlogMu sync.Mutex
	backlog   *queue.Queue
	notify    chan struct{}

	dispatchCh chan func()

	// Only touched from EventLoop.
	player *player.Player

	ctx     context.Context
	cancel  context.CancelFunc
	closed  atomic.Bool
	started atomic.Bool
	done    chan struct{}
	stopped chan struct{}
	finish  sync.Once
	onClose func(*Session)

	createdAt  time.Time
	lastActive atomic.Int64
	packets    atomic.Uint64
	bytesSent  atomic.Uint64

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSession creates a session on conn. Start runs its loops.
func NewSession(conn Conn, chain *dispatch.Chain, cfg *SessionConfig, logger *slog.Logger, m *metrics.Metrics) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:         id,
		conn:       conn,
		chain:      chain,
		config:     cfg,
		backlog:    queue.New(),
		notify:     make(chan struct{}, 1),
		dispatchCh: make(chan func(), cfg.MaxDispatchQueue),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		createdAt:  time.Now(),
		logger:     logger.With("session_id", id),
		metrics:    m,
	}
	s.touch()
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Context returns a context cancelled when the session closes.
func (s *Session) Context() context.Context {
	return s.ctx
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastActive returns the time of the last inbound message.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// Logger returns the session-scoped logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// Start runs the read, event and heartbeat loops.
func (s *Session) Start() {
	if s.started.Swap(true) {
		return
	}
	if s.closed.Load() {
		s.finalize()
		return
	}
	go s.ReadLoop()
	go s.EventLoop()
	if p, ok := s.conn.(Pinger); ok && s.config.HeartbeatInterval > 0 {
		go s.heartbeat(p)
	}
}

// Done is closed when the event loop has finished its shutdown work.
func (s *Session) Done() <-chan struct{} {
	return s.stopped
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// ReadLoop reads transport messages until the connection fails, queueing
// every packet they contain. A malformed packet ends the session since the
// stream cannot be resynchronized.
func (s *Session) ReadLoop() {
	defer s.Close()

	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && !isNormalClose(err) {
				s.logger.Error("read error", "error", err)
			}
			return
		}
		s.touch()

		msgs, err := protocol.SplitPackets(data, s.config.MaxPacketSize)
		for _, msg := range msgs {
			if qerr := s.QueueMessage(msg); qerr != nil {
				if errors.Is(qerr, ErrSessionClosed) {
					return
				}
				s.logger.Warn("packet dropped", "message_id", msg.ID, "error", qerr)
			}
		}
		if err != nil {
			s.logger.Warn("packet decode error", "error", err, "bytes", len(data))
			return
		}
	}
}

// QueueMessage appends msg to the backlog for in-order dispatch.
func (s *Session) QueueMessage(msg *protocol.IncomingMessage) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	s.backlogMu.Lock()
	if s.backlog.Length() >= s.config.MaxEventQueue {
		s.backlogMu.Unlock()
		s.metrics.QueueDropped()
		return ErrEventQueueFull
	}
	s.backlog.Add(msg)
	s.backlogMu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Backlog returns the number of packets waiting for dispatch.
func (s *Session) Backlog() int {
	s.backlogMu.Lock()
	defer s.backlogMu.Unlock()
	return s.backlog.Length()
}

func (s *Session) nextMessage() *protocol.IncomingMessage {
	s.backlogMu.Lock()
	defer s.backlogMu.Unlock()
	if s.backlog.Length() == 0 {
		return nil
	}
	return s.backlog.Remove().(*protocol.IncomingMessage)
}

// EventLoop is the session's single processing context. Each packet's
// handlers finish before the next packet is dispatched.
func (s *Session) EventLoop() {
	defer s.finalize()

	for {
		select {
		case <-s.notify:
			s.drainBacklog()

		case fn := <-s.dispatchCh:
			s.executeDispatch(fn)

		case <-s.done:
			return
		}
	}
}

func (s *Session) drainBacklog() {
	for !s.closed.Load() {
		msg := s.nextMessage()
		if msg == nil {
			return
		}
		s.packets.Add(1)
		s.chain.Dispatch(s.ctx, s, msg)
	}
}

// Dispatch runs fn on the event loop. Use it for any work that touches the
// attached player from outside a handler.
func (s *Session) Dispatch(fn func()) {
	if s.closed.Load() {
		return
	}
	select {
	case s.dispatchCh <- fn:
	case <-s.done:
	default:
		s.logger.Warn("dispatch queue full, discarding callback")
	}
}

func (s *Session) executeDispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			s.logger.Error("dispatch panic",
				"panic", r,
				"stack", string(stack))
		}
	}()
	fn()
}

// Attach links a logged-in player to the session. Call it from the event
// loop.
func (s *Session) Attach(p *player.Player) {
	s.player = p
	if p != nil {
		p.Attach(s)
	}
}

// Player returns the attached player, or nil. Call it from the event loop.
func (s *Session) Player() *player.Player {
	return s.player
}

// Send writes a compiled frame to the connection.
func (s *Session) Send(frame []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.conn == nil {
		return ErrNoConnection
	}
	if err := s.conn.WriteMessage(frame); err != nil {
		return NewSessionError(s.id, "send", err)
	}
	s.bytesSent.Add(uint64(len(frame)))
	s.metrics.FrameSent(len(frame))
	return nil
}

// SendMessage compiles msg if needed and sends it. It implements
// dispatch.Session and player.Sender.
func (s *Session) SendMessage(msg *protocol.OutgoingMessage) error {
	if !msg.IsCompiled() {
		if err := msg.Compile(); err != nil {
			return NewSessionError(s.id, "compile", err)
		}
	}
	frame, err := msg.Bytes()
	if err != nil {
		return NewSessionError(s.id, "compile", err)
	}
	return s.Send(frame)
}

// Close ends the session. The attached player is flushed on the event loop
// before the connection closes. Close is idempotent and does not wait; use
// Done to wait for shutdown.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	close(s.done)
	if !s.started.Load() {
		s.finalize()
	}
}

// finalize runs shutdown and closes stopped exactly once, whichever of
// Close, Start or EventLoop gets there first.
func (s *Session) finalize() {
	s.finish.Do(func() {
		s.shutdown()
		close(s.stopped)
	})
}

// shutdown runs on the event loop when it is running.
func (s *Session) shutdown() {
	if p := s.player; p != nil {
		p.SetLoggedIn(false)
		ctx, cancel := context.WithTimeout(context.Background(), s.config.FlushTimeout)
		if err := p.Flush(ctx); err != nil {
			s.logger.Error("final flush failed", "player_id", p.ID(), "error", err)
		}
		cancel()
		p.Attach(nil)
	}
	s.cancel()

	if s.conn != nil {
		_ = s.conn.Close()
	}
	if s.onClose != nil {
		s.onClose(s)
	}

	s.logger.Info("session closed",
		"packets", s.packets.Load(),
		"bytes_sent", s.bytesSent.Load(),
		"duration", time.Since(s.createdAt).String())
}

func (s *Session) heartbeat(p Pinger) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.Ping(); err != nil {
				s.logger.Debug("ping failed", "error", err)
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
