package gameplay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ihi-server/ihi/pkg/dispatch"
	"github.com/ihi-server/ihi/pkg/events"
	"github.com/ihi-server/ihi/pkg/player"
	"github.com/ihi-server/ihi/pkg/protocol"
)

// ErrNotPlayerSession is returned when a handler runs for a session that
// cannot hold a player.
var ErrNotPlayerSession = errors.New("gameplay: session cannot hold a player")

// Session is the transport session as the handlers need it.
// *server.Session implements it.
type Session interface {
	dispatch.Session
	Attach(p *player.Player)
	Player() *player.Player
}

// closer is implemented by sessions that can be ended from another session,
// such as *server.Session.
type closer interface {
	Close()
	Done() <-chan struct{}
}

// DefaultTakeoverTimeout bounds how long a login waits for the player's
// previous session to flush and close.
const DefaultTakeoverTimeout = 5 * time.Second

// LoginEvent is the payload of events.PlayerLogin and events.PlayerLogout.
type LoginEvent struct {
	PlayerID  uint32 `json:"player_id"`
	SessionID string `json:"session_id"`
}

// Service owns the built-in handlers.
type Service struct {
	deps   player.Deps
	events events.Sink
	logger *slog.Logger
	now    func() time.Time

	takeoverTimeout time.Duration

	mu     sync.Mutex
	online map[uint32]Session
}

// New creates a Service building players with deps.
func New(deps player.Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := deps.Events
	if sink == nil {
		sink = events.Discard
	}
	return &Service{
		deps:   deps,
		events: sink,
		logger: logger.With("component", "gameplay"),
		now:    time.Now,

		takeoverTimeout: DefaultTakeoverTimeout,
		online:          make(map[uint32]Session),
	}
}

// Online returns the session the player is logged in on.
func (s *Service) Online(playerID uint32) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.online[playerID]
	return sess, ok
}

// claim records sess as the player's session and returns the one it
// replaces, if any.
func (s *Service) claim(playerID uint32, sess Session) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.online[playerID]
	s.online[playerID] = sess
	if prev == sess {
		return nil
	}
	return prev
}

// release forgets sess as the player's session unless another session has
// taken over since.
func (s *Service) release(playerID uint32, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.online[playerID] == sess {
		delete(s.online, playerID)
	}
}

// restore hands the player back to prev after a failed takeover by sess.
func (s *Service) restore(playerID uint32, sess, prev Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.online[playerID] == sess {
		s.online[playerID] = prev
	}
}

// takeOver closes prev and waits for its final flush, so the new session
// reads what the old one wrote.
func (s *Service) takeOver(ctx context.Context, playerID uint32, prev Session) error {
	c, ok := prev.(closer)
	if !ok {
		return fmt.Errorf("gameplay: session %s cannot be closed", prev.ID())
	}
	s.logger.Info("closing previous session", "player_id", playerID, "session_id", prev.ID())
	c.Close()

	timer := time.NewTimer(s.takeoverTimeout)
	defer timer.Stop()
	select {
	case <-c.Done():
		return nil
	case <-timer.C:
		return fmt.Errorf("gameplay: session %s did not close within %s", prev.ID(), s.takeoverTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register installs every handler on c.
func (s *Service) Register(c *dispatch.Chain) []dispatch.Registration {
	regs := []dispatch.Registration{
		c.Register(MsgSSOTicket, dispatch.DefaultAction, s.handleSSOTicket),
		c.Register(MsgPing, dispatch.DefaultAction, s.handlePing),
		c.Register(MsgGetCredits, dispatch.DefaultAction, s.handleGetCredits),
		c.Register(MsgSetMotto, dispatch.DefaultAction, s.handleSetMotto),
	}
	for _, id := range []uint32{MsgGetCredits, MsgSetMotto} {
		regs = append(regs, c.Register(id, dispatch.HighPriority, s.requireLogin))
	}
	return regs
}

// Logout fires events.PlayerLogout for a closed session's player. The
// session has already flushed and detached it.
func (s *Service) Logout(ctx context.Context, sess Session) {
	p := sess.Player()
	if p == nil {
		return
	}
	s.release(p.ID(), sess)
	s.events.Fire(ctx, events.PlayerLogout, LoginEvent{PlayerID: p.ID(), SessionID: sess.ID()})
}

func playerSession(ev *dispatch.Event) (Session, error) {
	sess, ok := ev.Session.(Session)
	if !ok {
		return nil, ErrNotPlayerSession
	}
	return sess, nil
}

func sendError(sess dispatch.Session, code int32) error {
	msg, err := protocol.Build(MsgError, protocol.Int32(code))
	if err != nil {
		return err
	}
	return sess.SendMessage(msg)
}

func (s *Service) requireLogin(_ context.Context, ev *dispatch.Event) error {
	sess, err := playerSession(ev)
	if err != nil {
		return err
	}
	if p := sess.Player(); p != nil && p.LoggedIn() {
		return nil
	}
	ev.Cancel()
	return sendError(sess, ErrorNotLoggedIn)
}

func (s *Service) handleSSOTicket(ctx context.Context, ev *dispatch.Event) error {
	sess, err := playerSession(ev)
	if err != nil {
		return err
	}
	if p := sess.Player(); p != nil && p.LoggedIn() {
		s.logger.Warn("repeated login ignored", "session_id", sess.ID(), "player_id", p.ID())
		return nil
	}

	ticket, err := ev.Message.Reader().ReadString()
	if err != nil {
		_ = sendError(sess, ErrorBadRequest)
		return fmt.Errorf("read sso ticket: %w", err)
	}

	p, err := player.LoadBySSOTicket(ctx, ticket, s.deps)
	if err != nil {
		s.logger.Info("login rejected", "session_id", sess.ID(), "error", err)
		return sendError(sess, ErrorLoginFailed)
	}

	// One session per player: the previous one is closed and flushed before
	// any attribute of the new Player is read.
	if prev := s.claim(p.ID(), sess); prev != nil {
		if err := s.takeOver(ctx, p.ID(), prev); err != nil {
			s.restore(p.ID(), sess, prev)
			_ = sendError(sess, ErrorLoginFailed)
			return err
		}
	}

	// Tickets are single use.
	if err := p.SetSSOTicket(ctx, ""); err != nil {
		s.release(p.ID(), sess)
		return fmt.Errorf("revoke sso ticket: %w", err)
	}

	sess.Attach(p)
	p.SetLoggedIn(true)
	p.SetLastAccess(s.now())

	msg, err := protocol.Build(MsgAuthenticationOK)
	if err != nil {
		return err
	}
	if err := p.SendMessage(msg); err != nil {
		return err
	}

	s.events.Fire(ctx, events.PlayerLogin, LoginEvent{PlayerID: p.ID(), SessionID: sess.ID()})
	s.logger.Info("player logged in", "session_id", sess.ID(), "player_id", p.ID())
	return nil
}

func (s *Service) handlePing(_ context.Context, ev *dispatch.Event) error {
	msg, err := protocol.Build(MsgPong)
	if err != nil {
		return err
	}
	return ev.Session.SendMessage(msg)
}

// CreditString formats a balance the way clients expect, e.g. "1500.0".
func CreditString(credits int32) string {
	return strconv.FormatInt(int64(credits), 10) + ".0"
}

func (s *Service) handleGetCredits(ctx context.Context, ev *dispatch.Event) error {
	sess, err := playerSession(ev)
	if err != nil {
		return err
	}
	p := sess.Player()
	if p == nil {
		return player.ErrNoSession
	}

	credits, err := p.Credits(ctx)
	if err != nil {
		return err
	}
	msg, err := protocol.Build(MsgCreditBalance, protocol.String(CreditString(credits)))
	if err != nil {
		return err
	}
	return p.SendMessage(msg)
}

func (s *Service) handleSetMotto(ctx context.Context, ev *dispatch.Event) error {
	sess, err := playerSession(ev)
	if err != nil {
		return err
	}
	p := sess.Player()
	if p == nil {
		return player.ErrNoSession
	}

	motto, err := ev.Message.Reader().ReadString()
	if err != nil {
		_ = sendError(sess, ErrorBadRequest)
		return fmt.Errorf("read motto: %w", err)
	}
	motto = truncateRunes(motto, MaxMottoLength)

	if err := p.SetMotto(motto); err != nil {
		return sendError(sess, ErrorBadRequest)
	}

	msg, err := protocol.Build(MsgMottoUpdated, protocol.String(motto))
	if err != nil {
		return err
	}
	return p.SendMessage(msg)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
