package gameplay

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ihi-server/ihi/pkg/dispatch"
	"github.com/ihi-server/ihi/pkg/events"
	"github.com/ihi-server/ihi/pkg/player"
	"github.com/ihi-server/ihi/pkg/protocol"
	"github.com/ihi-server/ihi/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id     string
	player *player.Player
	sent   []string
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) SendMessage(msg *protocol.OutgoingMessage) error {
	if err := msg.Compile(); err != nil {
		return err
	}
	b, err := msg.Bytes()
	if err != nil {
		return err
	}
	s.sent = append(s.sent, string(b))
	return nil
}

func (s *fakeSession) Attach(p *player.Player) {
	s.player = p
	p.Attach(s)
}

func (s *fakeSession) Player() *player.Player { return s.player }

type fixture struct {
	ctx      context.Context
	store    *store.MemoryStore
	recorder *events.Recorder
	chain    *dispatch.Chain
	svc      *Service
	sess     *fakeSession
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, player.Register(ctx, st, player.Account{ID: 1, Name: "alice", Credits: 1500}))

	p, err := player.Load(ctx, 1, player.Deps{Store: st})
	require.NoError(t, err)
	require.NoError(t, p.SetSSOTicket(ctx, "ticket-1"))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := &events.Recorder{}
	svc := New(player.Deps{Store: st, Events: rec, Logger: logger})
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	chain := dispatch.NewChain(dispatch.WithLogger(logger))
	svc.Register(chain)

	return &fixture{ctx: ctx, store: st, recorder: rec, chain: chain, svc: svc, sess: &fakeSession{id: "s1"}}
}

func (f *fixture) send(t *testing.T, id uint32, body string) dispatch.Result {
	t.Helper()
	return f.chain.Dispatch(f.ctx, f.sess, protocol.NewIncomingMessage(id, []byte(body)))
}

// wireString is the client-to-server string form.
func wireString(t *testing.T, s string) string {
	t.Helper()
	n, err := protocol.EncodeB64(uint32(len(s)), protocol.HeaderLength)
	require.NoError(t, err)
	return string(n) + s
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	res := f.send(t, MsgSSOTicket, wireString(t, "ticket-1"))
	require.Zero(t, res.Failures)
	require.NotNil(t, f.sess.player)
	f.sess.sent = nil
}

func TestSSOLogin(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, MsgSSOTicket, wireString(t, "ticket-1"))
	require.Zero(t, res.Failures)
	assert.Equal(t, []string{"@C\x01"}, f.sess.sent)

	p := f.sess.Player()
	require.NotNil(t, p)
	assert.Equal(t, uint32(1), p.ID())
	assert.True(t, p.LoggedIn())
	assert.Same(t, f.sess, p.Session())

	last, err := p.LastAccess(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2024, last.Year())

	ticket, err := p.SSOTicket(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, ticket, "ticket is consumed")

	assert.Equal(t, []string{events.PlayerLogin}, f.recorder.Names())
}

func TestSSOLoginRejected(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, MsgSSOTicket, wireString(t, "nope"))
	assert.Zero(t, res.Failures)
	assert.Nil(t, f.sess.Player())
	assert.Equal(t, []string{"@aI\x01"}, f.sess.sent)
}

func TestSSOLoginMalformed(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, MsgSSOTicket, "@")
	require.Equal(t, 1, res.Failures)
	assert.Equal(t, []string{"@aK\x01"}, f.sess.sent)
}

func TestPing(t *testing.T) {
	f := newFixture(t)

	f.send(t, MsgPing, "")
	assert.Equal(t, []string{"CE\x01"}, f.sess.sent)
}

func TestGetCredits(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.send(t, MsgGetCredits, "")
	assert.Equal(t, []string{"@F1500.0\x02\x01"}, f.sess.sent)

	f.sess.player.SetCredits(-3)
	f.sess.sent = nil
	f.send(t, MsgGetCredits, "")
	assert.Equal(t, []string{"@F-3.0\x02\x01"}, f.sess.sent)
}

func TestRequireLoginCancels(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, MsgGetCredits, "")
	assert.True(t, res.Cancelled)
	assert.Equal(t, []string{"@aJ\x01"}, f.sess.sent)
}

func TestSetMotto(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	res := f.send(t, MsgSetMotto, wireString(t, "hello"))
	require.Zero(t, res.Failures)
	assert.Equal(t, []string{"DJhello\x02\x01"}, f.sess.sent)

	require.NoError(t, f.sess.player.Flush(f.ctx))
	motto, err := store.GetString(f.ctx, f.store, player.EntityKey(1), player.KeyMotto)
	require.NoError(t, err)
	assert.Equal(t, "hello", motto)
}

func TestSetMottoTruncates(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	long := "ééééééééééééééééééééééééééééééééééééééééééé"
	f.send(t, MsgSetMotto, wireString(t, long))

	motto, err := f.sess.player.Motto(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, MaxMottoLength, len([]rune(motto)))
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	f.svc.Logout(f.ctx, f.sess)
	assert.Empty(t, f.recorder.Names())

	f.login(t)
	f.svc.Logout(f.ctx, f.sess)
	assert.Equal(t, []string{events.PlayerLogin, events.PlayerLogout}, f.recorder.Names())
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "é", truncateRunes("éé", 1))
}

func TestCreditString(t *testing.T) {
	assert.Equal(t, "0.0", CreditString(0))
	assert.Equal(t, "1500.0", CreditString(1500))
}

// closableSession is a fakeSession another login can close. shutdown plays
// the part of the server's final flush.
type closableSession struct {
	*fakeSession
	done     chan struct{}
	shutdown func()
	hang     bool
}

func newClosableSession(id string) *closableSession {
	return &closableSession{fakeSession: &fakeSession{id: id}, done: make(chan struct{})}
}

func (s *closableSession) Close() {
	if s.shutdown != nil {
		s.shutdown()
	}
	if !s.hang {
		close(s.done)
	}
}

func (s *closableSession) Done() <-chan struct{} { return s.done }

func (f *fixture) sendOn(sess dispatch.Session, id uint32, body string) dispatch.Result {
	return f.chain.Dispatch(f.ctx, sess, protocol.NewIncomingMessage(id, []byte(body)))
}

func TestSecondLoginTakesOver(t *testing.T) {
	f := newFixture(t)

	first := newClosableSession("s1")
	first.shutdown = func() {
		p := first.Player()
		p.SetLoggedIn(false)
		require.NoError(t, p.Flush(f.ctx))
		f.svc.Logout(f.ctx, first)
	}
	res := f.sendOn(first, MsgSSOTicket, wireString(t, "ticket-1"))
	require.Zero(t, res.Failures)
	f.sendOn(first, MsgSetMotto, wireString(t, "unsaved"))
	require.NoError(t, first.Player().SetSSOTicket(f.ctx, "ticket-2"))

	second := newClosableSession("s2")
	res = f.sendOn(second, MsgSSOTicket, wireString(t, "ticket-2"))
	require.Zero(t, res.Failures)
	assert.Equal(t, []string{"@C\x01"}, second.sent)

	select {
	case <-first.Done():
	default:
		t.Fatal("previous session still open")
	}

	motto, err := second.Player().Motto(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "unsaved", motto, "new session sees the old session's flushed state")

	online, ok := f.svc.Online(1)
	require.True(t, ok)
	assert.Same(t, second, online)
	assert.Equal(t, []string{events.PlayerLogin, events.PlayerLogout, events.PlayerLogin}, f.recorder.Names())

	// A late logout of the old session leaves the new one online.
	f.svc.Logout(f.ctx, first)
	_, ok = f.svc.Online(1)
	assert.True(t, ok)

	f.svc.Logout(f.ctx, second)
	_, ok = f.svc.Online(1)
	assert.False(t, ok)
}

func TestSecondLoginRejectedWhenPreviousCannotClose(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	require.NoError(t, f.sess.Player().SetSSOTicket(f.ctx, "ticket-2"))

	stuck := newClosableSession("stuck")
	stuck.hang = true
	f.svc.takeoverTimeout = 10 * time.Millisecond
	f.svc.claim(1, stuck)

	second := newClosableSession("s2")
	res := f.sendOn(second, MsgSSOTicket, wireString(t, "ticket-2"))
	assert.Equal(t, 1, res.Failures)
	assert.Equal(t, []string{"@aI\x01"}, second.sent)
	assert.Nil(t, second.Player())

	online, ok := f.svc.Online(1)
	require.True(t, ok)
	assert.Same(t, stuck, online)
}
