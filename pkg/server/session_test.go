package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ihi-server/ihi/internal/metrics"
	"github.com/ihi-server/ihi/pkg/dispatch"
	"github.com/ihi-server/ihi/pkg/player"
	"github.com/ihi-server/ihi/pkg/protocol"
	"github.com/ihi-server/ihi/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeConn is an in-memory Conn fed by the test.
type pipeConn struct {
	in     chan []byte
	mu     sync.Mutex
	out    [][]byte
	closed chan struct{}
	once   sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *pipeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *pipeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return errors.New("write on closed pipe")
	default:
	}
	c.out = append(c.out, append([]byte(nil), data...))
	return nil
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.out...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func packet(t *testing.T, id uint32, body string) []byte {
	t.Helper()
	p, err := protocol.EncodePacket(id, []byte(body))
	require.NoError(t, err)
	return p
}

func TestSessionDispatchesInOrder(t *testing.T) {
	chain := dispatch.NewChain(dispatch.WithLogger(quietLogger()))

	var mu sync.Mutex
	var seen []uint32
	var active, maxActive int
	record := func(_ context.Context, ev *dispatch.Event) error {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		seen = append(seen, ev.Message.ID)
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return nil
	}
	for id := uint32(1); id <= 5; id++ {
		chain.Register(id, dispatch.DefaultAction, record)
	}

	conn := newPipeConn()
	s := NewSession(conn, chain, nil, quietLogger(), nil)
	s.Start()

	// Two packets in one transport message, then three more.
	conn.in <- append(packet(t, 1, ""), packet(t, 2, "")...)
	conn.in <- packet(t, 3, "")
	conn.in <- append(packet(t, 4, ""), packet(t, 5, "")...)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 5
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, seen)
	assert.Equal(t, 1, maxActive)
	mu.Unlock()

	s.Close()
	<-s.Done()
}

func TestSessionReply(t *testing.T) {
	chain := dispatch.NewChain(dispatch.WithLogger(quietLogger()))
	chain.Register(196, dispatch.DefaultAction, func(_ context.Context, ev *dispatch.Event) error {
		return ev.Session.SendMessage(protocol.NewMessage(197))
	})

	reg := prometheus.NewRegistry()
	conn := newPipeConn()
	s := NewSession(conn, chain, nil, quietLogger(), metrics.New(metrics.WithRegistry(reg)))
	s.Start()

	conn.in <- packet(t, 196, "")

	require.Eventually(t, func() bool { return len(conn.written()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "CE\x01", string(conn.written()[0]))

	s.Close()
	<-s.Done()
	assert.ErrorIs(t, s.Send([]byte("x")), ErrSessionClosed)
}

func TestSessionMalformedPacketCloses(t *testing.T) {
	chain := dispatch.NewChain(dispatch.WithLogger(quietLogger()))
	conn := newPipeConn()
	s := NewSession(conn, chain, nil, quietLogger(), nil)
	s.Start()

	conn.in <- []byte{0x00, 0x00, 0x00}

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not close")
	}
	assert.True(t, s.IsClosed())
}

func TestQueueFull(t *testing.T) {
	chain := dispatch.NewChain(dispatch.WithLogger(quietLogger()))
	cfg := DefaultSessionConfig()
	cfg.MaxEventQueue = 2
	s := NewSession(newPipeConn(), chain, cfg, quietLogger(), nil)

	// Not started, so nothing drains.
	require.NoError(t, s.QueueMessage(protocol.NewIncomingMessage(1, nil)))
	require.NoError(t, s.QueueMessage(protocol.NewIncomingMessage(2, nil)))
	assert.ErrorIs(t, s.QueueMessage(protocol.NewIncomingMessage(3, nil)), ErrEventQueueFull)
	assert.Equal(t, 2, s.Backlog())

	s.Close()
	assert.ErrorIs(t, s.QueueMessage(protocol.NewIncomingMessage(4, nil)), ErrSessionClosed)
}

func TestDispatchRunsOnLoop(t *testing.T) {
	chain := dispatch.NewChain(dispatch.WithLogger(quietLogger()))
	s := NewSession(newPipeConn(), chain, nil, quietLogger(), nil)
	s.Start()

	ran := make(chan struct{})
	s.Dispatch(func() { panic("recovered") })
	s.Dispatch(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("dispatched function did not run")
	}

	s.Close()
	<-s.Done()
	s.Dispatch(func() { t.Error("must not run after close") })
}

func TestCloseFlushesPlayer(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, player.Register(ctx, st, player.Account{ID: 1, Name: "alice", Credits: 10}))
	p, err := player.Load(ctx, 1, player.Deps{Store: st})
	require.NoError(t, err)

	chain := dispatch.NewChain(dispatch.WithLogger(quietLogger()))
	conn := newPipeConn()
	s := NewSession(conn, chain, nil, quietLogger(), nil)
	s.Start()

	attached := make(chan struct{})
	s.Dispatch(func() {
		s.Attach(p)
		p.SetLoggedIn(true)
		p.SetCredits(75)
		close(attached)
	})
	<-attached

	s.Close()
	<-s.Done()

	n, err := store.GetInt(ctx, st, "1", player.KeyCredits)
	require.NoError(t, err)
	assert.Equal(t, int64(75), n)
	assert.False(t, p.LoggedIn())
	assert.Nil(t, p.Session())
}

func TestCloseIsIdempotent(t *testing.T) {
	s := NewSession(newPipeConn(), dispatch.NewChain(), nil, quietLogger(), nil)
	s.Close()
	s.Close()
	<-s.Done()
}

func TestCloseBeforeStart(t *testing.T) {
	conn := newPipeConn()
	s := NewSession(conn, dispatch.NewChain(), nil, quietLogger(), nil)
	s.Close()
	s.Start()
	<-s.Done()

	select {
	case <-conn.closed:
	default:
		t.Fatal("connection left open")
	}
}

func TestCloseRacingStart(t *testing.T) {
	for i := 0; i < 100; i++ {
		s := NewSession(newPipeConn(), dispatch.NewChain(), nil, quietLogger(), nil)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); s.Start() }()
		go func() { defer wg.Done(); s.Close() }()
		wg.Wait()

		select {
		case <-s.Done():
		case <-time.After(time.Second):
			t.Fatalf("iteration %d: session never stopped", i)
		}
	}
}

func TestSessionErrorFormat(t *testing.T) {
	err := NewSessionError("abc", "send", io.ErrClosedPipe)
	assert.Equal(t, "server: session abc: send: io: read/write on closed pipe", err.Error())
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Equal(t, "server: send: x", NewSessionError("", "send", errors.New("x")).Error())
}

func TestLogsCarrySessionID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s := NewSession(newPipeConn(), dispatch.NewChain(), nil, logger, nil)
	s.Close()
	assert.Contains(t, buf.String(), "session_id="+s.ID())
}
