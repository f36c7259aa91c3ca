package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/ihi-server/ihi/pkg/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenersCanCancel(t *testing.T) {
	ctx := context.Background()
	l := NewListeners()

	var order []string
	l.On(MoveBefore, func(_ context.Context, p any) {
		order = append(order, "first")
		p.(Cancellable).Cancel()
	})
	l.On(MoveBefore, func(context.Context, any) { order = append(order, "second") })

	ev := &MoveEvent{EntityID: 1, To: world.Position{RoomID: 2}}
	l.Fire(ctx, MoveBefore, ev)

	assert.True(t, ev.Cancelled())
	assert.Equal(t, []string{"first", "second"}, order)

	// Unsubscribed names are a no-op.
	l.Fire(ctx, MoveAfter, ev)
}

func TestListenersError(t *testing.T) {
	l := NewListeners()
	var got error
	l.OnError(func(_ context.Context, err error) { got = err })

	cause := errors.New("boom")
	l.Error(context.Background(), cause)
	assert.Equal(t, cause, got)
}

func TestMultiFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, b, Discard}

	m.Fire(context.Background(), "x", 1)
	m.Error(context.Background(), errors.New("e"))

	for _, r := range []*Recorder{a, b} {
		assert.Equal(t, []string{"x"}, r.Names())
		assert.Len(t, r.Errors(), 1)
		assert.Equal(t, 1, r.Events()[0].Payload)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := NewLogSink(logger)

	s.Fire(context.Background(), MoveAfter, "p")
	s.Error(context.Background(), errors.New("kaput"))

	out := buf.String()
	assert.Contains(t, out, "event=roomunit_move:after")
	assert.Contains(t, out, "error=kaput")
}

type fakePublisher struct {
	subjects []string
	data     [][]byte
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.data = append(p.data, data)
	return p.err
}

func TestNATSSink(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNATSSink(pub, "", nil)

	s.Fire(context.Background(), MoveBefore, &MoveEvent{EntityID: 9})
	s.Error(context.Background(), errors.New("bad handler"))

	require.Equal(t, []string{"ihi.events.roomunit_move:before", "ihi.events.error"}, pub.subjects)

	var env struct {
		Event   string `json:"event"`
		Payload struct {
			EntityID uint32 `json:"entity_id"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(pub.data[0], &env))
	assert.Equal(t, MoveBefore, env.Event)
	assert.Equal(t, uint32(9), env.Payload.EntityID)

	var errEnv struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(pub.data[1], &errEnv))
	assert.Equal(t, "bad handler", errEnv.Error)
}

func TestNATSSinkPublishErrorIsDropped(t *testing.T) {
	pub := &fakePublisher{err: errors.New("no responders")}
	s := NewNATSSink(pub, "game", slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	assert.NotPanics(t, func() {
		s.Fire(context.Background(), "x", nil)
	})
	assert.Equal(t, []string{"game.x"}, pub.subjects)
}
