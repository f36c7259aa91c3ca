package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ihi-server/ihi/internal/config"
	"github.com/ihi-server/ihi/internal/gameplay"
	"github.com/ihi-server/ihi/pkg/player"
	"github.com/ihi-server/ihi/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp(t *testing.T) (*app, *httptest.Server) {
	t.Helper()
	cfg := config.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := newApp(context.Background(), cfg, logger)
	require.NoError(t, err)

	srv := httptest.NewServer(a.handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.close(ctx)
	})
	return a, srv
}

func TestHealthz(t *testing.T) {
	_, srv := testApp(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok 0\n", string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := testApp(t)

	resp, err := http.Get(srv.URL + config.DefaultMetricsPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestWebSocketLogin(t *testing.T) {
	a, srv := testApp(t)
	ctx := context.Background()

	require.NoError(t, player.Register(ctx, a.store, player.Account{ID: 9, Name: "carol", Credits: 250}))
	p, err := player.Load(ctx, 9, player.Deps{Store: a.store})
	require.NoError(t, err)
	require.NoError(t, p.SetSSOTicket(ctx, "abc"))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	ticket := append([]byte("@C"), "abc"...)
	login, err := protocol.EncodePacket(gameplay.MsgSSOTicket, ticket)
	require.NoError(t, err)
	credits, err := protocol.EncodePacket(gameplay.MsgGetCredits, nil)
	require.NoError(t, err)

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, append(login, credits...)))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frames [][]byte
	for len(frames) < 2 {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		frames = append(frames, data)
	}
	assert.Equal(t, "@C\x01", string(frames[0]))
	assert.Equal(t, "@F250.0\x02\x01", string(frames[1]))
	assert.Equal(t, 1, a.manager.Count())
}

func TestVersionShort(t *testing.T) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "dev\n", out.String())
}
