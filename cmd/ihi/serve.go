package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/ihi-server/ihi/internal/config"
	"github.com/ihi-server/ihi/internal/errors"
	"github.com/ihi-server/ihi/internal/gameplay"
	"github.com/ihi-server/ihi/internal/metrics"
	"github.com/ihi-server/ihi/pkg/dispatch"
	"github.com/ihi-server/ihi/pkg/middleware"
	"github.com/ihi-server/ihi/pkg/player"
	"github.com/ihi-server/ihi/pkg/server"
	"github.com/ihi-server/ihi/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		Long: `Run the game server.

Endpoints:
  /ws        WebSocket game connections
  /metrics   Prometheus metrics (path from metrics.path)
  /healthz   Liveness probe

Examples:
  ihi serve
  ihi serve --addr :9000
  ihi serve -c /etc/ihi/ihi.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")

	return cmd
}

// app is a fully wired server.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	store    store.Store
	events   *eventStack
	chain    *dispatch.Chain
	manager  *server.Manager
	gameplay *gameplay.Service
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: newRegistry()}

	m := metrics.New(
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithRegistry(a.registry),
	)

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.store = st

	a.events, err = openEvents(cfg.Events, m, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a.chain = dispatch.NewChain(
		dispatch.WithLogger(logger),
		dispatch.WithSink(a.events.sink),
		dispatch.WithMetrics(m),
	)

	a.gameplay = gameplay.New(player.Deps{
		Store:   st,
		Events:  a.events.sink,
		Metrics: m,
		Logger:  logger,
	})
	a.gameplay.Register(a.chain)

	sessCfg := server.DefaultSessionConfig()
	sessCfg.ReadTimeout = cfg.Server.ReadTimeout
	sessCfg.WriteTimeout = cfg.Server.WriteTimeout
	sessCfg.HeartbeatInterval = cfg.Server.Heartbeat
	sessCfg.MaxEventQueue = cfg.Server.MaxQueue
	sessCfg.MaxPacketSize = cfg.Server.MaxPacketSize
	sessCfg.FlushTimeout = cfg.Session.FlushTimeout

	a.manager = server.NewManager(a.chain,
		server.WithSessionConfig(sessCfg),
		server.WithMaxSessions(cfg.Server.MaxSessions),
		server.WithFlushInterval(cfg.Session.FlushInterval),
		server.WithManagerLogger(logger),
		server.WithManagerMetrics(m),
		server.OnSessionClose(func(s *server.Session) {
			a.gameplay.Logout(context.Background(), s)
		}),
	)
	return a, nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (a *app) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Tracing())
	r.Use(middleware.Metrics(
		middleware.WithNamespace(a.cfg.Metrics.Namespace),
		middleware.WithRegistry(a.registry),
	))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "ok %d\n", a.manager.Count())
	})
	r.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	r.Get("/ws", a.serveWS)
	return r
}

func (a *app) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := server.NewWebSocketConn(ws, a.manager.SessionConfig())
	s, err := a.manager.Open(conn)
	if err != nil {
		a.logger.Warn("session rejected", "remote", r.RemoteAddr, "error", err)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}
	s.Logger().Debug("websocket connected", "remote", r.RemoteAddr)
}

// close stops accepting sessions, flushes every player and releases the
// store and event connections.
func (a *app) close(ctx context.Context) error {
	err := a.manager.Shutdown(ctx)
	a.events.Close()
	if cerr := a.store.Close(); cerr != nil {
		err = stderrors.Join(err, cerr)
	}
	return err
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Log.Logger(os.Stderr)
	slog.SetDefault(logger)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		_ = a.close(context.Background())
		return errors.New("E130").WithDetail(cfg.Server.Addr).Wrap(err)
	}

	srv := &http.Server{
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	success("Listening on %s", ln.Addr())
	info("store: %s", cfg.Store.Driver)
	if cfg.Events.NATSURL != "" {
		info("events: %s (%s.*)", cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
	}

	select {
	case err := <-errCh:
		_ = a.close(context.Background())
		return errors.New("E130").WithDetail(cfg.Server.Addr).Wrap(err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := a.close(shutdownCtx); err != nil {
		return errors.New("E131").Wrap(err)
	}
	return nil
}
