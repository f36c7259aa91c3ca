package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/ihi-server/ihi/internal/config"
	"github.com/ihi-server/ihi/internal/errors"
	"github.com/ihi-server/ihi/internal/metrics"
	"github.com/ihi-server/ihi/pkg/events"
	"github.com/ihi-server/ihi/pkg/store"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// openStore builds the attribute store selected by cfg.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemoryStore(), nil

	case config.DriverSQLite:
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := store.OpenSQLite(ctx, cfg.DSN, store.WithSQLTableName(cfg.Table))
		if err != nil {
			return nil, errors.New("E110").WithDetailf("sqlite %s", cfg.DSN).Wrap(err)
		}
		return s, nil

	case config.DriverPostgres, config.DriverMySQL:
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		open := store.OpenPostgres
		if cfg.Driver == config.DriverMySQL {
			open = store.OpenMySQL
		}
		s, err := open(ctx, cfg.DSN, store.WithSQLTableName(cfg.Table))
		if err != nil {
			return nil, errors.New("E110").WithDetailf("%s database", cfg.Driver).Wrap(err)
		}
		return s, nil

	case config.DriverRedis:
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		var opts []store.RedisOption
		if cfg.Prefix != "" {
			opts = append(opts, store.WithRedisPrefix(cfg.Prefix))
		}
		s, err := store.OpenRedis(ctx, cfg.DSN, opts...)
		if err != nil {
			return nil, errors.New("E110").WithDetail("redis").Wrap(err)
		}
		return s, nil

	case config.DriverS3:
		client := store.NewS3Client(store.S3ClientConfig{
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.UsePathStyle,
		})
		return store.NewS3Store(client, cfg.Bucket, cfg.Prefix), nil

	default:
		return nil, errors.New("E111").WithDetailf("%q", cfg.Driver)
	}
}

// eventStack is the sink handed to the session layer plus what it owns.
type eventStack struct {
	sink      events.Sink
	listeners *events.Listeners
	nc        *nats.Conn
}

func openEvents(cfg config.EventsConfig, m *metrics.Metrics, logger *slog.Logger) (*eventStack, error) {
	es := &eventStack{listeners: events.NewListeners()}
	sinks := events.Multi{es.listeners, events.NewLogSink(logger), metricsSink{m}}

	if cfg.NATSURL != "" {
		nc, err := events.ConnectNATS(cfg.NATSURL, "ihi", logger)
		if err != nil {
			return nil, errors.New("E120").WithDetail(cfg.NATSURL).Wrap(err)
		}
		es.nc = nc
		sinks = append(sinks, events.NewNATSSink(nc, cfg.SubjectPrefix, logger))
	}
	es.sink = sinks
	return es, nil
}

func (es *eventStack) Close() {
	if es.nc != nil {
		_ = es.nc.Drain()
	}
}

// metricsSink counts fired events.
type metricsSink struct{ m *metrics.Metrics }

func (s metricsSink) Fire(_ context.Context, name string, _ any) {
	s.m.EventFired(name)
}

func (metricsSink) Error(context.Context, error) {}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
