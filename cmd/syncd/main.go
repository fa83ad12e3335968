// Command syncd is the background mirroring daemon: it authenticates
// against the upstream workspace, then runs Scheduler.Run forever,
// draining channels into the configured Store until signaled to stop.
// Grounded on original_source/slack_assistant's poller entry point and the
// teacher's cmd/bot_example/main.go wiring shape.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	deskmirror "github.com/mjhale/deskmirror"
	"github.com/mjhale/deskmirror/internal/config"
	"github.com/mjhale/deskmirror/internal/telemetry"
	"github.com/mjhale/deskmirror/internal/workspace"
	"github.com/mjhale/deskmirror/store/postgres"
	"github.com/mjhale/deskmirror/store/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := config.Load(os.Getenv("DESKMIRROR_CONFIG"))
	if cfg.Upstream.Token == "" {
		log.Fatal("syncd: DESKMIRROR_UPSTREAM_TOKEN (or config upstream.token) is required")
	}

	var inst *telemetry.Instruments
	var tracer deskmirror.Tracer
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = telemetry.Init(ctx, "deskmirror-syncd")
		if err != nil {
			log.Fatalf("telemetry init failed: %v", err)
		}
		defer shutdown(context.Background())
		tracer = inst.Tracer
		logger.Info("OTEL observability enabled")
	}

	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	client := workspace.NewHTTPClient(cfg.Upstream.Host, cfg.Upstream.Token)

	var gateOpts []deskmirror.RateGateOption
	if inst != nil {
		gateOpts = append(gateOpts, deskmirror.WithOnRetry(func(method string) {
			inst.RateLimitWaits.Add(ctx, 1)
		}))
	}
	gate := deskmirror.NewRateGate(deskmirror.DefaultRetryConfig, logger, gateOpts...)

	worker := deskmirror.NewSyncWorker(client, gate, store, logger, tracer)

	var schedOpts []deskmirror.SchedulerOption
	if inst != nil {
		schedOpts = append(schedOpts, deskmirror.WithSchedulerMetrics(
			func() { inst.SyncTicks.Add(ctx, 1) },
			func() { inst.SyncErrors.Add(ctx, 1) },
			func(d time.Duration) { inst.SyncDuration.Record(ctx, float64(d.Milliseconds())) },
		))
	}

	tick := time.Duration(cfg.Scheduler.PollIntervalSeconds) * time.Second
	scheduler := deskmirror.NewScheduler(client, gate, store, worker, tick, 0, logger, tracer, schedOpts...)

	logger.Info("syncd starting", "backend", cfg.Database.Backend, "tick", tick)
	if err := scheduler.Run(ctx); err != nil {
		log.Fatalf("syncd: scheduler exited: %v", err)
	}
	logger.Info("syncd stopped")
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (deskmirror.Store, func()) {
	switch cfg.Database.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.DSN)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		st := postgres.New(pool, postgres.WithEmbeddingDimension(cfg.Embedding.Dimensions))
		if err := st.Init(ctx); err != nil {
			log.Fatalf("init postgres schema: %v", err)
		}
		return st, func() { pool.Close() }
	default:
		st := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
		if err := st.Init(ctx); err != nil {
			log.Fatalf("init sqlite schema: %v", err)
		}
		return st, func() { st.Close() }
	}
}
