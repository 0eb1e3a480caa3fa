package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/cipheragg/internal/accumulation"
	repoledger "github.com/yungbote/cipheragg/internal/data/repos/ledger"
	adminhttp "github.com/yungbote/cipheragg/internal/http"
	httpH "github.com/yungbote/cipheragg/internal/http/handlers"
	"github.com/yungbote/cipheragg/internal/observability"
	"github.com/yungbote/cipheragg/internal/platform/logger"
)

const (
	serviceName         = "cipheragg"
	redisStatsInterval  = 15 * time.Second
	defaultCloseTimeout = 10 * time.Second
)

type App struct {
	Log          *logger.Logger
	Cfg          Config
	Metrics      *observability.Metrics
	Orchestrator *accumulation.Orchestrator

	store        *storeHandle
	ledger       *ledgerHandle
	otelShutdown func(context.Context) error
	closed       bool
}

// New wires the store, ledger, metrics, tracing and orchestrator from cfg.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var metrics *observability.Metrics
	if cfg.HTTP.MetricsEnabled {
		metrics = observability.New()
	}
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfigFromEnv(serviceName))

	store, err := openStore(log, cfg, metrics)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, err
	}
	led, err := openLedger(log, cfg, store, metrics)
	if err != nil {
		_ = store.close()
		_ = otelShutdown(ctx)
		return nil, err
	}

	opts := []accumulation.Option{
		accumulation.WithLogger(log),
		accumulation.WithMaxConflicts(cfg.Accumulation.MaxConflicts),
		accumulation.WithStoreRetries(cfg.Accumulation.StoreRetries),
		accumulation.WithBackoff(cfg.Accumulation.BackoffInitial, cfg.Accumulation.BackoffMax),
		accumulation.WithLocalLocking(cfg.Accumulation.LocalLocking),
		accumulation.WithReplayWindow(cfg.Accumulation.ReplayWindow),
	}
	if metrics != nil {
		opts = append(opts, accumulation.WithHooks(metrics))
	}
	if led.ledger != nil {
		opts = append(opts, accumulation.WithLedger(led.ledger))
	}
	orch, err := accumulation.NewOrchestrator(store.store, opts...)
	if err != nil {
		_ = led.shutdown(ctx)
		_ = store.close()
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}

	log.Info("Accumulation ready",
		"storage", cfg.Storage.Driver,
		"ledger", cfg.Ledger.Driver,
		"max_conflicts", cfg.Accumulation.MaxConflicts,
		"store_retries", cfg.Accumulation.StoreRetries,
		"local_locking", cfg.Accumulation.LocalLocking,
	)
	return &App{
		Log:          log,
		Cfg:          cfg,
		Metrics:      metrics,
		Orchestrator: orch,
		store:        store,
		ledger:       led,
		otelShutdown: otelShutdown,
	}, nil
}

// Records is the contribution_record repo, or nil when records are not kept in a database.
func (a *App) Records() repoledger.ContributionRecordRepo {
	if a == nil || a.ledger == nil || a.ledger.repos == nil {
		return nil
	}
	return a.ledger.repos.ContributionRecords
}

// LedgerFailures counts records the async ledger dropped or failed to write.
func (a *App) LedgerFailures() int64 {
	if a == nil || a.ledger == nil || a.ledger.async == nil {
		return 0
	}
	return a.ledger.async.Failures() + a.ledger.async.Dropped()
}

func (a *App) RouterConfig() adminhttp.RouterConfig {
	return adminhttp.RouterConfig{
		ServiceName:      serviceName,
		Log:              a.Log,
		Metrics:          a.Metrics,
		CORSOrigins:      a.Cfg.HTTP.CORSOrigins,
		HealthHandler:    httpH.NewHealthHandler(a.store.ping),
		AggregateHandler: httpH.NewAggregateHandler(a.Log, a.Orchestrator, a.Records()),
	}
}

// Serve runs the admin HTTP server until ctx ends.
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.Orchestrator == nil {
		return errors.New("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)
	if a.store.redis != nil && a.Metrics != nil {
		a.Metrics.StartRedisCollector(gctx, a.Log, a.store.redis, redisStatsInterval)
	}
	if addr := strings.TrimSpace(a.Cfg.HTTP.MetricsAddr); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		g.Go(func() error { return a.Metrics.Serve(gctx, a.Log, ln) })
	}
	srv := adminhttp.NewServer(a.Cfg.HTTP.Addr, a.RouterConfig())
	g.Go(func() error {
		a.Log.Info("Admin HTTP listening", "addr", a.Cfg.HTTP.Addr)
		return srv.Run(gctx)
	})
	return g.Wait()
}

// Close drains the ledger, then releases the store and tracer. It is idempotent.
func (a *App) Close(ctx context.Context) error {
	if a == nil || a.closed {
		return nil
	}
	a.closed = true
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCloseTimeout)
		defer cancel()
	}
	var errs []error
	if a.ledger != nil {
		if err := a.ledger.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ledger: %w", err))
		}
	}
	if a.store != nil && a.store.close != nil {
		if err := a.store.close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("otel: %w", err))
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
	return errors.Join(errs...)
}
