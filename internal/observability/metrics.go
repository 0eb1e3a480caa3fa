package observability

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/cipheragg/internal/accumulation"
	"github.com/yungbote/cipheragg/internal/platform/logger"
)

const namespace = "cipheragg"

var operationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics owns a private Prometheus registry. All methods are safe on a nil
// receiver so callers never branch on whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	conflicts        *prometheus.CounterVec
	retries          *prometheus.CounterVec
	replays          *prometheus.CounterVec
	ledgerFailures   *prometheus.CounterVec

	storeOperations *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec
	storeConflicts  *prometheus.CounterVec
	storeRetries    *prometheus.CounterVec

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var _ accumulation.Hooks = (*Metrics)(nil)

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "operations_total",
			Help: "Accumulation operations by outcome.",
		}, []string{"operation", "status"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "operation_duration_seconds",
			Help: "Accumulation operation latency.", Buckets: operationBuckets,
		}, []string{"operation", "status"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cas_conflicts_total",
			Help: "Compare-and-swap attempts lost to a concurrent writer.",
		}, []string{"operation"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_retries_total",
			Help: "Store calls retried after a transient failure.",
		}, []string{"operation"}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "replays_total",
			Help: "Contributions recognized as already applied.",
		}, []string{"operation"}),
		ledgerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ledger_failures_total",
			Help: "Record ledger appends that failed or were dropped.",
		}, []string{"operation"}),
		storeOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "operations_total",
			Help: "Database store calls by outcome.",
		}, []string{"operation", "status"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "store", Name: "operation_duration_seconds",
			Help: "Database store call latency.", Buckets: operationBuckets,
		}, []string{"operation", "status"}),
		storeConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "conflicts_total",
			Help: "Database writes rejected as conflicts.",
		}, []string{"operation"}),
		storeRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "retryable_errors_total",
			Help: "Database errors classified as retryable.",
		}, []string{"operation"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "api", Name: "requests_total",
			Help: "Admin HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "api", Name: "request_duration_seconds",
			Help: "Admin HTTP request latency.", Buckets: operationBuckets,
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "api", Name: "inflight_requests",
			Help: "Admin HTTP requests currently being served.",
		}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "redis", Name: "up",
			Help: "1 when the last redis ping succeeded.",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "redis", Name: "ping_seconds",
			Help: "Latency of the last successful redis ping.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.operations, m.operationLatency, m.conflicts, m.retries, m.replays, m.ledgerFailures,
		m.storeOperations, m.storeLatency, m.storeConflicts, m.storeRetries,
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.redisUp, m.redisPing,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveOperation(name, status string, dur time.Duration) {
	if m == nil {
		return
	}
	name, status = label(name), label(status)
	m.operations.WithLabelValues(name, status).Inc()
	m.operationLatency.WithLabelValues(name, status).Observe(dur.Seconds())
}

func (m *Metrics) IncConflict(name string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(label(name)).Inc()
}

func (m *Metrics) IncRetry(name string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(label(name)).Inc()
}

func (m *Metrics) IncReplay(name string) {
	if m == nil {
		return
	}
	m.replays.WithLabelValues(label(name)).Inc()
}

func (m *Metrics) IncLedgerFailure(name string) {
	if m == nil {
		return
	}
	m.ledgerFailures.WithLabelValues(label(name)).Inc()
}

func (m *Metrics) ObserveStoreOperation(name, status string, dur time.Duration) {
	if m == nil {
		return
	}
	name, status = label(name), label(status)
	m.storeOperations.WithLabelValues(name, status).Inc()
	m.storeLatency.WithLabelValues(name, status).Observe(dur.Seconds())
}

func (m *Metrics) IncStoreConflict(name string) {
	if m == nil {
		return
	}
	m.storeConflicts.WithLabelValues(label(name)).Inc()
}

func (m *Metrics) IncStoreRetry(name string) {
	if m == nil {
		return
	}
	m.storeRetries.WithLabelValues(label(name)).Inc()
}

// RegisterDB exports connection pool stats for db under dbName.
func (m *Metrics) RegisterDB(db *sql.DB, dbName string) error {
	if m == nil || db == nil {
		return nil
	}
	err := m.registry.Register(collectors.NewDBStatsCollector(db, dbName))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

// StartRedisCollector pings rdb every interval until ctx ends.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb goredis.UniversalClient, interval time.Duration) {
	if m == nil || rdb == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(label(method), label(route), label(status)).Inc()
	m.apiLatency.WithLabelValues(label(method), label(route), label(status)).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// Serve answers /metrics on ln until ctx ends, then shuts down gracefully.
// It is used when metrics get their own listener apart from the admin API.
func (m *Metrics) Serve(ctx context.Context, log *logger.Logger, ln net.Listener) error {
	if m == nil {
		return errors.New("metrics disabled")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	if log != nil {
		log.Info("metrics listening", "addr", ln.Addr().String())
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func label(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
