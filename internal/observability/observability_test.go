package observability

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountHookSignals(t *testing.T) {
	m := New()
	m.ObserveOperation("Accumulation.Contribute", "success", 2*time.Millisecond)
	m.ObserveOperation("Accumulation.Contribute", "success", 3*time.Millisecond)
	m.ObserveOperation("Accumulation.Contribute", "modulus_mismatch", time.Millisecond)
	m.IncConflict("Accumulation.Contribute")
	m.IncReplay("Accumulation.Contribute")
	m.IncLedgerFailure("")
	m.ObserveStoreOperation("EncryptedAggregate.CompareAndSwap", "success", time.Millisecond)

	if got := testutil.ToFloat64(m.operations.WithLabelValues("Accumulation.Contribute", "success")); got != 2 {
		t.Fatalf("success count: want=2 got=%v", got)
	}
	if got := testutil.ToFloat64(m.conflicts.WithLabelValues("Accumulation.Contribute")); got != 1 {
		t.Fatalf("conflicts: want=1 got=%v", got)
	}
	if got := testutil.ToFloat64(m.ledgerFailures.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("empty label must map to unknown, got=%v", got)
	}
	if got := testutil.ToFloat64(m.storeOperations.WithLabelValues("EncryptedAggregate.CompareAndSwap", "success")); got != 1 {
		t.Fatalf("store operations: want=1 got=%v", got)
	}
}

func TestMetricsHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.IncReplay("Accumulation.Contribute")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `cipheragg_replays_total{operation="Accumulation.Contribute"} 1`) {
		t.Fatalf("replay counter missing from exposition:\n%s", rec.Body.String())
	}
}

func TestServeMetricsOnOwnListener(t *testing.T) {
	m := New()
	m.IncConflict("Accumulation.Contribute")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, nil, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		cancel()
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "cipheragg_cas_conflicts_total") {
		cancel()
		t.Fatalf("status=%d body:\n%s", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve after cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not stop after cancel")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("x", "success", time.Millisecond)
	m.IncConflict("x")
	m.IncStoreRetry("x")
	if err := m.RegisterDB(nil, "x"); err != nil {
		t.Fatalf("RegisterDB on nil: %v", err)
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil handler status: want=503 got=%d", rec.Code)
	}
}

func TestParseHeaders(t *testing.T) {
	h := parseHeaders(" api-key = abc , broken, =x, tenant=t1 ")
	if len(h) != 2 || h["api-key"] != "abc" || h["tenant"] != "t1" {
		t.Fatalf("headers: %v", h)
	}
	if parseHeaders("") != nil {
		t.Fatalf("empty headers must be nil")
	}
}

func TestClampRatio(t *testing.T) {
	if clampRatio(-1) != 0 || clampRatio(2) != 1 || clampRatio(0.25) != 0.25 {
		t.Fatalf("clampRatio out of bounds")
	}
}
