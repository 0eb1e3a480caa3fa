package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/cipheragg/internal/accumulation"
	"github.com/yungbote/cipheragg/internal/data/memstore"
	repoledger "github.com/yungbote/cipheragg/internal/data/repos/ledger"
	"github.com/yungbote/cipheragg/internal/data/repos/testutil"
	adminhttp "github.com/yungbote/cipheragg/internal/http"
	httpH "github.com/yungbote/cipheragg/internal/http/handlers"
	"github.com/yungbote/cipheragg/internal/ledger"
	"github.com/yungbote/cipheragg/internal/observability"
)

type fixture struct {
	router *gin.Engine
	orch   *accumulation.Orchestrator
}

func newFixture(t *testing.T, records repoledger.ContributionRecordRepo, ready httpH.Pinger) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var opts []accumulation.Option
	if records != nil {
		opts = append(opts, accumulation.WithLedger(ledger.NewDB(records)))
	}
	orch, err := accumulation.NewOrchestrator(memstore.New(), opts...)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	router := adminhttp.NewRouter(adminhttp.RouterConfig{
		Metrics:          observability.New(),
		HealthHandler:    httpH.NewHealthHandler(ready),
		AggregateHandler: httpH.NewAggregateHandler(nil, orch, records),
	})
	return fixture{router: router, orch: orch}
}

func (f fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthcheck(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.get(t, "/healthcheck")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: code=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestReadyReportsStoreFailure(t *testing.T) {
	f := newFixture(t, nil, func(context.Context) error { return errors.New("down") })
	rec := f.get(t, "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz: want=%d got=%d", http.StatusServiceUnavailable, rec.Code)
	}
}

func TestGetAggregate(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	for _, ct := range []string{"10", "15", "15"} {
		if _, err := f.orch.Contribute(ctx, "alice", ct, "17"); err != nil {
			t.Fatalf("Contribute(%s): %v", ct, err)
		}
	}

	rec := f.get(t, "/aggregates/alice")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Aggregate struct {
			Subject             string   `json:"subject"`
			Total               string   `json:"total"`
			Modulus             string   `json:"modulus"`
			Version             int64    `json:"version"`
			RecentContributions []string `json:"recent_contributions"`
		} `json:"aggregate"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Aggregate.Total != "227" || body.Aggregate.Version != 3 || body.Aggregate.Modulus != "17" {
		t.Fatalf("aggregate: %+v", body.Aggregate)
	}
	if len(body.Aggregate.RecentContributions) != 3 {
		t.Fatalf("recent contributions: want=3 got=%d", len(body.Aggregate.RecentContributions))
	}
}

func TestGetAggregateNotFound(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.get(t, "/aggregates/nobody")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: want=404 got=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"not_found"`) {
		t.Fatalf("body: %s", rec.Body.String())
	}
}

func TestContributionsWithoutLedger(t *testing.T) {
	f := newFixture(t, nil, nil)
	rec := f.get(t, "/aggregates/alice/contributions")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: want=404 got=%d", rec.Code)
	}
}

func TestListContributions(t *testing.T) {
	records := repoledger.NewContributionRecordRepo(testutil.DB(t), nil)
	f := newFixture(t, records, nil)
	ctx := context.Background()
	if _, err := f.orch.Contribute(ctx, "alice", "10", "17", accumulation.WithFields(map[string]string{"name": "a"})); err != nil {
		t.Fatalf("Contribute: %v", err)
	}
	if _, err := f.orch.Contribute(ctx, "alice", "15", "17"); err != nil {
		t.Fatalf("Contribute: %v", err)
	}

	var body struct {
		Count         int64 `json:"count"`
		Contributions []struct {
			Version    int64             `json:"version"`
			Ciphertext string            `json:"ciphertext"`
			Fields     map[string]string `json:"fields"`
		} `json:"contributions"`
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := f.get(t, "/aggregates/alice/contributions?limit=10")
		if rec.Code != http.StatusOK {
			t.Fatalf("status: want=200 got=%d body=%s", rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Count == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if body.Count != 2 || len(body.Contributions) != 2 {
		t.Fatalf("contributions: count=%d rows=%d", body.Count, len(body.Contributions))
	}
	if body.Contributions[0].Version != 1 || body.Contributions[0].Ciphertext != "10" || body.Contributions[0].Fields["name"] != "a" {
		t.Fatalf("first row: %+v", body.Contributions[0])
	}
}

func TestListContributionsRejectsBadLimit(t *testing.T) {
	records := repoledger.NewContributionRecordRepo(testutil.DB(t), nil)
	f := newFixture(t, records, nil)
	rec := f.get(t, "/aggregates/alice/contributions?limit=-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil, nil)
	_ = f.get(t, "/healthcheck")
	rec := f.get(t, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cipheragg_api_requests_total") {
		t.Fatalf("metrics body missing api counter")
	}
}
