package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/cipheragg/internal/accumulation"
	repoledger "github.com/yungbote/cipheragg/internal/data/repos/ledger"
	types "github.com/yungbote/cipheragg/internal/domain"
	domainagg "github.com/yungbote/cipheragg/internal/domain/aggregates"
	"github.com/yungbote/cipheragg/internal/http/response"
	"github.com/yungbote/cipheragg/internal/platform/ctxutil"
	"github.com/yungbote/cipheragg/internal/platform/dbctx"
	"github.com/yungbote/cipheragg/internal/platform/logger"
)

const (
	defaultContributionLimit = 50
	maxContributionLimit     = 500
)

// AggregateLoader is the read side of the orchestrator.
type AggregateLoader interface {
	Load(ctx context.Context, subject string) (accumulation.State, error)
}

// AggregateHandler serves read-only views of encrypted totals. Contributions
// are only accepted through the CLI.
type AggregateHandler struct {
	log     *logger.Logger
	loader  AggregateLoader
	records repoledger.ContributionRecordRepo
}

// NewAggregateHandler builds the handler. records may be nil when no database
// ledger is configured; the contributions route then answers 404.
func NewAggregateHandler(log *logger.Logger, loader AggregateLoader, records repoledger.ContributionRecordRepo) *AggregateHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &AggregateHandler{
		log:     log.With("handler", "AggregateHandler"),
		loader:  loader,
		records: records,
	}
}

type aggregateView struct {
	Subject             string    `json:"subject"`
	Total               string    `json:"total"`
	Modulus             string    `json:"modulus"`
	Version             int64     `json:"version"`
	RecentContributions []string  `json:"recent_contributions"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type contributionView struct {
	ContributionID string            `json:"contribution_id"`
	Version        int64             `json:"version"`
	Ciphertext     string            `json:"ciphertext"`
	Digest         string            `json:"digest"`
	Fields         map[string]string `json:"fields,omitempty"`
	AppliedAt      time.Time         `json:"applied_at"`
}

// GET /aggregates/:subject
func (h *AggregateHandler) GetAggregate(c *gin.Context) {
	subject := strings.TrimSpace(c.Param("subject"))
	st, err := h.loader.Load(c.Request.Context(), subject)
	if err != nil {
		if !domainagg.IsCode(err, domainagg.CodeNotFound) && !domainagg.IsCode(err, domainagg.CodeInvalidInput) {
			h.log.Warn("load aggregate failed", append([]interface{}{"subject", subject, "error", err}, ctxutil.LogFields(c.Request.Context())...)...)
		}
		response.RespondAggregateError(c, err)
		return
	}
	recent := st.RecentContributions
	if recent == nil {
		recent = []string{}
	}
	response.RespondOK(c, gin.H{"aggregate": aggregateView{
		Subject:             st.Subject,
		Total:               st.TotalString(),
		Modulus:             st.Modulus.String(),
		Version:             st.Version,
		RecentContributions: recent,
		UpdatedAt:           st.UpdatedAt,
	}})
}

// GET /aggregates/:subject/contributions?limit=N
func (h *AggregateHandler) ListContributions(c *gin.Context) {
	if h.records == nil {
		response.RespondError(c, http.StatusNotFound, string(domainagg.CodeNotFound), errors.New("contribution ledger is not stored in a database"))
		return
	}
	subject := strings.TrimSpace(c.Param("subject"))
	if subject == "" {
		response.RespondError(c, http.StatusBadRequest, string(domainagg.CodeInvalidInput), errors.New("missing subject"))
		return
	}
	limit := defaultContributionLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, string(domainagg.CodeInvalidInput), errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	if limit > maxContributionLimit {
		limit = maxContributionLimit
	}

	dbc := dbctx.Context{Ctx: c.Request.Context()}
	rows, err := h.records.ListBySubject(dbc, subject, limit)
	if err != nil {
		h.log.Warn("list contributions failed", append([]interface{}{"subject", subject, "error", err}, ctxutil.LogFields(c.Request.Context())...)...)
		response.RespondError(c, http.StatusServiceUnavailable, string(domainagg.CodeStoreUnavailable), err)
		return
	}
	total, err := h.records.CountBySubject(dbc, subject)
	if err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, string(domainagg.CodeStoreUnavailable), err)
		return
	}

	out := make([]contributionView, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		out = append(out, h.viewOf(c.Request.Context(), row))
	}
	response.RespondOK(c, gin.H{"subject": subject, "count": total, "contributions": out})
}

// GetContribution returns one ledger record by contribution id.
func (h *AggregateHandler) GetContribution(c *gin.Context) {
	if h.records == nil {
		response.RespondError(c, http.StatusNotFound, string(domainagg.CodeNotFound), errors.New("contribution ledger is not stored in a database"))
		return
	}
	subject := strings.TrimSpace(c.Param("subject"))
	id := strings.TrimSpace(c.Param("id"))
	if subject == "" || id == "" {
		response.RespondError(c, http.StatusBadRequest, string(domainagg.CodeInvalidInput), errors.New("missing subject or contribution id"))
		return
	}
	row, err := h.records.GetByContributionID(dbctx.Context{Ctx: c.Request.Context()}, subject, id)
	if err != nil {
		h.log.Warn("get contribution failed", append([]interface{}{"subject", subject, "contribution_id", id, "error", err}, ctxutil.LogFields(c.Request.Context())...)...)
		response.RespondError(c, http.StatusServiceUnavailable, string(domainagg.CodeStoreUnavailable), err)
		return
	}
	if row == nil {
		response.RespondError(c, http.StatusNotFound, string(domainagg.CodeNotFound), errors.New("no such contribution"))
		return
	}
	response.RespondOK(c, gin.H{"subject": subject, "contribution": h.viewOf(c.Request.Context(), row)})
}

// viewOf renders a ledger row. Undecodable fields are logged and left out;
// the rest of the record is still served.
func (h *AggregateHandler) viewOf(ctx context.Context, row *types.ContributionRecord) contributionView {
	view := contributionView{
		ContributionID: row.ContributionID,
		Version:        row.Version,
		Ciphertext:     row.Ciphertext,
		Digest:         row.Digest,
		AppliedAt:      row.AppliedAt,
	}
	if len(row.Fields) == 0 {
		return view
	}
	if err := json.Unmarshal(row.Fields, &view.Fields); err != nil {
		view.Fields = nil
		h.log.Warn("contribution fields unreadable", append([]interface{}{
			"subject", row.Subject, "contribution_id", row.ContributionID, "error", err,
		}, ctxutil.LogFields(ctx)...)...)
	}
	return view
}
