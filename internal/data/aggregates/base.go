package aggregates

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	domainagg "github.com/yungbote/cipheragg/internal/domain/aggregates"
	"github.com/yungbote/cipheragg/internal/platform/dbctx"
	"github.com/yungbote/cipheragg/internal/platform/logger"
)

const defaultWriteOp = "aggregate.write"

// BaseDeps is what every gorm-backed store embeds. Zero fields are filled
// from DB.
type BaseDeps struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Runner   TxRunner
	Hooks    Hooks
	CASGuard CASGuard
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Runner == nil {
		d.Runner = NewGormTxRunner(d.DB)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.CASGuard.db == nil {
		d.CASGuard = NewCASGuard(d.DB)
	}
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	return d
}

// executeWrite runs fn inside a transaction from deps.Runner.
func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(dbc dbctx.Context) error) error {
	if op = strings.TrimSpace(op); op == "" {
		op = defaultWriteOp
	}
	deps = deps.withDefaults()
	return instrument(deps, op, func() error { return deps.Runner.InTx(ctx, fn) })
}

// executeRead runs fn against the plain handle, outside any transaction.
func executeRead(ctx context.Context, deps BaseDeps, op string, fn func(db *gorm.DB) error) error {
	deps = deps.withDefaults()
	if deps.DB == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "store has nil db", nil)
	}
	return instrument(deps, op, func() error { return fn(deps.DB.WithContext(ctx)) })
}

// instrument maps the error from call and reports it to deps.Hooks.
func instrument(deps BaseDeps, op string, call func() error) error {
	start := time.Now()
	err := MapError(op, call())
	switch domainagg.CodeOf(err) {
	case domainagg.CodeConflict:
		deps.Hooks.IncConflict(op)
	case domainagg.CodeRetryable:
		deps.Hooks.IncRetry(op)
	}
	deps.Hooks.ObserveOperation(op, aggregateErrorStatus(err), time.Since(start))
	return err
}

func aggregateErrorStatus(err error) string {
	if err == nil {
		return "success"
	}
	if code := domainagg.CodeOf(MapError("aggregate.status", err)); code != "" {
		return string(code)
	}
	return "failure"
}
