package app

import (
	"context"
	"errors"
	"strings"

	"github.com/yungbote/cipheragg/internal/accumulation"
	"github.com/yungbote/cipheragg/internal/data/repos"
	"github.com/yungbote/cipheragg/internal/ledger"
	"github.com/yungbote/cipheragg/internal/observability"
	"github.com/yungbote/cipheragg/internal/platform/logger"
)

const asyncLedgerOperation = "Ledger.Async"

type ledgerHandle struct {
	ledger accumulation.Ledger
	async  *ledger.Async
	// repos is set when records land in a database, so the admin API can list them.
	repos *repos.Repos
	close []func(context.Context) error
}

// openLedger builds the record ledger. A database ledger shares the aggregate
// store's database when there is one and otherwise opens its own.
func openLedger(log *logger.Logger, cfg Config, store *storeHandle, metrics *observability.Metrics) (*ledgerHandle, error) {
	h := &ledgerHandle{}
	if cfg.Ledger.Driver == LedgerNone {
		return h, nil
	}
	var sinks ledger.Multi

	if cfg.wantsDBLedger() {
		svc := store.sql
		if svc == nil {
			driver := StorageSQLite
			if strings.TrimSpace(cfg.Storage.PostgresDSN) != "" {
				driver = StoragePostgres
			}
			opened, err := openDatabase(log, cfg, driver)
			if err != nil {
				_ = h.shutdown(context.Background())
				return nil, err
			}
			svc = opened
			h.close = append(h.close, func(context.Context) error { return opened.Close() })
		}
		rs := repos.New(svc.DB(), log)
		h.repos = &rs
		sinks = append(sinks, ledger.NewDB(rs.ContributionRecords))
		log.Info("Ledger writes contribution records", "driver", svc.Driver())
	}

	if cfg.wantsCSVLedger() {
		csvLedger, err := ledger.OpenCSV(cfg.Ledger.CSVPath, cfg.Ledger.CSVFields...)
		if err != nil {
			_ = h.shutdown(context.Background())
			return nil, err
		}
		h.close = append(h.close, func(context.Context) error { return csvLedger.Close() })
		sinks = append(sinks, csvLedger)
		log.Info("Ledger appends CSV rows", "path", cfg.Ledger.CSVPath, "columns", cfg.Ledger.CSVFields)
	}

	var inner accumulation.Ledger = sinks
	if len(sinks) == 1 {
		inner = sinks[0]
	}
	h.async = ledger.NewAsync(inner, cfg.Ledger.Queue, log,
		ledger.WithFailureHook(func(accumulation.Record, error) {
			metrics.IncLedgerFailure(asyncLedgerOperation)
		}),
	)
	h.ledger = h.async
	return h, nil
}

// shutdown drains queued records before the sinks close.
func (h *ledgerHandle) shutdown(ctx context.Context) error {
	var errs []error
	if h.async != nil {
		if err := h.async.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(h.close) - 1; i >= 0; i-- {
		if err := h.close[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
