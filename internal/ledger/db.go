package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/yungbote/cipheragg/internal/accumulation"
	repoledger "github.com/yungbote/cipheragg/internal/data/repos/ledger"
	types "github.com/yungbote/cipheragg/internal/domain"
	"github.com/yungbote/cipheragg/internal/platform/dbctx"
)

// DB writes each record as a contribution_record row.
type DB struct {
	repo repoledger.ContributionRecordRepo
}

var _ accumulation.Ledger = (*DB)(nil)

func NewDB(repo repoledger.ContributionRecordRepo) *DB {
	return &DB{repo: repo}
}

func (l *DB) Append(ctx context.Context, rec accumulation.Record) error {
	var fields datatypes.JSON
	if len(rec.Fields) > 0 {
		raw, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("encode fields: %w", err)
		}
		fields = datatypes.JSON(raw)
	}
	_, err := l.repo.Create(dbctx.Context{Ctx: ctx}, []*types.ContributionRecord{{
		ContributionID: rec.ContributionID,
		Subject:        rec.Subject,
		Ciphertext:     rec.Ciphertext,
		Modulus:        rec.Modulus,
		Fields:         fields,
		Version:        rec.Version,
		AppliedAt:      rec.AppliedAt,
	}})
	return err
}
