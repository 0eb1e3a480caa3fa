package aggregates

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/cipheragg/internal/accumulation"
	domainagg "github.com/yungbote/cipheragg/internal/domain/aggregates"
	"github.com/yungbote/cipheragg/internal/domain/records"
	"github.com/yungbote/cipheragg/internal/paillier"
	"github.com/yungbote/cipheragg/internal/platform/dbctx"
)

const (
	aggregateTable = "encrypted_aggregate"

	opGet = "EncryptedAggregate.Get"
	opCAS = "EncryptedAggregate.CompareAndSwap"
)

// EncryptedTotalStore persists accumulation state in the encrypted_aggregate
// table. Works against Postgres and SQLite.
type EncryptedTotalStore struct {
	deps BaseDeps
}

var _ accumulation.Store = (*EncryptedTotalStore)(nil)

func NewEncryptedTotalStore(deps BaseDeps) *EncryptedTotalStore {
	deps = deps.withDefaults()
	deps.Log = deps.Log.With("component", "EncryptedTotalStore")
	return &EncryptedTotalStore{deps: deps}
}

// Contract describes the write ownership and concurrency discipline of this store.
func (s *EncryptedTotalStore) Contract() domainagg.Contract {
	return domainagg.EncryptedTotalContract
}

func (s *EncryptedTotalStore) Get(ctx context.Context, subject string) (*accumulation.State, error) {
	var (
		row   records.EncryptedAggregate
		found bool
	)
	err := executeRead(ctx, s.deps, opGet, func(db *gorm.DB) error {
		res := db.Where("subject = ?", subject).Limit(1).Find(&row)
		if res.Error != nil {
			return res.Error
		}
		found = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	st, err := stateFromRow(row)
	if err != nil {
		s.deps.Log.Error("stored aggregate is corrupt", "subject", subject, "error", err)
		return nil, err
	}
	return &st, nil
}

func (s *EncryptedTotalStore) CompareAndSwap(ctx context.Context, subject string, expected *accumulation.State, next accumulation.State) (bool, error) {
	if next.Subject != subject {
		return false, MapError(opCAS, ValidationError("next state belongs to a different subject"))
	}
	row, err := rowFromState(next)
	if err != nil {
		return false, MapError(opCAS, err)
	}

	var swapped bool
	err = executeWrite(ctx, s.deps, opCAS, func(dbc dbctx.Context) error {
		var err error
		if expected == nil {
			swapped, err = s.deps.CASGuard.InsertIfAbsent(dbc, &row)
			return err
		}
		swapped, err = s.deps.CASGuard.UpdateByVersion(dbc, aggregateTable, "subject", subject, expected.Version, map[string]any{
			"total":                row.Total,
			"version":              row.Version,
			"recent_contributions": row.RecentContributions,
			"updated_at":           row.UpdatedAt,
		})
		return err
	})
	if domainagg.IsCode(err, domainagg.CodeConflict) {
		// A concurrent insert won the primary key.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return swapped, nil
}

func rowFromState(st accumulation.State) (records.EncryptedAggregate, error) {
	recent := st.RecentContributions
	if recent == nil {
		recent = []string{}
	}
	raw, err := json.Marshal(recent)
	if err != nil {
		return records.EncryptedAggregate{}, ValidationError(fmt.Sprintf("encode recent contributions: %v", err))
	}
	return records.EncryptedAggregate{
		Subject:             st.Subject,
		Total:               st.Total.String(),
		Modulus:             st.Modulus.String(),
		ModulusSq:           st.ModulusSq.String(),
		Version:             st.Version,
		RecentContributions: datatypes.JSON(raw),
		CreatedAt:           st.UpdatedAt,
		UpdatedAt:           st.UpdatedAt,
	}, nil
}

func stateFromRow(row records.EncryptedAggregate) (accumulation.State, error) {
	corrupt := func(field string, err error) error {
		return domainagg.NewSubjectError(domainagg.CodeInvariantViolation, opGet, row.Subject, "stored "+field+" is malformed", err)
	}
	total, err := paillier.ParseNat(row.Total)
	if err != nil {
		return accumulation.State{}, corrupt("total", err)
	}
	modulus, err := paillier.ParseNat(row.Modulus)
	if err != nil {
		return accumulation.State{}, corrupt("modulus", err)
	}
	modulusSq, err := paillier.ParseNat(row.ModulusSq)
	if err != nil {
		return accumulation.State{}, corrupt("modulus_sq", err)
	}
	var recent []string
	if len(row.RecentContributions) > 0 {
		if err := json.Unmarshal(row.RecentContributions, &recent); err != nil {
			return accumulation.State{}, corrupt("recent_contributions", err)
		}
	}
	return accumulation.State{
		Subject:             row.Subject,
		Total:               total,
		Modulus:             modulus,
		ModulusSq:           modulusSq,
		Version:             row.Version,
		RecentContributions: recent,
		UpdatedAt:           row.UpdatedAt.UTC(),
	}, nil
}
