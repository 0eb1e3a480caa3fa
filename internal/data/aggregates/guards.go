package aggregates

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/cipheragg/internal/platform/dbctx"
)

// CASGuard provides optimistic/concurrency guard helpers for aggregate writes.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx), nil
	}
	if g.db != nil {
		return g.db.WithContext(dbc.Ctx), nil
	}
	return nil, ValidationError("missing db transaction context")
}

// UpdateByVersion updates a row only when key+version match.
// It implements compare-and-set semantics commonly used for optimistic locking.
func (g CASGuard) UpdateByVersion(dbc dbctx.Context, table, keyColumn, key string, expectedVersion int64, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	keyColumn = strings.TrimSpace(keyColumn)
	if table == "" || keyColumn == "" || key == "" {
		return false, ValidationError("table, key column and key are required for UpdateByVersion")
	}
	if expectedVersion < 1 {
		return false, ValidationError("expectedVersion must be >= 1")
	}
	res := db.Table(table).
		Where(clause.Eq{Column: clause.Column{Name: keyColumn}, Value: key}).
		Where("version = ?", expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// InsertIfAbsent creates row unless its primary key already exists.
// It reports false when another writer inserted first.
func (g CASGuard) InsertIfAbsent(dbc dbctx.Context, row any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, ValidationError("row is required for InsertIfAbsent")
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
