// Package domain re-exports the persisted record types so storage code can
// import a single package.
package domain

import "github.com/yungbote/cipheragg/internal/domain/records"

type (
	EncryptedAggregate = records.EncryptedAggregate
	ContributionRecord = records.ContributionRecord
)

// Models lists every table AutoMigrate should create.
func Models() []any {
	return []any{
		&records.EncryptedAggregate{},
		&records.ContributionRecord{},
	}
}
