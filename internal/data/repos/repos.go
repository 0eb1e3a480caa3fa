package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/cipheragg/internal/data/repos/ledger"
	"github.com/yungbote/cipheragg/internal/platform/logger"
)

type ContributionRecordRepo = ledger.ContributionRecordRepo

type Repos struct {
	ContributionRecords ContributionRecordRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		ContributionRecords: ledger.NewContributionRecordRepo(db, log),
	}
}
