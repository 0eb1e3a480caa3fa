package records

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ContributionRecord is an append-only ledger row for one applied contribution.
type ContributionRecord struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ContributionID string    `gorm:"column:contribution_id;not null;uniqueIndex:idx_contribution_record_subject_contribution" json:"contribution_id"`
	Subject        string    `gorm:"column:subject;not null;index;uniqueIndex:idx_contribution_record_subject_contribution" json:"subject"`
	Ciphertext     string    `gorm:"column:ciphertext;type:text;not null" json:"ciphertext"`
	Modulus        string    `gorm:"column:modulus;type:text;not null" json:"modulus"`
	// Digest is a hex blake2b-256 over subject, ciphertext and modulus.
	Digest    string         `gorm:"column:digest;not null;index" json:"digest"`
	Fields    datatypes.JSON `gorm:"column:fields" json:"fields,omitempty"`
	Version   int64          `gorm:"column:version;not null" json:"version"`
	AppliedAt time.Time      `gorm:"column:applied_at;not null;index" json:"applied_at"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
}

func (ContributionRecord) TableName() string { return "contribution_record" }
