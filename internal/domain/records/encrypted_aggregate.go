package records

import (
	"time"

	"gorm.io/datatypes"
)

// EncryptedAggregate is the persisted running total for one subject.
// Big integers are stored as canonical decimal text.
type EncryptedAggregate struct {
	Subject   string `gorm:"column:subject;primaryKey" json:"subject"`
	Total     string `gorm:"column:total;type:text;not null" json:"total"`
	Modulus   string `gorm:"column:modulus;type:text;not null" json:"modulus"`
	ModulusSq string `gorm:"column:modulus_sq;type:text;not null" json:"modulus_sq"`
	Version   int64  `gorm:"column:version;not null" json:"version"`
	// RecentContributions is a JSON array of contribution IDs, oldest first.
	RecentContributions datatypes.JSON `gorm:"column:recent_contributions" json:"recent_contributions"`
	CreatedAt           time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;index" json:"updated_at"`
}

func (EncryptedAggregate) TableName() string { return "encrypted_aggregate" }
