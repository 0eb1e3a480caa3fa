package ledger

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/cipheragg/internal/domain"
	"github.com/yungbote/cipheragg/internal/platform/dbctx"
	"github.com/yungbote/cipheragg/internal/platform/logger"
)

type ContributionRecordRepo interface {
	Create(dbc dbctx.Context, recs []*types.ContributionRecord) ([]*types.ContributionRecord, error)
	ListBySubject(dbc dbctx.Context, subject string, limit int) ([]*types.ContributionRecord, error)
	CountBySubject(dbc dbctx.Context, subject string) (int64, error)
	GetByContributionID(dbc dbctx.Context, subject, contributionID string) (*types.ContributionRecord, error)
}

type contributionRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContributionRecordRepo(db *gorm.DB, baseLog *logger.Logger) ContributionRecordRepo {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &contributionRecordRepo{
		db:  db,
		log: baseLog.With("repo", "ContributionRecordRepo"),
	}
}

// Create appends records. A record whose (subject, contribution_id) already
// exists is skipped, so redelivered contributions are logged once.
func (r *contributionRecordRepo) Create(dbc dbctx.Context, recs []*types.ContributionRecord) ([]*types.ContributionRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(recs) == 0 {
		return []*types.ContributionRecord{}, nil
	}
	for _, rec := range recs {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		if rec.Digest == "" {
			rec.Digest = Digest(rec.Subject, rec.Ciphertext, rec.Modulus)
		}
	}
	if err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject"}, {Name: "contribution_id"}},
			DoNothing: true,
		}).
		Create(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func (r *contributionRecordRepo) ListBySubject(dbc dbctx.Context, subject string, limit int) ([]*types.ContributionRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ContributionRecord
	if subject == "" {
		return out, nil
	}
	q := transaction.WithContext(dbc.Ctx).
		Where("subject = ?", subject).
		Order("version ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contributionRecordRepo) CountBySubject(dbc dbctx.Context, subject string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.ContributionRecord{}).
		Where("subject = ?", subject).
		Count(&n).Error
	return n, err
}

func (r *contributionRecordRepo) GetByContributionID(dbc dbctx.Context, subject, contributionID string) (*types.ContributionRecord, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if subject == "" || contributionID == "" {
		return nil, nil
	}
	var rec types.ContributionRecord
	err := transaction.WithContext(dbc.Ctx).
		Where("subject = ? AND contribution_id = ?", subject, contributionID).
		Limit(1).
		Find(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == uuid.Nil {
		return nil, nil
	}
	return &rec, nil
}

// Digest is a hex blake2b-256 over length-prefixed subject, ciphertext and
// modulus. Used to spot duplicated or tampered ledger rows.
func Digest(subject, ciphertext, modulus string) string {
	h, _ := blake2b.New256(nil)
	var size [8]byte
	for _, part := range []string{subject, ciphertext, modulus} {
		binary.BigEndian.PutUint64(size[:], uint64(len(part)))
		h.Write(size[:])
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
