package ledger

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/cipheragg/internal/data/repos/testutil"
	types "github.com/yungbote/cipheragg/internal/domain"
	"github.com/yungbote/cipheragg/internal/platform/dbctx"
)

func TestContributionRecordRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewContributionRecordRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	now := time.Now().UTC()

	recs := []*types.ContributionRecord{
		{ContributionID: "c1", Subject: "alice", Ciphertext: "10", Modulus: "17", Version: 1, AppliedAt: now, Fields: datatypes.JSON([]byte(`{"gender":"F"}`))},
		{ContributionID: "c2", Subject: "alice", Ciphertext: "15", Modulus: "17", Version: 2, AppliedAt: now},
		{ContributionID: "c1", Subject: "bob", Ciphertext: "3", Modulus: "19", Version: 1, AppliedAt: now},
	}
	created, err := repo.Create(dbc, recs)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, rec := range created {
		if rec.Digest != Digest(rec.Subject, rec.Ciphertext, rec.Modulus) {
			t.Fatalf("digest not filled: %+v", rec)
		}
	}

	// Redelivery of an already-logged contribution is skipped.
	if _, err := repo.Create(dbc, []*types.ContributionRecord{
		{ContributionID: "c1", Subject: "alice", Ciphertext: "10", Modulus: "17", Version: 1, AppliedAt: now},
	}); err != nil {
		t.Fatalf("Create duplicate: %v", err)
	}

	n, err := repo.CountBySubject(dbc, "alice")
	if err != nil {
		t.Fatalf("CountBySubject: %v", err)
	}
	if n != 2 {
		t.Fatalf("CountBySubject: want=2 got=%d", n)
	}

	list, err := repo.ListBySubject(dbc, "alice", 0)
	if err != nil {
		t.Fatalf("ListBySubject: %v", err)
	}
	if len(list) != 2 || list[0].ContributionID != "c1" || list[1].ContributionID != "c2" {
		t.Fatalf("ListBySubject: %+v", list)
	}

	got, err := repo.GetByContributionID(dbc, "bob", "c1")
	if err != nil || got == nil {
		t.Fatalf("GetByContributionID: rec=%v err=%v", got, err)
	}
	if got.Modulus != "19" {
		t.Fatalf("GetByContributionID: %+v", got)
	}
	if missing, err := repo.GetByContributionID(dbc, "bob", "nope"); err != nil || missing != nil {
		t.Fatalf("GetByContributionID missing: rec=%v err=%v", missing, err)
	}
}

func TestDigestSeparatesFields(t *testing.T) {
	if Digest("ab", "c", "17") == Digest("a", "bc", "17") {
		t.Fatalf("digest must not collide on shifted boundaries")
	}
	if len(Digest("alice", "10", "17")) != 64 {
		t.Fatalf("digest must be hex blake2b-256")
	}
}
