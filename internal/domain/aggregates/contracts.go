package aggregates

// WriteTxOwnership defines who owns write transaction boundaries.
type WriteTxOwnership string

const (
	// WriteTxOwnedByAggregate means aggregate write methods start/manage atomic DB transactions internally.
	WriteTxOwnedByAggregate WriteTxOwnership = "aggregate_owned"
	// WriteTxOwnedByStore means the store's compare-and-swap is the only atomic unit.
	WriteTxOwnedByStore WriteTxOwnership = "store_owned"
)

// ConcurrencyDiscipline names the lost-update protection a writer relies on.
type ConcurrencyDiscipline string

const (
	DisciplineCompareAndSwap ConcurrencyDiscipline = "compare_and_swap"
	DisciplineSubjectLock    ConcurrencyDiscipline = "subject_lock"
)

// Contract describes aggregate-level policy expectations.
type Contract struct {
	Name             string
	WriteTxOwnership WriteTxOwnership
	Discipline       ConcurrencyDiscipline
	Notes            string
}

// Aggregate is the common marker for all aggregate contracts.
// Implementations should return a stable contract description.
type Aggregate interface {
	Contract() Contract
}

// EncryptedTotalContract describes the per-subject encrypted running total.
var EncryptedTotalContract = Contract{
	Name:             "Accumulation.EncryptedTotal",
	WriteTxOwnership: WriteTxOwnedByStore,
	Discipline:       DisciplineCompareAndSwap,
	Notes:            "One row per subject; version-guarded CAS on every contribution; modulus fixed at seed.",
}

// RequiresAggregateOwnedTx returns true when write transaction ownership is aggregate-owned.
func (c Contract) RequiresAggregateOwnedTx() bool {
	return c.WriteTxOwnership == WriteTxOwnedByAggregate
}
