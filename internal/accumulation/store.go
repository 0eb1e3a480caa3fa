package accumulation

import (
	"context"
	"time"
)

// Store owns persisted aggregate state. Both methods must be atomic and
// durable once they return without error.
type Store interface {
	// Get returns the current state, or nil when the subject has none.
	Get(ctx context.Context, subject string) (*State, error)
	// CompareAndSwap writes next only if the stored state is still expected
	// (nil expected means "absent"). It reports false on a lost race.
	// A non-nil error means the outcome is unknown.
	CompareAndSwap(ctx context.Context, subject string, expected *State, next State) (bool, error)
}

// Record is a raw contribution as handed to the record ledger.
type Record struct {
	ContributionID string
	Subject        string
	Ciphertext     string
	Modulus        string
	Fields         map[string]string
	// Version is the aggregate version the contribution produced.
	Version   int64
	AppliedAt time.Time
}

// Ledger is an append-only sink for raw contributions. It is fed after a
// successful aggregate update; its failures never affect the aggregate.
type Ledger interface {
	Append(ctx context.Context, rec Record) error
}

// Hooks receives orchestrator observability signals.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
	IncReplay(name string)
	IncLedgerFailure(name string)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(string, string, time.Duration) {}
func (noopHooks) IncConflict(string)                             {}
func (noopHooks) IncRetry(string)                                {}
func (noopHooks) IncReplay(string)                               {}
func (noopHooks) IncLedgerFailure(string)                        {}

// SameSnapshot reports whether two reads observed the same stored version.
func SameSnapshot(a, b *State) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Version == b.Version
}
