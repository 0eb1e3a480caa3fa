package testutil

import (
	"context"
	"sync"

	"github.com/yungbote/cipheragg/internal/data/aggregates"
	"github.com/yungbote/cipheragg/internal/platform/dbctx"
)

// Stage is the point in a transaction where a scripted fault fires.
type Stage int

const (
	StageBegin Stage = iota + 1
	StageBody
	// StageCommit fires after the body succeeded. The body runs without a
	// real transaction, so with a DB behind the CASGuard this models a write
	// that landed but whose acknowledgment was lost.
	StageCommit
)

// Fault is one scripted failure.
type Fault struct {
	Stage Stage
	Err   error
}

// Outcome records how one InTx call ended.
type Outcome string

const (
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
	OutcomeNotStarted Outcome = "not_started"
)

// FaultRunner is a TxRunner that plays Script one fault per call, in order.
// Calls past the end of the script run cleanly.
type FaultRunner struct {
	mu       sync.Mutex
	Script   []Fault
	outcomes []Outcome
}

var _ aggregates.TxRunner = (*FaultRunner)(nil)

// LoseAcks scripts n consecutive commit faults.
func LoseAcks(n int, err error) *FaultRunner {
	r := &FaultRunner{}
	for i := 0; i < n; i++ {
		r.Script = append(r.Script, Fault{Stage: StageCommit, Err: err})
	}
	return r
}

func (r *FaultRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	f := r.next()
	if f.Stage == StageBegin {
		r.record(OutcomeNotStarted)
		return f.Err
	}
	if f.Stage == StageBody {
		r.record(OutcomeRolledBack)
		return f.Err
	}
	if fn != nil {
		if err := fn(dbctx.Context{Ctx: ctx}); err != nil {
			r.record(OutcomeRolledBack)
			return err
		}
	}
	if f.Stage == StageCommit {
		r.record(OutcomeRolledBack)
		return f.Err
	}
	r.record(OutcomeCommitted)
	return nil
}

// Calls is the number of InTx invocations so far.
func (r *FaultRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outcomes)
}

// Outcomes returns a copy of the per-call outcomes.
func (r *FaultRunner) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

func (r *FaultRunner) next() Fault {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := len(r.outcomes)
	if i < len(r.Script) {
		return r.Script[i]
	}
	return Fault{}
}

func (r *FaultRunner) record(o Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}
