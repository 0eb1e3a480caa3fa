package accumulationtest

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/cipheragg/internal/accumulation"
)

// HooksRecorder captures orchestrator hook signals in tests.
type HooksRecorder struct {
	mu sync.Mutex

	Operations     []OperationEvent
	Conflicts      []string
	Retries        []string
	Replays        []string
	LedgerFailures []string
}

type OperationEvent struct {
	Name     string
	Status   string
	Duration time.Duration
}

var _ accumulation.Hooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) ObserveOperation(name, status string, dur time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Operations = append(h.Operations, OperationEvent{Name: name, Status: status, Duration: dur})
}

func (h *HooksRecorder) IncConflict(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Conflicts = append(h.Conflicts, name)
}

func (h *HooksRecorder) IncRetry(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Retries = append(h.Retries, name)
}

func (h *HooksRecorder) IncReplay(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Replays = append(h.Replays, name)
}

func (h *HooksRecorder) IncLedgerFailure(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LedgerFailures = append(h.LedgerFailures, name)
}

// Statuses returns the recorded operation statuses in order.
func (h *HooksRecorder) Statuses() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.Operations))
	for _, op := range h.Operations {
		out = append(out, op.Status)
	}
	return out
}

// Counts returns conflict, retry, replay and ledger failure totals.
func (h *HooksRecorder) Counts() (conflicts, retries, replays, ledgerFailures int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Conflicts), len(h.Retries), len(h.Replays), len(h.LedgerFailures)
}

// RecordingLedger keeps appended records in memory and can fail on demand.
type RecordingLedger struct {
	mu      sync.Mutex
	Records []accumulation.Record
	Err     error
}

var _ accumulation.Ledger = (*RecordingLedger)(nil)

func (l *RecordingLedger) Append(_ context.Context, rec accumulation.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	l.Records = append(l.Records, rec)
	return nil
}

func (l *RecordingLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Records)
}
