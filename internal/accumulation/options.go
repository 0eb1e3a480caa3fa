package accumulation

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/cipheragg/internal/platform/logger"
)

const (
	DefaultMaxConflicts    = 16
	DefaultStoreRetries    = 5
	DefaultBackoffInitial  = 5 * time.Millisecond
	DefaultBackoffMax      = 250 * time.Millisecond
	defaultLedgerOperation = "Accumulation.Ledger.Append"
)

type Option func(*Orchestrator)

func WithLogger(log *logger.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) {
		if h != nil {
			o.hooks = h
		}
	}
}

// WithLedger feeds every applied contribution to l after the aggregate commits.
func WithLedger(l Ledger) Option {
	return func(o *Orchestrator) { o.ledger = l }
}

// WithMaxConflicts bounds how many lost CAS races one call tolerates.
func WithMaxConflicts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConflicts = n
		}
	}
}

// WithStoreRetries bounds attempts per store call on transient failures.
func WithStoreRetries(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.storeRetries = n
		}
	}
}

// WithBackoff sets the exponential backoff used between store retries and
// after CAS conflicts.
func WithBackoff(initial, max time.Duration) Option {
	return func(o *Orchestrator) {
		if initial > 0 {
			o.backoffInitial = initial
		}
		if max > 0 {
			o.backoffMax = max
		}
		if o.backoffMax < o.backoffInitial {
			o.backoffMax = o.backoffInitial
		}
	}
}

// WithLocalLocking serializes same-subject calls inside this process before
// they reach the store. CAS still guards against other processes.
func WithLocalLocking(enabled bool) Option {
	return func(o *Orchestrator) {
		if enabled {
			o.locks = NewSubjectLocks()
		} else {
			o.locks = nil
		}
	}
}

// WithReplayWindow sets how many contribution IDs each State remembers.
func WithReplayWindow(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.window = n
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithClock overrides the time source stamped on states and records.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}
