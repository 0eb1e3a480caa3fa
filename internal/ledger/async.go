package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yungbote/cipheragg/internal/accumulation"
	"github.com/yungbote/cipheragg/internal/platform/logger"
)

var (
	ErrQueueFull = errors.New("ledger queue full")
	ErrClosed    = errors.New("ledger closed")
)

const (
	DefaultQueueSize     = 1024
	defaultAppendTimeout = 10 * time.Second
)

// Async hands records to a background worker. Append never blocks: when the
// queue is full the record is dropped and ErrQueueFull returned.
type Async struct {
	inner   accumulation.Ledger
	log     *logger.Logger
	timeout time.Duration
	onFail  func(accumulation.Record, error)

	mu     sync.RWMutex
	closed bool
	queue  chan accumulation.Record
	done   chan struct{}

	failures atomic.Int64
	dropped  atomic.Int64
}

var _ accumulation.Ledger = (*Async)(nil)

type AsyncOption func(*Async)

// WithFailureHook is called from the worker for every failed append.
func WithFailureHook(fn func(accumulation.Record, error)) AsyncOption {
	return func(a *Async) { a.onFail = fn }
}

func WithAppendTimeout(d time.Duration) AsyncOption {
	return func(a *Async) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func NewAsync(inner accumulation.Ledger, size int, log *logger.Logger, opts ...AsyncOption) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if log == nil {
		log = logger.NewNop()
	}
	a := &Async{
		inner:   inner,
		log:     log.With("component", "AsyncLedger"),
		timeout: defaultAppendTimeout,
		queue:   make(chan accumulation.Record, size),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	go a.run()
	return a
}

func (a *Async) Append(_ context.Context, rec accumulation.Record) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- rec:
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for rec := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.inner.Append(ctx, rec)
		cancel()
		if err == nil {
			continue
		}
		a.failures.Add(1)
		a.log.Warn("record ledger append failed",
			"subject", rec.Subject,
			"contribution_id", rec.ContributionID,
			"error", err,
		)
		if a.onFail != nil {
			a.onFail(rec, err)
		}
	}
}

// Failures counts appends the inner ledger rejected.
func (a *Async) Failures() int64 { return a.failures.Load() }

// Dropped counts records refused because the queue was full.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting records and waits until queued ones are written or ctx ends.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
