package accumulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domainagg "github.com/yungbote/cipheragg/internal/domain/aggregates"
	"github.com/yungbote/cipheragg/internal/platform/logger"
)

const tracerName = "github.com/yungbote/cipheragg/internal/accumulation"

// Orchestrator applies contributions to per-subject aggregates through a Store.
// It is safe for concurrent use.
type Orchestrator struct {
	store  Store
	ledger Ledger
	log    *logger.Logger
	hooks  Hooks
	tracer trace.Tracer
	locks  *SubjectLocks
	now    func() time.Time

	maxConflicts   int
	storeRetries   int
	backoffInitial time.Duration
	backoffMax     time.Duration
	window         int
}

// NewOrchestrator wires an orchestrator around an opened store. The caller
// owns the store's lifecycle.
func NewOrchestrator(store Store, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, "Accumulation.NewOrchestrator", "store is required", nil)
	}
	o := &Orchestrator{
		store:          store,
		log:            logger.NewNop(),
		hooks:          noopHooks{},
		tracer:         otel.Tracer(tracerName),
		now:            time.Now,
		maxConflicts:   DefaultMaxConflicts,
		storeRetries:   DefaultStoreRetries,
		backoffInitial: DefaultBackoffInitial,
		backoffMax:     DefaultBackoffMax,
		window:         DefaultReplayWindow,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.log = o.log.With("component", "AccumulationOrchestrator")
	return o, nil
}

// Contribute parses and applies one contribution given as decimal strings.
func (o *Orchestrator) Contribute(ctx context.Context, subject, ciphertext, modulus string, opts ...ContributionOption) (State, error) {
	c, err := NewContribution(subject, ciphertext, modulus, opts...)
	if err != nil {
		o.hooks.ObserveOperation(opContribute, string(domainagg.CodeInvalidInput), 0)
		return State{}, err
	}
	return o.ContributeWith(ctx, c)
}

const opContribute = "Accumulation.Contribute"

// ContributeWith applies an already-parsed contribution and returns the
// persisted state. A contribution whose ID the subject already remembers is
// not applied again; the current state is returned instead.
func (o *Orchestrator) ContributeWith(ctx context.Context, c Contribution) (State, error) {
	start := time.Now()
	if err := c.validate(opContribute); err != nil {
		o.hooks.ObserveOperation(opContribute, string(domainagg.CodeInvalidInput), 0)
		return State{}, err
	}

	ctx, span := o.tracer.Start(ctx, opContribute, trace.WithAttributes(
		attribute.String("contribution.id", c.ID),
	))
	defer span.End()

	res, err := o.contribute(ctx, c)

	status := "success"
	switch {
	case err != nil:
		status = string(domainagg.CodeOf(err))
		if status == "" {
			status = string(domainagg.CodeInternal)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	case res.replayed:
		status = "replayed"
	}
	span.SetAttributes(
		attribute.Int("aggregate.conflicts", res.conflicts),
		attribute.Int64("aggregate.version", res.state.Version),
		attribute.String("aggregate.status", status),
	)
	o.hooks.ObserveOperation(opContribute, status, time.Since(start))

	if err != nil {
		o.log.Warn("contribution rejected",
			"subject", c.Subject,
			"contribution_id", c.ID,
			"code", status,
			"error", err,
		)
		return State{}, err
	}
	if res.replayed {
		o.hooks.IncReplay(opContribute)
		o.log.Info("contribution already applied",
			"subject", c.Subject,
			"contribution_id", c.ID,
			"version", res.state.Version,
		)
		return res.state, nil
	}
	o.log.Debug("contribution applied",
		"subject", c.Subject,
		"contribution_id", c.ID,
		"version", res.state.Version,
		"conflicts", res.conflicts,
	)
	o.appendLedger(ctx, c, res.state)
	return res.state, nil
}

// Load returns the stored aggregate for subject.
func (o *Orchestrator) Load(ctx context.Context, subject string) (State, error) {
	const op = "Accumulation.Load"
	if subject == "" {
		return State{}, domainagg.NewError(domainagg.CodeInvalidInput, op, "missing subject", nil)
	}
	st, err := o.get(ctx, subject)
	if err != nil {
		return State{}, err
	}
	if st == nil {
		return State{}, domainagg.NewSubjectError(domainagg.CodeNotFound, op, subject, "no aggregate for subject", nil)
	}
	return *st, nil
}

type contributeResult struct {
	state     State
	conflicts int
	replayed  bool
}

func (o *Orchestrator) contribute(ctx context.Context, c Contribution) (contributeResult, error) {
	var out contributeResult
	if o.locks != nil {
		unlock, err := o.locks.Lock(ctx, c.Subject)
		if err != nil {
			return out, o.expired(c, out.conflicts, err)
		}
		defer unlock()
	}

	pause := o.newBackoff()
	for {
		if err := ctx.Err(); err != nil {
			return out, o.expired(c, out.conflicts, err)
		}

		current, err := o.get(ctx, c.Subject)
		if err != nil {
			if ctx.Err() != nil {
				return out, o.expired(c, out.conflicts, errors.Join(ctx.Err(), err))
			}
			return out, err
		}
		if current != nil {
			if err := current.Validate(); err != nil {
				return out, err
			}
			if current.HasApplied(c.ID) {
				out.state, out.replayed = *current, true
				return out, nil
			}
		}

		var next State
		at := o.now()
		if current == nil {
			next, err = Seed(c, o.window, at)
		} else {
			next, err = Apply(*current, c, o.window, at)
		}
		if err != nil {
			return out, err
		}

		committed, err := o.compareAndSwap(ctx, c, current, next)
		if err != nil {
			if ctx.Err() != nil {
				return out, o.expired(c, out.conflicts, errors.Join(ctx.Err(), err))
			}
			return out, err
		}
		if committed {
			out.state = next
			return out, nil
		}

		out.conflicts++
		o.hooks.IncConflict(opContribute)
		if out.conflicts >= o.maxConflicts {
			return out, domainagg.NewSubjectError(domainagg.CodeConcurrencyExhausted, opContribute, c.Subject,
				fmt.Sprintf("gave up after %d conflicting writes", out.conflicts), nil)
		}
		if err := sleepCtx(ctx, pause.NextBackOff()); err != nil {
			return out, o.expired(c, out.conflicts, err)
		}
	}
}

// compareAndSwap writes next and resolves unknown outcomes. When the store
// fails after possibly committing, the state is re-read: if it carries this
// contribution's ID at next's version or later, the write landed, even when
// other writers have committed on top of it since.
func (o *Orchestrator) compareAndSwap(ctx context.Context, c Contribution, expected *State, next State) (bool, error) {
	var (
		attempt int
		lastErr error
	)
	operation := func() (bool, error) {
		attempt++
		if attempt > 1 {
			cur, err := o.store.Get(ctx, c.Subject)
			if err != nil {
				return false, o.retryable(&lastErr, err)
			}
			if cur != nil && cur.Version >= next.Version && cur.HasApplied(c.ID) {
				return true, nil
			}
			if !SameSnapshot(cur, expected) {
				return false, nil
			}
		}
		ok, err := o.store.CompareAndSwap(ctx, c.Subject, expected, next)
		if err != nil {
			return false, o.retryable(&lastErr, err)
		}
		return ok, nil
	}
	ok, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(o.newBackoff()),
		backoff.WithMaxTries(uint(o.storeRetries)),
	)
	if err != nil {
		return false, o.storeUnavailable(c.Subject, lastErr, err)
	}
	return ok, nil
}

func (o *Orchestrator) get(ctx context.Context, subject string) (*State, error) {
	var lastErr error
	st, err := backoff.Retry(ctx, func() (*State, error) {
		st, err := o.store.Get(ctx, subject)
		if err != nil {
			return nil, o.retryable(&lastErr, err)
		}
		return st, nil
	},
		backoff.WithBackOff(o.newBackoff()),
		backoff.WithMaxTries(uint(o.storeRetries)),
	)
	if err != nil {
		return nil, o.storeUnavailable(subject, lastErr, err)
	}
	return st, nil
}

// retryable records err and tells backoff whether another attempt makes sense.
func (o *Orchestrator) retryable(last *error, err error) error {
	*last = err
	if code := domainagg.CodeOf(err); code != "" && !code.Retryable() {
		return backoff.Permanent(err)
	}
	o.hooks.IncRetry(opContribute)
	return err
}

func (o *Orchestrator) storeUnavailable(subject string, lastErr, retryErr error) error {
	cause := lastErr
	if cause == nil {
		cause = retryErr
	}
	var aggErr *domainagg.Error
	if errors.As(cause, &aggErr) && !aggErr.Code.Retryable() {
		// Stores may report permanent failures (corrupt rows) with their own code.
		return cause
	}
	return domainagg.NewSubjectError(domainagg.CodeStoreUnavailable, opContribute, subject,
		fmt.Sprintf("store unavailable after %d attempts", o.storeRetries), errors.Join(cause, retryErr))
}

func (o *Orchestrator) expired(c Contribution, conflicts int, err error) error {
	code := domainagg.CodeStoreUnavailable
	if conflicts > 0 {
		code = domainagg.CodeConcurrencyExhausted
	}
	return domainagg.NewSubjectError(code, opContribute, c.Subject, "deadline reached before the aggregate could be updated", err)
}

func (o *Orchestrator) appendLedger(ctx context.Context, c Contribution, st State) {
	if o.ledger == nil {
		return
	}
	rec := Record{
		ContributionID: c.ID,
		Subject:        c.Subject,
		Ciphertext:     c.Ciphertext.String(),
		Modulus:        c.Modulus.String(),
		Fields:         c.Fields,
		Version:        st.Version,
		AppliedAt:      st.UpdatedAt,
	}
	if err := o.ledger.Append(context.WithoutCancel(ctx), rec); err != nil {
		o.hooks.IncLedgerFailure(defaultLedgerOperation)
		o.log.Warn("record ledger append failed",
			"subject", c.Subject,
			"contribution_id", c.ID,
			"error", err,
		)
	}
}

func (o *Orchestrator) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.backoffInitial
	b.MaxInterval = o.backoffMax
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
