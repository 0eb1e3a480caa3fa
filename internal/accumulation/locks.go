package accumulation

import (
	"context"
	"sync"
)

// SubjectLocks hands out one mutex per subject. Entries are reference
// counted and dropped when the last holder or waiter leaves, so idle
// subjects cost nothing and different subjects never share a lock.
type SubjectLocks struct {
	mu    sync.Mutex
	locks map[string]*subjectLock
}

type subjectLock struct {
	ch   chan struct{}
	refs int
}

func NewSubjectLocks() *SubjectLocks {
	return &SubjectLocks{locks: make(map[string]*subjectLock)}
}

// Lock blocks until the subject's lock is held or ctx is done.
// The returned func releases the lock and must be called exactly once.
func (l *SubjectLocks) Lock(ctx context.Context, subject string) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[subject]
	if !ok {
		sl = &subjectLock{ch: make(chan struct{}, 1)}
		l.locks[subject] = sl
	}
	sl.refs++
	l.mu.Unlock()

	select {
	case sl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(subject, sl)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-sl.ch
			l.release(subject, sl)
		})
	}, nil
}

func (l *SubjectLocks) release(subject string, sl *subjectLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, subject)
	}
}

// Len returns the number of subjects currently locked or awaited.
func (l *SubjectLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
