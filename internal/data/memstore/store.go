// Package memstore is a process-local accumulation.Store. It backs the
// "memory" storage driver and the orchestrator tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/yungbote/cipheragg/internal/accumulation"
)

var _ accumulation.Store = (*Store)(nil)

// Store keeps one state per subject behind a single mutex. Values are copied
// on the way in and out so callers never alias stored state.
type Store struct {
	mu     sync.RWMutex
	states map[string]accumulation.State
}

func New() *Store {
	return &Store{states: make(map[string]accumulation.State)}
}

func (s *Store) Get(ctx context.Context, subject string) (*accumulation.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[subject]
	if !ok {
		return nil, nil
	}
	out := st.Clone()
	return &out, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, subject string, expected *accumulation.State, next accumulation.State) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.states[subject]
	switch {
	case expected == nil && ok:
		return false, nil
	case expected != nil && !ok:
		return false, nil
	case expected != nil && !sameValue(cur, *expected):
		return false, nil
	}
	s.states[subject] = next.Clone()
	return true, nil
}

// Delete drops a subject. Administrative only; the orchestrator never deletes.
func (s *Store) Delete(subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, subject)
}

// Subjects lists stored subjects in lexical order.
func (s *Store) Subjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.states))
	for k := range s.states {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sameValue(a, b accumulation.State) bool {
	return a.Version == b.Version &&
		a.Total.Equal(b.Total) &&
		a.Modulus.Equal(b.Modulus)
}
