package accumulationtest

import (
	"context"
	"errors"
	"sync"

	"github.com/yungbote/cipheragg/internal/accumulation"
)

// ErrInjected is the transient failure FaultyStore returns.
var ErrInjected = errors.New("injected store failure")

// FaultyStore wraps a Store and fails a configured number of calls.
type FaultyStore struct {
	Inner accumulation.Store

	mu sync.Mutex
	// FailGets fails the next N Get calls.
	FailGets int
	// FailCASBefore fails the next N CompareAndSwap calls without writing.
	FailCASBefore int
	// FailCASAfterCommit lets the next N successful CompareAndSwap calls
	// commit, then reports a failure as if the acknowledgment was lost.
	FailCASAfterCommit int
	// BeforeCAS runs before every CompareAndSwap reaches Inner.
	BeforeCAS func(subject string)
	// AfterLostAck runs after a commit whose acknowledgment is about to be
	// dropped, so a test can land another write before the re-read.
	AfterLostAck func(subject string)

	GetCalls int
	CASCalls int
	Commits  int
}

var _ accumulation.Store = (*FaultyStore)(nil)

func (s *FaultyStore) Get(ctx context.Context, subject string) (*accumulation.State, error) {
	s.mu.Lock()
	s.GetCalls++
	fail := s.FailGets > 0
	if fail {
		s.FailGets--
	}
	s.mu.Unlock()
	if fail {
		return nil, ErrInjected
	}
	return s.Inner.Get(ctx, subject)
}

func (s *FaultyStore) CompareAndSwap(ctx context.Context, subject string, expected *accumulation.State, next accumulation.State) (bool, error) {
	s.mu.Lock()
	s.CASCalls++
	failBefore := s.FailCASBefore > 0
	if failBefore {
		s.FailCASBefore--
	}
	hook := s.BeforeCAS
	s.mu.Unlock()
	if failBefore {
		return false, ErrInjected
	}
	if hook != nil {
		hook(subject)
	}

	ok, err := s.Inner.CompareAndSwap(ctx, subject, expected, next)
	if err != nil || !ok {
		return ok, err
	}

	s.mu.Lock()
	s.Commits++
	lost := s.FailCASAfterCommit > 0
	if lost {
		s.FailCASAfterCommit--
	}
	after := s.AfterLostAck
	s.mu.Unlock()
	if !lost {
		return true, nil
	}
	if after != nil {
		after(subject)
	}
	return false, ErrInjected
}

// Calls returns the get/cas/commit counters.
func (s *FaultyStore) Calls() (gets, cas, commits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.GetCalls, s.CASCalls, s.Commits
}
