package testutil

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yungbote/cipheragg/internal/data/aggregates"
)

// HooksRecorder tallies store hook signals so tests can assert on them.
type HooksRecorder struct {
	mu        sync.Mutex
	statuses  map[string]int
	conflicts map[string]int
	retries   map[string]int
}

var _ aggregates.Hooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) ObserveOperation(name, status string, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	bump(&h.statuses, name+" "+status)
}

func (h *HooksRecorder) IncConflict(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	bump(&h.conflicts, name)
}

func (h *HooksRecorder) IncRetry(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	bump(&h.retries, name)
}

// CountStatus returns how many operations named name ended with status.
func (h *HooksRecorder) CountStatus(name, status string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statuses[name+" "+status]
}

func (h *HooksRecorder) Conflicts(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conflicts[name]
}

func (h *HooksRecorder) Retries(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.retries[name]
}

// String lists the recorded "operation status" tallies, for failure messages.
func (h *HooksRecorder) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.statuses))
	for k := range h.statuses {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		out += fmt.Sprintf("%s=%d; ", k, h.statuses[k])
	}
	return out
}

func bump(m *map[string]int, key string) {
	if *m == nil {
		*m = make(map[string]int)
	}
	(*m)[key]++
}
