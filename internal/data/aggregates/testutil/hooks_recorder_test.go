package testutil

import (
	"strings"
	"testing"
	"time"
)

func TestHooksRecorderTallies(t *testing.T) {
	h := &HooksRecorder{}
	h.ObserveOperation("EncryptedAggregate.Get", "success", time.Millisecond)
	h.ObserveOperation("EncryptedAggregate.Get", "store_unavailable", time.Millisecond)
	h.ObserveOperation("EncryptedAggregate.CompareAndSwap", "success", time.Millisecond)
	h.IncConflict("EncryptedAggregate.CompareAndSwap")
	h.IncRetry("EncryptedAggregate.Get")
	h.IncRetry("EncryptedAggregate.Get")

	if got := h.CountStatus("EncryptedAggregate.Get", "success"); got != 1 {
		t.Fatalf("get successes: want=1 got=%d", got)
	}
	if got := h.CountStatus("EncryptedAggregate.CompareAndSwap", "conflict"); got != 0 {
		t.Fatalf("cas conflicts status: want=0 got=%d", got)
	}
	if h.Conflicts("EncryptedAggregate.CompareAndSwap") != 1 || h.Retries("EncryptedAggregate.Get") != 2 {
		t.Fatalf("unexpected tallies: %s", h)
	}
	if !strings.Contains(h.String(), "EncryptedAggregate.Get store_unavailable=1") {
		t.Fatalf("summary: %s", h)
	}
}
