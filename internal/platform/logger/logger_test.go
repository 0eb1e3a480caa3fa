package logger

import (
	"math/big"
	"strings"
	"testing"
)

func testPolicy() *policy {
	return newPolicy(true, "salt", defaultRedactKeys, defaultHashKeys)
}

func TestPolicyRedactsCiphertextAndHashesSubject(t *testing.T) {
	p := testPolicy()

	if got := p.value("ciphertext", "123456"); got != redactedValue {
		t.Fatalf("ciphertext: want=%s got=%v", redactedValue, got)
	}
	got, ok := p.value("subject", "alice").(string)
	if !ok || !strings.HasPrefix(got, "hash:") {
		t.Fatalf("subject should be hashed, got=%v", got)
	}
	if again := p.value("subject", "alice"); again != got {
		t.Fatalf("hash must be stable: %v vs %v", again, got)
	}
	if v := p.value("version", int64(3)); v != int64(3) {
		t.Fatalf("unrelated keys pass through, got=%v", v)
	}
}

func TestPolicyHashesBigNumbersUnderAnyKey(t *testing.T) {
	p := testPolicy()
	long := strings.Repeat("7", bigNumberDigits)
	if got, _ := p.value("value", long).(string); !strings.HasPrefix(got, "hash:") {
		t.Fatalf("long digit string should be hashed, got=%v", got)
	}
	n, _ := new(big.Int).SetString(long, 10)
	if got, _ := p.value("value", n).(string); !strings.HasPrefix(got, "hash:") {
		t.Fatalf("big.Int should be hashed, got=%v", got)
	}
	if got := p.value("value", "12345"); got != "12345" {
		t.Fatalf("short numbers pass through, got=%v", got)
	}
}

func TestPolicyWalksFieldMaps(t *testing.T) {
	p := newPolicy(true, "", []string{"name"}, nil)
	out, ok := p.value("extra", map[string]string{"name": "Alice", "gender": "F"}).(map[string]interface{})
	if !ok {
		t.Fatalf("expected sanitized map")
	}
	if out["name"] != redactedValue || out["gender"] != "F" {
		t.Fatalf("map values: %v", out)
	}
}

func TestPolicyDisabledPassesThrough(t *testing.T) {
	p := newPolicy(false, "", defaultRedactKeys, defaultHashKeys)
	kv := []interface{}{"ciphertext", "10"}
	if out := p.apply(kv); out[1] != "10" {
		t.Fatalf("disabled policy must not rewrite, got=%v", out)
	}
}

func TestApplyKeepsOddTrailingKey(t *testing.T) {
	out := testPolicy().apply([]interface{}{"code", "conflict", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected kvs: %v", out)
	}
}

func TestPolicyFromEnvExtendsKeys(t *testing.T) {
	orig := envLookup
	t.Cleanup(func() { envLookup = orig })
	env := map[string]string{"LOG_REDACT_KEYS": "Name, gender", "LOG_REDACTION_ENABLED": "on"}
	envLookup = func(k string) string { return env[k] }

	p := policyFromEnv()
	if !p.enabled {
		t.Fatalf("redaction should be enabled")
	}
	if p.value("name", "Alice") != redactedValue || p.value("gender", "F") != redactedValue {
		t.Fatalf("extra redact keys not applied")
	}

	env["LOG_REDACTION_ENABLED"] = "off"
	if policyFromEnv().enabled {
		t.Fatalf("redaction should be disabled")
	}
}

func TestNopLogger(t *testing.T) {
	l := NewNop()
	l.Info("discarded", "subject", "alice")
	l.With("component", "x").Warn("discarded")
	l.Sync()
}
