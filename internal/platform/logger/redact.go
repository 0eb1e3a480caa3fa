package logger

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"
)

const (
	redactedValue = "[REDACTED]"
	// Digit strings at least this long are treated as ciphertexts or moduli
	// whatever key they are logged under.
	bigNumberDigits = 64
)

var (
	defaultRedactKeys = []string{"ciphertext", "fields", "password", "secret", "token", "authorization", "dsn"}
	defaultHashKeys   = []string{"subject", "total", "modulus"}
)

// policy decides what happens to each logged value. Keys match when the
// lower-cased key contains a rule.
type policy struct {
	enabled bool
	salt    string
	redact  []string
	hash    []string
}

var (
	policyOnce sync.Once
	active     atomic.Pointer[policy]
	envLookup  = os.Getenv
)

func currentPolicy() *policy {
	policyOnce.Do(func() {
		if active.Load() == nil {
			active.Store(policyFromEnv())
		}
	})
	return active.Load()
}

// policyFromEnv reads LOG_REDACTION_ENABLED (default on), LOG_HASH_SALT and
// the comma lists LOG_REDACT_KEYS / LOG_HASH_KEYS, which extend the defaults.
func policyFromEnv() *policy {
	enabled := true
	switch strings.ToLower(strings.TrimSpace(envLookup("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		enabled = false
	}
	return newPolicy(enabled,
		strings.TrimSpace(envLookup("LOG_HASH_SALT")),
		append(append([]string(nil), defaultRedactKeys...), splitKeys(envLookup("LOG_REDACT_KEYS"))...),
		append(append([]string(nil), defaultHashKeys...), splitKeys(envLookup("LOG_HASH_KEYS"))...),
	)
}

func newPolicy(enabled bool, salt string, redact, hash []string) *policy {
	return &policy{enabled: enabled, salt: salt, redact: redact, hash: hash}
}

func (p *policy) apply(kv []interface{}) []interface{} {
	if p == nil || !p.enabled || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := fmt.Sprint(kv[i])
		out = append(out, key, p.value(strings.ToLower(strings.TrimSpace(key)), kv[i+1]))
	}
	return out
}

func (p *policy) value(key string, val interface{}) interface{} {
	switch {
	case matchesAny(key, p.redact):
		return redactedValue
	case matchesAny(key, p.hash):
		return p.digest(val)
	}
	switch v := val.(type) {
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = p.value(strings.ToLower(k), inner)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = p.value(strings.ToLower(k), inner)
		}
		return out
	case string:
		if isBigNumber(v) {
			return p.digest(v)
		}
	case fmt.Stringer:
		if s := v.String(); isBigNumber(s) {
			return p.digest(s)
		}
	}
	return val
}

// digest is a short salted blake2b fingerprint, stable across log lines so
// events for one subject can still be correlated.
func (p *policy) digest(val interface{}) string {
	raw := stringify(val)
	if raw == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(p.salt + "\x00" + raw))
	return "hash:" + hex.EncodeToString(sum[:6])
}

func matchesAny(key string, rules []string) bool {
	if key == "" {
		return false
	}
	for _, r := range rules {
		if r != "" && strings.Contains(key, r) {
			return true
		}
	}
	return false
}

func isBigNumber(s string) bool {
	if len(s) < bigNumberDigits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func splitKeys(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
