package paillier

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrMalformedNat is returned when a decimal string is not a canonical non-negative integer.
	ErrMalformedNat = errors.New("malformed non-negative integer")
	// ErrModulusTooSmall is returned when a modulus is not strictly greater than 1.
	ErrModulusTooSmall = errors.New("modulus must be greater than 1")
)

// Nat is an immutable arbitrary-precision non-negative integer.
// The zero value represents 0.
type Nat struct {
	v *big.Int
}

// ParseNat parses a decimal string made only of ASCII digits.
// Signs, whitespace, separators and empty input are rejected.
func ParseNat(s string) (Nat, error) {
	if s == "" {
		return Nat{}, fmt.Errorf("%w: empty", ErrMalformedNat)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Nat{}, fmt.Errorf("%w: unexpected character at offset %d", ErrMalformedNat, i)
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Nat{}, fmt.Errorf("%w: %q", ErrMalformedNat, truncate(s))
	}
	return Nat{v: v}, nil
}

// ParseModulus parses a Paillier public modulus n (n > 1).
func ParseModulus(s string) (Nat, error) {
	n, err := ParseNat(s)
	if err != nil {
		return Nat{}, err
	}
	if n.Int().Cmp(big.NewInt(1)) <= 0 {
		return Nat{}, ErrModulusTooSmall
	}
	return n, nil
}

// NatFromBig copies a non-negative big.Int into a Nat.
func NatFromBig(v *big.Int) (Nat, error) {
	if v == nil || v.Sign() < 0 {
		return Nat{}, fmt.Errorf("%w: negative or nil", ErrMalformedNat)
	}
	return Nat{v: new(big.Int).Set(v)}, nil
}

// MustNat is ParseNat that panics. Intended for constants and tests.
func MustNat(s string) Nat {
	n, err := ParseNat(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Int returns a copy of the value.
func (n Nat) Int() *big.Int {
	if n.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(n.v)
}

// String renders the canonical decimal form (no leading zeros).
func (n Nat) String() string {
	if n.v == nil {
		return "0"
	}
	return n.v.String()
}

func (n Nat) Cmp(o Nat) int {
	return n.Int().Cmp(o.Int())
}

func (n Nat) Equal(o Nat) bool { return n.Cmp(o) == 0 }

func (n Nat) IsZero() bool { return n.v == nil || n.v.Sign() == 0 }

func truncate(s string) string {
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}
