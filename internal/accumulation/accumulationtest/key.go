package accumulationtest

import (
	"crypto/rand"
	"math/big"
	"testing"
)

// Key is a throwaway Paillier keypair with g = n+1. It exists so tests can
// check that accumulated totals decrypt to the plaintext sum.
type Key struct {
	N, NSquared *big.Int
	lambda, mu  *big.Int
}

// NewKey generates a key whose primes have the given bit length.
func NewKey(tb testing.TB, bits int) *Key {
	tb.Helper()
	one := big.NewInt(1)
	for {
		p, err := rand.Prime(rand.Reader, bits)
		if err != nil {
			tb.Fatalf("prime p: %v", err)
		}
		q, err := rand.Prime(rand.Reader, bits)
		if err != nil {
			tb.Fatalf("prime q: %v", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}
		n := new(big.Int).Mul(p, q)
		pm1, qm1 := new(big.Int).Sub(p, one), new(big.Int).Sub(q, one)
		gcd := new(big.Int).GCD(nil, nil, pm1, qm1)
		lambda := new(big.Int).Div(new(big.Int).Mul(pm1, qm1), gcd)
		mu := new(big.Int).ModInverse(lambda, n)
		if mu == nil {
			continue
		}
		return &Key{N: n, NSquared: new(big.Int).Mul(n, n), lambda: lambda, mu: mu}
	}
}

// Encrypt returns a fresh ciphertext of m.
func (k *Key) Encrypt(tb testing.TB, m int64) *big.Int {
	tb.Helper()
	one := big.NewInt(1)
	var r *big.Int
	for {
		var err error
		r, err = rand.Int(rand.Reader, k.N)
		if err != nil {
			tb.Fatalf("rand r: %v", err)
		}
		if r.Sign() > 0 && new(big.Int).GCD(nil, nil, r, k.N).Cmp(one) == 0 {
			break
		}
	}
	g := new(big.Int).Add(k.N, one)
	c := new(big.Int).Exp(g, big.NewInt(m), k.NSquared)
	c.Mul(c, new(big.Int).Exp(r, k.N, k.NSquared))
	return c.Mod(c, k.NSquared)
}

// Decrypt recovers the plaintext behind c.
func (k *Key) Decrypt(c *big.Int) *big.Int {
	u := new(big.Int).Exp(c, k.lambda, k.NSquared)
	u.Sub(u, big.NewInt(1))
	u.Div(u, k.N)
	u.Mul(u, k.mu)
	return u.Mod(u, k.N)
}
