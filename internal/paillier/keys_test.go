package paillier

import (
	"crypto/rand"
	"math/big"
	"testing"
)

// testKey is a throwaway Paillier keypair (g = n+1) used to check the
// homomorphism end to end. Production code never encrypts or decrypts.
type testKey struct {
	n, nsq, lambda, mu *big.Int
}

func newTestKey(tb testing.TB, bits int) *testKey {
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
		pm1 := new(big.Int).Sub(p, one)
		qm1 := new(big.Int).Sub(q, one)
		gcd := new(big.Int).GCD(nil, nil, pm1, qm1)
		lambda := new(big.Int).Div(new(big.Int).Mul(pm1, qm1), gcd)
		mu := new(big.Int).ModInverse(lambda, n)
		if mu == nil {
			continue
		}
		return &testKey{n: n, nsq: new(big.Int).Mul(n, n), lambda: lambda, mu: mu}
	}
}

func (k *testKey) encrypt(tb testing.TB, m *big.Int) *big.Int {
	tb.Helper()
	one := big.NewInt(1)
	var r *big.Int
	for {
		var err error
		r, err = rand.Int(rand.Reader, k.n)
		if err != nil {
			tb.Fatalf("rand r: %v", err)
		}
		if r.Sign() > 0 && new(big.Int).GCD(nil, nil, r, k.n).Cmp(one) == 0 {
			break
		}
	}
	g := new(big.Int).Add(k.n, one)
	gm := new(big.Int).Exp(g, m, k.nsq)
	rn := new(big.Int).Exp(r, k.n, k.nsq)
	c := gm.Mul(gm, rn)
	return c.Mod(c, k.nsq)
}

func (k *testKey) decrypt(c *big.Int) *big.Int {
	u := new(big.Int).Exp(c, k.lambda, k.nsq)
	u.Sub(u, big.NewInt(1))
	u.Div(u, k.n)
	u.Mul(u, k.mu)
	return u.Mod(u, k.n)
}
