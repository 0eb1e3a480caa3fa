package paillier

import (
	"crypto/rand"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func randBelow(t *testing.T, max *big.Int) *big.Int {
	t.Helper()
	v, err := rand.Int(rand.Reader, max)
	require.NoError(t, err)
	return v
}

func TestCombineWorkedExample(t *testing.T) {
	nsq := big.NewInt(289)

	total, err := Combine(big.NewInt(10), big.NewInt(15), nsq)
	require.NoError(t, err)
	require.Equal(t, "150", total.String())

	total, err = Combine(total, big.NewInt(15), nsq)
	require.NoError(t, err)
	require.Equal(t, "227", total.String())
}

func TestCombineCommutativeAndAssociative(t *testing.T) {
	m, ok := new(big.Int).SetString("340282366920938463463374607431768211297", 10)
	require.True(t, ok)
	m.Mul(m, m)

	for i := 0; i < 50; i++ {
		x, y, z := randBelow(t, m), randBelow(t, m), randBelow(t, m)

		xy, err := Combine(x, y, m)
		require.NoError(t, err)
		yx, err := Combine(y, x, m)
		require.NoError(t, err)
		require.Zero(t, xy.Cmp(yx), "commutativity")

		left, err := Combine(xy, z, m)
		require.NoError(t, err)
		yz, err := Combine(y, z, m)
		require.NoError(t, err)
		right, err := Combine(x, yz, m)
		require.NoError(t, err)
		require.Zero(t, left.Cmp(right), "associativity")
	}
}

func TestCombineDoesNotTruncateWideProducts(t *testing.T) {
	// Both operands exceed 64 bits; their product exceeds 128.
	nsq := new(big.Int).Lsh(big.NewInt(1), 200)
	a := new(big.Int).Sub(nsq, big.NewInt(1))
	b := new(big.Int).Sub(nsq, big.NewInt(3))

	got, err := Combine(a, b, nsq)
	require.NoError(t, err)
	// (-1)(-3) = 3 mod 2^200
	require.Equal(t, "3", got.String())
}

func TestCombineDoesNotMutateInputs(t *testing.T) {
	a, b, nsq := big.NewInt(10), big.NewInt(15), big.NewInt(289)
	_, err := Combine(a, b, nsq)
	require.NoError(t, err)
	require.Equal(t, "10", a.String())
	require.Equal(t, "15", b.String())
	require.Equal(t, "289", nsq.String())
}

func TestCombineRejectsOutOfRangeOperands(t *testing.T) {
	nsq := big.NewInt(289)
	cases := []struct {
		name   string
		c1, c2 *big.Int
		m      *big.Int
	}{
		{"c1 equals modulus", big.NewInt(289), big.NewInt(1), nsq},
		{"c2 above modulus", big.NewInt(1), big.NewInt(1000), nsq},
		{"negative", big.NewInt(-1), big.NewInt(1), nsq},
		{"nil operand", nil, big.NewInt(1), nsq},
		{"zero modulus", big.NewInt(0), big.NewInt(0), big.NewInt(0)},
		{"nil modulus", big.NewInt(0), big.NewInt(0), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Combine(tc.c1, tc.c2, tc.m)
			require.Nil(t, out)
			require.True(t, errors.Is(err, ErrInvalidOperand), "got %v", err)
		})
	}
}

func TestCombineDecryptsToSum(t *testing.T) {
	key := newTestKey(t, 96)
	for i := 0; i < 10; i++ {
		a := randBelow(t, key.n)
		b := randBelow(t, key.n)

		sum, err := Combine(key.encrypt(t, a), key.encrypt(t, b), key.nsq)
		require.NoError(t, err)

		want := new(big.Int).Add(a, b)
		want.Mod(want, key.n)
		require.Zero(t, key.decrypt(sum).Cmp(want))
	}
}

func TestCombineAllFoldsInAnyOrder(t *testing.T) {
	key := newTestKey(t, 64)
	plain := []int64{5, 17, 0, 250, 3}
	var cs []*big.Int
	for _, p := range plain {
		cs = append(cs, key.encrypt(t, big.NewInt(p)))
	}

	fwd, err := CombineAll(key.nsq, cs...)
	require.NoError(t, err)
	rev := make([]*big.Int, len(cs))
	for i, c := range cs {
		rev[len(cs)-1-i] = c
	}
	back, err := CombineAll(key.nsq, rev...)
	require.NoError(t, err)

	require.Zero(t, fwd.Cmp(back))
	require.Equal(t, "275", key.decrypt(fwd).String())
}

func TestSquare(t *testing.T) {
	require.Equal(t, "289", Square(big.NewInt(17)).String())
	require.Equal(t, "0", Square(nil).String())
	require.Equal(t, "361", SquareNat(MustNat("19")).String())
}
