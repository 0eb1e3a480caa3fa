package paillier

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNatAcceptsDigits(t *testing.T) {
	for in, want := range map[string]string{
		"0":   "0",
		"17":  "17",
		"007": "7",
		"123456789012345678901234567890123456789": "123456789012345678901234567890123456789",
	} {
		n, err := ParseNat(in)
		require.NoError(t, err, in)
		require.Equal(t, want, n.String())
	}
}

func TestParseNatRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", " 1", "1 ", "-5", "+5", "1e3", "0x10", "12a", "1_000", "\t7", "١٢"} {
		_, err := ParseNat(in)
		require.Error(t, err, "input %q", in)
		require.True(t, errors.Is(err, ErrMalformedNat), "input %q: %v", in, err)
	}
}

func TestParseModulus(t *testing.T) {
	n, err := ParseModulus("17")
	require.NoError(t, err)
	require.Equal(t, "17", n.String())

	for _, in := range []string{"0", "1", "001"} {
		_, err := ParseModulus(in)
		require.True(t, errors.Is(err, ErrModulusTooSmall), "input %q: %v", in, err)
	}
	_, err = ParseModulus("-17")
	require.True(t, errors.Is(err, ErrMalformedNat))
}

func TestNatCopiesAreIndependent(t *testing.T) {
	n := MustNat("42")
	v := n.Int()
	v.SetInt64(7)
	require.Equal(t, "42", n.String())

	var zero Nat
	require.True(t, zero.IsZero())
	require.Equal(t, "0", zero.String())
	require.True(t, MustNat("0").Equal(zero))
}
