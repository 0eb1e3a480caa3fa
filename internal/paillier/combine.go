package paillier

import (
	"errors"
	"math/big"
)

// ErrInvalidOperand is returned by Combine when an operand is outside [0, n²).
var ErrInvalidOperand = errors.New("invalid ciphertext operand")

// Combine returns (c1 * c2) mod modulusSq, the homomorphic addition of the
// plaintexts behind c1 and c2. Inputs are never modified.
func Combine(c1, c2, modulusSq *big.Int) (*big.Int, error) {
	if modulusSq == nil || modulusSq.Sign() <= 0 {
		return nil, errors.Join(ErrInvalidOperand, errors.New("modulus_sq must be positive"))
	}
	if !InRange(c1, modulusSq) {
		return nil, errors.Join(ErrInvalidOperand, errors.New("first operand out of range"))
	}
	if !InRange(c2, modulusSq) {
		return nil, errors.Join(ErrInvalidOperand, errors.New("second operand out of range"))
	}
	out := new(big.Int).Mul(c1, c2)
	return out.Mod(out, modulusSq), nil
}

// CombineNat is Combine over validated values.
func CombineNat(c1, c2, modulusSq Nat) (Nat, error) {
	v, err := Combine(c1.Int(), c2.Int(), modulusSq.Int())
	if err != nil {
		return Nat{}, err
	}
	return Nat{v: v}, nil
}

// CombineAll folds cs left to right. An empty slice yields the ciphertext of
// zero under any key (the multiplicative identity 1).
func CombineAll(modulusSq *big.Int, cs ...*big.Int) (*big.Int, error) {
	acc := big.NewInt(1)
	if modulusSq != nil && modulusSq.Cmp(acc) == 0 {
		acc.SetInt64(0)
	}
	for _, c := range cs {
		next, err := Combine(acc, c, modulusSq)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

// InRange reports whether 0 <= c < modulusSq.
func InRange(c, modulusSq *big.Int) bool {
	if c == nil || modulusSq == nil {
		return false
	}
	return c.Sign() >= 0 && c.Cmp(modulusSq) < 0
}

// Square returns n*n in fresh storage.
func Square(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(n, n)
}

// SquareNat returns n².
func SquareNat(n Nat) Nat {
	return Nat{v: Square(n.v)}
}
