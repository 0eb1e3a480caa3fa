package accumulation

import (
	"fmt"
	"time"

	domainagg "github.com/yungbote/cipheragg/internal/domain/aggregates"
	"github.com/yungbote/cipheragg/internal/paillier"
)

// DefaultReplayWindow is how many recent contribution IDs a State remembers.
const DefaultReplayWindow = 64

// State is the persisted aggregate for one subject.
type State struct {
	Subject   string
	Total     paillier.Nat
	Modulus   paillier.Nat
	ModulusSq paillier.Nat
	// Version is 1 after the seed and increments by one per applied contribution.
	// Stores use it as the compare-and-swap token.
	Version int64
	// RecentContributions holds the most recent contribution IDs, oldest first.
	RecentContributions []string
	UpdatedAt           time.Time
}

// TotalString renders the encrypted total as a decimal string.
func (s State) TotalString() string { return s.Total.String() }

// HasApplied reports whether id is among the remembered contributions.
func (s State) HasApplied(id string) bool {
	if id == "" {
		return false
	}
	for _, seen := range s.RecentContributions {
		if seen == id {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no mutable storage with s.
func (s State) Clone() State {
	out := s
	if s.RecentContributions != nil {
		out.RecentContributions = append([]string(nil), s.RecentContributions...)
	}
	return out
}

// Validate checks the stored invariants: modulus > 1, modulus_sq == modulus²
// and 0 <= total < modulus_sq.
func (s State) Validate() error {
	const op = "Accumulation.State.Validate"
	if s.Subject == "" {
		return domainagg.NewError(domainagg.CodeInvariantViolation, op, "missing subject", nil)
	}
	if s.Modulus.Int().Cmp(bigOne) <= 0 {
		return domainagg.NewSubjectError(domainagg.CodeInvariantViolation, op, s.Subject, "modulus must be greater than 1", nil)
	}
	if !paillier.SquareNat(s.Modulus).Equal(s.ModulusSq) {
		return domainagg.NewSubjectError(domainagg.CodeInvariantViolation, op, s.Subject, "modulus_sq does not equal modulus squared", nil)
	}
	if !paillier.InRange(s.Total.Int(), s.ModulusSq.Int()) {
		return domainagg.NewSubjectError(domainagg.CodeInvariantViolation, op, s.Subject, "total outside [0, modulus_sq)", nil)
	}
	if s.Version < 1 {
		return domainagg.NewSubjectError(domainagg.CodeInvariantViolation, op, s.Subject, fmt.Sprintf("version %d < 1", s.Version), nil)
	}
	return nil
}

// Seed builds the first State for a subject. No combination happens: the
// first ciphertext becomes the total.
func Seed(c Contribution, window int, at time.Time) (State, error) {
	const op = "Accumulation.Seed"
	modulusSq := paillier.SquareNat(c.Modulus)
	if !paillier.InRange(c.Ciphertext.Int(), modulusSq.Int()) {
		return State{}, domainagg.NewSubjectError(domainagg.CodeInvalidCiphertext, op, c.Subject, "ciphertext outside [0, modulus_sq)", nil)
	}
	return State{
		Subject:             c.Subject,
		Total:               c.Ciphertext,
		Modulus:             c.Modulus,
		ModulusSq:           modulusSq,
		Version:             1,
		RecentContributions: remember(nil, c.ID, window),
		UpdatedAt:           at.UTC(),
	}, nil
}

// Apply combines c into existing. The modulus must match the one the subject
// was seeded with.
func Apply(existing State, c Contribution, window int, at time.Time) (State, error) {
	const op = "Accumulation.Apply"
	if !c.Modulus.Equal(existing.Modulus) {
		return State{}, domainagg.NewSubjectError(domainagg.CodeModulusMismatch, op, existing.Subject, "contribution modulus differs from the subject's established modulus", nil)
	}
	if !paillier.InRange(c.Ciphertext.Int(), existing.ModulusSq.Int()) {
		return State{}, domainagg.NewSubjectError(domainagg.CodeInvalidCiphertext, op, existing.Subject, "ciphertext outside [0, modulus_sq)", nil)
	}
	total, err := paillier.CombineNat(existing.Total, c.Ciphertext, existing.ModulusSq)
	if err != nil {
		// existing.Total is out of range: the stored row is corrupt.
		return State{}, domainagg.NewSubjectError(domainagg.CodeInvariantViolation, op, existing.Subject, "stored total is not a valid ciphertext", err)
	}
	next := existing.Clone()
	next.Total = total
	next.Version = existing.Version + 1
	next.RecentContributions = remember(existing.RecentContributions, c.ID, window)
	next.UpdatedAt = at.UTC()
	return next, nil
}

func remember(recent []string, id string, window int) []string {
	if window < 1 {
		window = 1
	}
	out := make([]string, 0, min(len(recent)+1, window))
	if skip := len(recent) + 1 - window; skip > 0 {
		recent = recent[skip:]
	}
	out = append(out, recent...)
	return append(out, id)
}
