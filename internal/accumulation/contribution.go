package accumulation

import (
	"math/big"
	"strings"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/cipheragg/internal/domain/aggregates"
	"github.com/yungbote/cipheragg/internal/paillier"
)

var bigOne = big.NewInt(1)

// Contribution is a validated request to add one ciphertext to a subject's total.
type Contribution struct {
	// ID identifies the contribution across retries. Generated when empty.
	ID         string
	Subject    string
	Ciphertext paillier.Nat
	Modulus    paillier.Nat
	// Fields are raw producer fields forwarded to the record ledger only.
	Fields map[string]string
}

type ContributionOption func(*Contribution)

// WithContributionID pins the idempotency key of a contribution.
func WithContributionID(id string) ContributionOption {
	return func(c *Contribution) { c.ID = strings.TrimSpace(id) }
}

// WithFields attaches raw fields for the record ledger.
func WithFields(fields map[string]string) ContributionOption {
	return func(c *Contribution) {
		if len(fields) == 0 {
			return
		}
		c.Fields = make(map[string]string, len(fields))
		for k, v := range fields {
			c.Fields[k] = v
		}
	}
}

// NewContribution parses the decimal-string inputs of a contribution.
// Any malformed value fails with CodeInvalidInput before touching a store.
func NewContribution(subject, ciphertext, modulus string, opts ...ContributionOption) (Contribution, error) {
	const op = "Accumulation.NewContribution"
	if strings.TrimSpace(subject) == "" {
		return Contribution{}, domainagg.NewError(domainagg.CodeInvalidInput, op, "missing subject", nil)
	}
	ct, err := paillier.ParseNat(ciphertext)
	if err != nil {
		return Contribution{}, domainagg.NewSubjectError(domainagg.CodeInvalidInput, op, subject, "ciphertext: "+err.Error(), err)
	}
	n, err := paillier.ParseModulus(modulus)
	if err != nil {
		return Contribution{}, domainagg.NewSubjectError(domainagg.CodeInvalidInput, op, subject, "modulus: "+err.Error(), err)
	}
	c := Contribution{Subject: subject, Ciphertext: ct, Modulus: n}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return c, nil
}

// validate guards against hand-built Contribution values.
func (c *Contribution) validate(op string) error {
	if strings.TrimSpace(c.Subject) == "" {
		return domainagg.NewError(domainagg.CodeInvalidInput, op, "missing subject", nil)
	}
	if c.Modulus.Int().Cmp(bigOne) <= 0 {
		return domainagg.NewSubjectError(domainagg.CodeInvalidInput, op, c.Subject, "modulus must be greater than 1", nil)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
