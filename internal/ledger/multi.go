package ledger

import (
	"context"
	"errors"

	"github.com/yungbote/cipheragg/internal/accumulation"
)

// Multi appends every record to each ledger. One failing sink neither stops
// the others nor hides their errors.
type Multi []accumulation.Ledger

var _ accumulation.Ledger = Multi(nil)

func (m Multi) Append(ctx context.Context, rec accumulation.Record) error {
	var errs []error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
