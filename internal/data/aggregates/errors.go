package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	domainagg "github.com/yungbote/cipheragg/internal/domain/aggregates"
)

// storeFault is raised inside store code before MapError gives it a
// caller-facing code.
type storeFault struct {
	code domainagg.ErrorCode
	msg  string
}

func (f *storeFault) Error() string { return f.msg }

func fault(code domainagg.ErrorCode, msg string) error {
	return &storeFault{code: code, msg: strings.TrimSpace(msg)}
}

func ValidationError(msg string) error { return fault(domainagg.CodeInvalidInput, msg) }

// InvariantError marks a persisted row that cannot be a valid state.
func InvariantError(msg string) error { return fault(domainagg.CodeInvariantViolation, msg) }

func ConflictError(msg string) error { return fault(domainagg.CodeConflict, msg) }

func RetryableError(msg string) error { return fault(domainagg.CodeRetryable, msg) }

// Postgres SQLSTATEs that carry a definite outcome.
var pgCodes = map[string]domainagg.ErrorCode{
	"23505": domainagg.CodeConflict,  // unique_violation
	"40001": domainagg.CodeRetryable, // serialization_failure
	"40P01": domainagg.CodeRetryable, // deadlock_detected
	"55P03": domainagg.CodeRetryable, // lock_not_available
}

// Driver messages without typed errors (sqlite mostly), matched lower-cased.
var messageRules = []struct {
	code    domainagg.ErrorCode
	needles []string
}{
	{domainagg.CodeConflict, []string{"duplicate key", "already exists", "unique constraint"}},
	{domainagg.CodeRetryable, []string{"deadlock", "serialization", "timeout", "temporar", "is locked", "sqlite_busy"}},
}

// MapError assigns an aggregate error code to a store failure. Errors that
// already carry a code, even wrapped, pass through untouched; anything unrecognized has an
// unknown outcome and becomes store_unavailable.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var coded *domainagg.Error
	if errors.As(err, &coded) {
		return err
	}
	return domainagg.Wrap(classify(err), op, err)
}

func classify(err error) domainagg.ErrorCode {
	var f *storeFault
	if errors.As(err, &f) {
		return f.code
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domainagg.CodeNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domainagg.CodeRetryable
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if code, ok := pgCodes[strings.TrimSpace(pgErr.Code)]; ok {
			return code
		}
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		for _, needle := range rule.needles {
			if strings.Contains(msg, needle) {
				return rule.code
			}
		}
	}
	return domainagg.CodeStoreUnavailable
}
