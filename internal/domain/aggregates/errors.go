package aggregates

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode standardizes aggregate failure semantics across stores.
type ErrorCode string

const (
	CodeInvalidInput         ErrorCode = "invalid_input"
	CodeModulusMismatch      ErrorCode = "modulus_mismatch"
	CodeInvalidCiphertext    ErrorCode = "invalid_ciphertext"
	CodeConcurrencyExhausted ErrorCode = "concurrency_exhausted"
	CodeStoreUnavailable     ErrorCode = "store_unavailable"
	CodeNotFound             ErrorCode = "not_found"
	CodeConflict             ErrorCode = "conflict"
	CodeInvariantViolation   ErrorCode = "invariant_violation"
	CodeRetryable            ErrorCode = "retryable"
	CodeInternal             ErrorCode = "internal"
)

// Retryable reports whether the whole operation may be attempted again by the caller.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeConcurrencyExhausted, CodeStoreUnavailable, CodeConflict, CodeRetryable:
		return true
	default:
		return false
	}
}

// Error is the canonical aggregate error wrapper.
type Error struct {
	Code    ErrorCode
	Op      string
	Subject string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an aggregate error with explicit code + operation.
func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// NewSubjectError is NewError annotated with the subject the failure belongs to.
func NewSubjectError(code ErrorCode, op, subject, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Subject: subject,
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates an existing error with aggregate error semantics.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

// IsCode checks whether err (or wrapped err) carries the given aggregate code.
func IsCode(err error, code ErrorCode) bool {
	var aggErr *Error
	if !errors.As(err, &aggErr) {
		return false
	}
	return aggErr.Code == code
}

// CodeOf extracts the aggregate error code when available.
func CodeOf(err error) ErrorCode {
	var aggErr *Error
	if !errors.As(err, &aggErr) {
		return ""
	}
	return aggErr.Code
}
