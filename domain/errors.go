package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by storage lookups for ids that do not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports rejected input such as blank interaction content or
// malformed dates.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ContractViolation reports a caller request that is inconsistent with the
// current board state, e.g. a move citing a card that is not at the given
// source position.
type ContractViolation struct {
	Op     string
	Reason string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Violation builds a ContractViolation.
func Violation(op, format string, args ...any) error {
	return &ContractViolation{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsViolation reports whether err wraps a ContractViolation.
func IsViolation(err error) bool {
	var v *ContractViolation
	return errors.As(err, &v)
}
