package ledger

import (
	"errors"
	"fmt"

	"github.com/mcclellann/fundledger/pkg/store"
)

// ValidationError reports input the ledger refuses to apply. Retrying the same
// request will fail the same way.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ConflictError reports a write that lost to a concurrent one. The caller
// should re-read and decide whether to retry.
type ConflictError struct {
	Reason string
	Err    error
}

func (e *ConflictError) Error() string {
	if e.Err == nil {
		return "conflict: " + e.Reason
	}
	return fmt.Sprintf("conflict: %s: %v", e.Reason, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// ConsistencyError reports stored ledger state that contradicts itself, such
// as a repayment and schedule entry that do not point at each other. Nothing
// is written when it is returned.
type ConsistencyError struct {
	Reason string
	Err    error
}

func (e *ConsistencyError) Error() string {
	if e.Err == nil {
		return "inconsistent ledger: " + e.Reason
	}
	return fmt.Sprintf("inconsistent ledger: %s: %v", e.Reason, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// asConflict converts the store's optimistic-concurrency failures into
// ConflictErrors and passes everything else through.
func asConflict(reason string, err error) error {
	if errors.Is(err, store.ErrEntryLinked) || errors.Is(err, store.ErrStaleLoan) ||
		errors.Is(err, store.ErrEntryNotLinked) || errors.Is(err, store.ErrDuplicatePeriod) ||
		errors.Is(err, store.ErrDuplicateMonth) {
		return &ConflictError{Reason: reason, Err: err}
	}
	return err
}
