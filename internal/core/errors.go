package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer. The HTTP boundary maps these to
// status codes; the coordinator retries only ErrConflict.
var (
	// ErrNotFound covers unknown ids and references owned by another user.
	ErrNotFound = errors.New("not found")

	// ErrConflict signals a lost race on an account aggregate; the whole
	// operation is safe to retry against fresh state.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrStoreUnavailable wraps transient storage failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError rejects bad input: non-positive amounts, unparseable
// dates, payments exceeding the outstanding balance. Never retried.
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

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConsistencyFault records drift found during reconciliation: the stored
// aggregate no longer matches the replayed transaction history. It is
// corrected in place and logged, never surfaced to the user.
type ConsistencyFault struct {
	AccountID int64
	Stored    Money
	Computed  Money
}

func (f *ConsistencyFault) Error() string {
	return fmt.Sprintf("consistency fault: account %d stored %d cents, history says %d cents",
		f.AccountID, f.Stored.Cents, f.Computed.Cents)
}
