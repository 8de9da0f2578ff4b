package ledger

import (
	"errors"
	"fmt"
)

// BackendError indicates the durability backend could not be reached or
// failed mid-operation. It is distinct from a rejected insert: the
// fingerprint is NOT consumed and a retry may succeed.
type BackendError struct {
	// Op names the ledger operation that failed ("insert", "lookup", ...).
	Op string

	// Err is the underlying store error.
	Err error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("ledger backend unavailable during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying store error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsBackendUnavailable reports whether err is a BackendError.
// Uses errors.As to handle wrapped errors.
func IsBackendUnavailable(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
