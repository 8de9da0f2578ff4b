package op

import (
	"errors"
	"fmt"
)

// EncodingError indicates the fingerprint codec refused an input it cannot
// unambiguously represent. It is fatal to the call and is reported before
// any ledger interaction is attempted.
type EncodingError struct {
	// Field names the offending tuple field.
	Field string

	// Reason is a human-readable description.
	Reason string
}

// Error implements the error interface.
func (e *EncodingError) Error() string {
	return fmt.Sprintf("cannot encode %s: %s", e.Field, e.Reason)
}

// IsEncodingError reports whether err is an EncodingError.
// Uses errors.As to handle wrapped errors.
func IsEncodingError(err error) bool {
	var ee *EncodingError
	return errors.As(err, &ee)
}
