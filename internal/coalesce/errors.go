package coalesce

import (
	"errors"
	"fmt"

	"github.com/roach88/attest/internal/op"
)

// WaitError indicates a caller stopped waiting on a coalesced submission
// before it resolved. The caller's request is neither accepted nor rejected
// — the underlying write may still complete and be observable via a later
// lookup.
type WaitError struct {
	Fingerprint op.Fingerprint
	Err         error // the context error that ended the wait
}

// Error implements the error interface.
func (e *WaitError) Error() string {
	return fmt.Sprintf("abandoned wait on submission %s: %v", e.Fingerprint, e.Err)
}

// Unwrap returns the context error, so errors.Is(err,
// context.DeadlineExceeded) works on a timed-out wait.
func (e *WaitError) Unwrap() error {
	return e.Err
}

// IsWaitAbandoned reports whether err is a WaitError.
// Uses errors.As to handle wrapped errors.
func IsWaitAbandoned(err error) bool {
	var we *WaitError
	return errors.As(err, &we)
}
