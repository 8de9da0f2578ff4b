package ledger

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/attest/internal/op"
)

// Entry is a single accepted write. Created exactly once per fingerprint by
// whichever caller wins the race; never mutated or deleted afterwards.
type Entry struct {
	Fingerprint op.Fingerprint `json:"fingerprint"`
	Signer      string         `json:"signer"`
	Nonce       int64          `json:"nonce"`
	Seq         int64          `json:"seq"`
}

// Result is the outcome of a TryInsert.
//
// Inserted reports whether this call won the fingerprint. Entry is the
// winning entry either way: the caller's own entry on acceptance, the
// previously bound one on rejection.
type Result struct {
	Inserted bool
	Entry    Entry
}

// Store is the atomic insert-if-absent primitive the ledger builds on.
//
// InsertIfAbsent must be atomic from the perspective of all concurrent
// callers: exactly one call per fingerprint ever returns inserted=true,
// and the sequence number is assigned inside that same atomic step.
// Implementations assign seq strictly increasing and never reuse one.
type Store interface {
	// InsertIfAbsent claims fp for signer if unclaimed. Returns the winning
	// entry (the existing one on conflict) and whether this call inserted it.
	InsertIfAbsent(ctx context.Context, fp op.Fingerprint, signer string, nonce int64) (Entry, bool, error)

	// Lookup returns the entry for fp, if any. Pure read.
	Lookup(ctx context.Context, fp op.Fingerprint) (Entry, bool, error)

	// BySigner returns all entries bound to signer, seq ASC.
	BySigner(ctx context.Context, signer string) ([]Entry, error)

	// All returns every entry, seq ASC. Used to rebuild derived views.
	All(ctx context.Context) ([]Entry, error)

	io.Closer
}

// Ledger wraps a Store with failure classification and logging. Store
// failures surface as BackendError, distinct from rejection, so callers
// never mistake infrastructure failure for a legitimate duplicate.
type Ledger struct {
	store Store
	log   *slog.Logger
}

// New creates a Ledger over the given store. A nil logger falls back to
// slog.Default().
func New(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, log: logger}
}

// TryInsert attempts the write-once insert for fp. A rejected attempt is a
// normal outcome (Result.Inserted=false), not an error; the fingerprint is
// not consumed when the backend fails.
func (l *Ledger) TryInsert(ctx context.Context, fp op.Fingerprint, signer string, nonce int64) (Result, error) {
	entry, inserted, err := l.store.InsertIfAbsent(ctx, fp, signer, nonce)
	if err != nil {
		return Result{}, &BackendError{Op: "insert", Err: err}
	}

	if inserted {
		l.log.Debug("ledger entry accepted",
			"fingerprint", fp.String(),
			"signer", signer,
			"seq", entry.Seq,
		)
	} else {
		l.log.Debug("ledger entry rejected: fingerprint already bound",
			"fingerprint", fp.String(),
			"bound_signer", entry.Signer,
		)
	}

	return Result{Inserted: inserted, Entry: entry}, nil
}

// Lookup returns the entry bound to fp, if any.
func (l *Ledger) Lookup(ctx context.Context, fp op.Fingerprint) (Entry, bool, error) {
	entry, ok, err := l.store.Lookup(ctx, fp)
	if err != nil {
		return Entry{}, false, &BackendError{Op: "lookup", Err: err}
	}
	return entry, ok, nil
}

// BySigner returns all entries bound to signer, seq ASC.
func (l *Ledger) BySigner(ctx context.Context, signer string) ([]Entry, error) {
	entries, err := l.store.BySigner(ctx, signer)
	if err != nil {
		return nil, &BackendError{Op: "by_signer", Err: err}
	}
	return entries, nil
}

// All returns every entry, seq ASC.
func (l *Ledger) All(ctx context.Context) ([]Entry, error) {
	entries, err := l.store.All(ctx)
	if err != nil {
		return nil, &BackendError{Op: "all", Err: err}
	}
	return entries, nil
}
