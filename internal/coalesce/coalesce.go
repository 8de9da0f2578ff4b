// Package coalesce collapses concurrent submissions for the same
// fingerprint into a single ledger write.
//
// The first caller for a fingerprint becomes the leader and performs the
// write; callers arriving while it is in flight attach to the pending entry
// and await the shared resolution. Correctness does not depend on this
// package — the ledger's atomic insert resolves races on its own — but the
// coalescer ensures only one write attempt is paid per distinct in-flight
// fingerprint.
package coalesce

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/attest/internal/ledger"
	"github.com/roach88/attest/internal/op"
)

// WriteFunc performs the underlying ledger write for a fingerprint.
type WriteFunc func(ctx context.Context) (ledger.Result, error)

// pending is one in-flight submission. Ephemeral and process-local: created
// when the first caller for a fingerprint arrives, removed when its outcome
// resolves, on every exit path. Never persisted.
type pending struct {
	done chan struct{} // closed after res/err are set and the map entry is removed
	res  ledger.Result
	err  error
}

// Coalescer deduplicates concurrent in-flight submissions by fingerprint.
// Safe for concurrent use.
type Coalescer struct {
	mu      sync.Mutex
	pending map[op.Fingerprint]*pending
	log     *slog.Logger
}

// New creates a Coalescer. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Coalescer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coalescer{
		pending: make(map[op.Fingerprint]*pending),
		log:     logger,
	}
}

// Do submits fp, running fn at most once per distinct in-flight fingerprint.
//
// The leader runs fn on a context detached from its own: once started, the
// write is never cancelled, since a claimed fingerprint must not be left
// half-applied. A caller whose ctx expires while waiting gets a WaitError;
// the write and the other waiters are unaffected.
//
// The leader receives fn's outcome verbatim. Attached followers are by
// definition duplicates of an operation someone else is already writing:
// when fn succeeds they observe a rejection carrying the winning entry, and
// when fn fails they observe the same error. Exactly one caller per
// fingerprint ever observes an accepted write.
func (c *Coalescer) Do(ctx context.Context, fp op.Fingerprint, fn WriteFunc) (ledger.Result, error) {
	c.mu.Lock()
	if p, ok := c.pending[fp]; ok {
		c.mu.Unlock()
		c.log.Debug("attached to in-flight submission", "fingerprint", fp.String())
		return c.await(ctx, fp, p, false)
	}

	p := &pending{done: make(chan struct{})}
	c.pending[fp] = p
	c.mu.Unlock()

	go func() {
		// The pending entry is removed before done is closed, on every
		// path, so a failed write can never orphan the fingerprint.
		p.res, p.err = fn(context.WithoutCancel(ctx))

		c.mu.Lock()
		delete(c.pending, fp)
		c.mu.Unlock()

		close(p.done)
	}()

	return c.await(ctx, fp, p, true)
}

// await blocks until the pending submission resolves or ctx expires.
func (c *Coalescer) await(ctx context.Context, fp op.Fingerprint, p *pending, leader bool) (ledger.Result, error) {
	select {
	case <-p.done:
		if p.err != nil {
			return ledger.Result{}, p.err
		}
		if leader {
			return p.res, nil
		}
		// Followers are duplicates of the in-flight operation.
		return ledger.Result{Inserted: false, Entry: p.res.Entry}, nil
	case <-ctx.Done():
		c.log.Debug("abandoned wait on in-flight submission", "fingerprint", fp.String())
		return ledger.Result{}, &WaitError{Fingerprint: fp, Err: ctx.Err()}
	}
}

// InFlight returns the number of pending submissions. Diagnostics and tests.
func (c *Coalescer) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
