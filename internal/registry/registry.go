// Package registry is the single entry point of the operation fingerprint
// registry: fingerprint encoding, submission coalescing, the write-once
// ledger, and the audit index composed behind one facade.
//
// Data flow on submit: encode the operation into a fingerprint, attach to or
// start the in-flight submission for that fingerprint, perform the atomic
// ledger insert, index the accepted write, return the outcome to every
// coalesced waiter. Reads bypass coalescing — they are naturally safe to
// repeat.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/attest/internal/audit"
	"github.com/roach88/attest/internal/coalesce"
	"github.com/roach88/attest/internal/ledger"
	"github.com/roach88/attest/internal/op"
)

// ErrEmptySigner rejects submissions with no signer identity.
var ErrEmptySigner = errors.New("signer must not be empty")

// Registry composes the codec, coalescer, ledger and audit index.
// Safe for concurrent use by multiple callers.
type Registry struct {
	ledger      *ledger.Ledger
	coal        *coalesce.Coalescer
	index       *audit.Index
	log         *slog.Logger
	waitTimeout time.Duration
}

type options struct {
	logger      *slog.Logger
	sinks       []audit.Sink
	waitTimeout time.Duration
}

// Option configures a Registry.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSinks attaches audit sinks that receive every accepted write.
func WithSinks(sinks ...audit.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// WithWaitTimeout caps how long a Submit call waits on a coalesced outcome.
// Zero means no cap beyond the caller's own context.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) { o.waitTimeout = d }
}

// New creates a Registry over the given store and warms the audit index
// from it, so history queries survive restarts of durable backends.
func New(ctx context.Context, store ledger.Store, opts ...Option) (*Registry, error) {
	var o options
	for _, apply := range opts {
		apply(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	led := ledger.New(store, o.logger)
	index := audit.NewIndex(o.logger, o.sinks...)

	entries, err := led.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("warm audit index: %w", err)
	}
	index.Warm(entries)

	return &Registry{
		ledger:      led,
		coal:        coalesce.New(o.logger),
		index:       index,
		log:         o.logger,
		waitTimeout: o.waitTimeout,
	}, nil
}

// Submit records operation for signer if its fingerprint is unclaimed.
//
// Returns (true, nil) when this call won the fingerprint, (false, nil) when
// it was already claimed — the caller must not apply its side effect — and
// a non-nil error for failures that are neither: op.EncodingError before
// any ledger interaction, ledger.BackendError when the backend is
// unreachable (the fingerprint is not consumed), coalesce.WaitError when
// the caller's wait ended before the in-flight outcome resolved.
func (r *Registry) Submit(ctx context.Context, operation op.Operation, signer string) (bool, error) {
	if signer == "" {
		return false, ErrEmptySigner
	}

	fp, err := op.Encode(operation)
	if err != nil {
		return false, err
	}

	if r.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.waitTimeout)
		defer cancel()
	}

	res, err := r.coal.Do(ctx, fp, func(writeCtx context.Context) (ledger.Result, error) {
		res, err := r.ledger.TryInsert(writeCtx, fp, signer, operation.Nonce)
		if err != nil {
			return ledger.Result{}, err
		}
		if res.Inserted {
			// Indexed before any waiter observes acceptance.
			r.index.Publish(writeCtx, audit.EventFromEntry(res.Entry))
		}
		return res, nil
	})
	if err != nil {
		return false, err
	}

	r.log.Info("submission resolved",
		"operation", operation.String(),
		"fingerprint", fp.String(),
		"accepted", res.Inserted,
	)
	return res.Inserted, nil
}

// SignerOf returns the signer permanently bound to the operation's
// fingerprint, if any. Reads the ledger directly; never blocks on in-flight
// submissions.
func (r *Registry) SignerOf(ctx context.Context, operation op.Operation) (string, bool, error) {
	fp, err := op.Encode(operation)
	if err != nil {
		return "", false, err
	}

	entry, ok, err := r.ledger.Lookup(ctx, fp)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return entry.Signer, true, nil
}

// HistoryOf returns signer's accepted writes in seq ASC order. Rejected
// attempts never appear.
func (r *Registry) HistoryOf(signer string) []audit.Event {
	return r.index.BySigner(signer)
}

// EventFor returns the audit event for a fingerprint, if any.
func (r *Registry) EventFor(fp op.Fingerprint) (audit.Event, bool) {
	return r.index.ByFingerprint(fp)
}
