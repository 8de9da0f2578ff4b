// Package audit maintains the queryable history of accepted writes.
//
// The index is a derived, read-only projection over ledger entries — never
// the source of truth. It answers "who wrote fingerprint F" and "what did
// signer S write" without scanning the ledger, via a per-signer secondary
// mapping kept in seq ASC order.
package audit

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/attest/internal/ledger"
	"github.com/roach88/attest/internal/op"
)

// Event is the read-only projection of a ledger entry exposed for history
// queries. Append-only: never removed or altered once published.
type Event struct {
	Signer      string         `json:"signer"`
	Fingerprint op.Fingerprint `json:"fingerprint"`
	Seq         int64          `json:"seq"`
	Nonce       int64          `json:"nonce"`
}

// EventFromEntry projects a ledger entry into an audit event.
func EventFromEntry(e ledger.Entry) Event {
	return Event{
		Signer:      e.Signer,
		Fingerprint: e.Fingerprint,
		Seq:         e.Seq,
		Nonce:       e.Nonce,
	}
}

// Sink receives published events for external observability collaborators.
// Delivery is best-effort: a sink error is logged and never fails a submit.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Index is the in-process audit index. Safe for concurrent use; reads never
// block beyond acquiring the read lock.
type Index struct {
	mu            sync.RWMutex
	byFingerprint map[op.Fingerprint]Event
	bySigner      map[string][]Event

	sinks []Sink
	log   *slog.Logger
}

// NewIndex creates an empty index. A nil logger falls back to slog.Default().
// Sinks receive every event published through Publish (not Warm).
func NewIndex(logger *slog.Logger, sinks ...Sink) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		byFingerprint: make(map[op.Fingerprint]Event),
		bySigner:      make(map[string][]Event),
		sinks:         sinks,
		log:           logger,
	}
}

// Publish records an accepted write. Idempotent per fingerprint: repeated
// publications of the same fingerprint are ignored, so each entry is indexed
// and forwarded to sinks exactly once.
func (ix *Index) Publish(ctx context.Context, ev Event) {
	ix.mu.Lock()
	if _, ok := ix.byFingerprint[ev.Fingerprint]; ok {
		ix.mu.Unlock()
		return
	}
	ix.insertLocked(ev)
	ix.mu.Unlock()

	for _, sink := range ix.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			ix.log.Warn("audit sink publish failed",
				"fingerprint", ev.Fingerprint.String(),
				"seq", ev.Seq,
				"error", err,
			)
		}
	}
}

// Warm rebuilds the index from ledger entries, e.g. after a restart. Events
// are not forwarded to sinks: they were broadcast when first accepted.
func (ix *Index) Warm(entries []ledger.Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, e := range entries {
		ev := EventFromEntry(e)
		if _, ok := ix.byFingerprint[ev.Fingerprint]; ok {
			continue
		}
		ix.insertLocked(ev)
	}
}

// insertLocked adds ev to both mappings. Caller holds the write lock.
//
// Concurrent submissions for different fingerprints may publish out of seq
// order, so the per-signer slice position is found by binary search rather
// than assuming append order.
func (ix *Index) insertLocked(ev Event) {
	ix.byFingerprint[ev.Fingerprint] = ev

	events := ix.bySigner[ev.Signer]
	i := sort.Search(len(events), func(i int) bool { return events[i].Seq > ev.Seq })
	events = append(events, Event{})
	copy(events[i+1:], events[i:])
	events[i] = ev
	ix.bySigner[ev.Signer] = events
}

// BySigner returns signer's events in seq ASC order. The returned slice is
// a copy; empty, not nil, when the signer has none.
func (ix *Index) BySigner(signer string) []Event {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	events := make([]Event, len(ix.bySigner[signer]))
	copy(events, ix.bySigner[signer])
	return events
}

// ByFingerprint returns the event for fp, if any.
func (ix *Index) ByFingerprint(fp op.Fingerprint) (Event, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ev, ok := ix.byFingerprint[fp]
	return ev, ok
}

// Len returns the number of indexed events.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byFingerprint)
}
