package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/roach88/attest/internal/op"
)

// MemoryStore is an in-process Store. The fingerprint map and sequence
// counter are mutated only under the mutex, making check-and-insert a
// single indivisible step.
//
// MemoryStore is safe for concurrent use. It holds no global state: each
// instance is independent, so tests can use a fresh store per case.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[op.Fingerprint]Entry
	bySigner map[string][]Entry
	seq      int64
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[op.Fingerprint]Entry),
		bySigner: make(map[string][]Entry),
	}
}

// InsertIfAbsent implements Store.
func (s *MemoryStore) InsertIfAbsent(_ context.Context, fp op.Fingerprint, signer string, nonce int64) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[fp]; ok {
		return existing, false, nil
	}

	s.seq++
	entry := Entry{Fingerprint: fp, Signer: signer, Nonce: nonce, Seq: s.seq}
	s.entries[fp] = entry
	// Appends happen under the same lock that assigns seq, so per-signer
	// slices are already in seq ASC order.
	s.bySigner[signer] = append(s.bySigner[signer], entry)

	return entry, true, nil
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(_ context.Context, fp op.Fingerprint) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[fp]
	return entry, ok, nil
}

// BySigner implements Store.
func (s *MemoryStore) BySigner(_ context.Context, signer string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, len(s.bySigner[signer]))
	copy(entries, s.bySigner[signer])
	return entries, nil
}

// All implements Store.
func (s *MemoryStore) All(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	return entries, nil
}

// Close implements Store. MemoryStore holds no resources.
func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of accepted entries. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
