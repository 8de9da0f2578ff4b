// Package testutil provides deterministic helpers for tests.
package testutil

import "sync"

// NonceSource hands out strictly increasing nonces so tests get distinct
// operation tuples without touching wall-clock time.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type NonceSource struct {
	mu   sync.Mutex
	next int64
}

// NewNonceSource creates a source starting at 0. The first Next() returns 1.
func NewNonceSource() *NonceSource {
	return &NonceSource{}
}

// Next returns the next nonce.
func (n *NonceSource) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	return n.next
}

// Reset resets the source to 0, for test reuse.
func (n *NonceSource) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next = 0
}
