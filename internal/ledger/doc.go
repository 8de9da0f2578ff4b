// Package ledger provides the write-once operation ledger.
//
// The ledger maps fingerprint → (signer, nonce, seq) and enforces
// at-most-one accepted write per fingerprint. The check ("does this
// fingerprint exist") and the act ("insert it") are a single atomic
// operation inside the Store; a read-then-write split would be incorrect
// under concurrency even with submission coalescing in front, because
// coalescing only protects keys that are currently in flight.
//
// # Store backends
//
//   - MemoryStore: in-process map guarded by a mutex; the default for tests
//     and embedded use
//   - SQLiteStore: durable, single fingerprint UNIQUE constraint with
//     INSERT ... ON CONFLICT DO NOTHING deciding the winner
//   - PebbleStore: durable, single-writer mutex around a pebble batch
//
// Sequence numbers are assigned inside the atomic insert, strictly
// increasing, never reused, and never assigned to rejected attempts. All
// ordered reads return entries in seq ASC order.
package ledger
