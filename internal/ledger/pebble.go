package ledger

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/roach88/attest/internal/op"
)

// Key layout:
//
//	entry/<fp hex>                 -> encoded entry record
//	signer/<signer hex>/<seq:020d> -> fp hex
//	meta/seq                       -> be64 last assigned seq
//
// Signers are hex-encoded in keys so a signer containing '/' cannot alias
// another signer's prefix.
const (
	entryKeyPrefix  = "entry/"
	signerKeyPrefix = "signer/"
	metaSeqKey      = "meta/seq"
)

// PebbleStore is a durable Store backed by a pebble key-value database.
//
// Pebble has no native insert-if-absent, so the store serializes inserts
// behind a mutex: read, then write entry + signer index + seq counter in one
// synced batch. The mutex makes check-and-insert indivisible in-process; the
// batch makes it crash-atomic.
type PebbleStore struct {
	db *pebble.DB

	mu  sync.Mutex
	seq int64
}

// OpenPebble creates or opens a ledger database in the given directory.
// The last assigned sequence number is recovered from the meta key.
func OpenPebble(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble ledger: %w", err)
	}

	s := &PebbleStore{db: db}

	val, closer, err := db.Get([]byte(metaSeqKey))
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		// Fresh database, seq starts at 0
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("read seq counter: %w", err)
	default:
		if len(val) != 8 {
			closer.Close()
			db.Close()
			return nil, fmt.Errorf("read seq counter: invalid length %d", len(val))
		}
		s.seq = int64(binary.BigEndian.Uint64(val))
		closer.Close()
	}

	return s, nil
}

// InsertIfAbsent implements Store.
func (s *PebbleStore) InsertIfAbsent(_ context.Context, fp op.Fingerprint, signer string, nonce int64) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok, err := s.getEntry(fp)
	if err != nil {
		return Entry{}, false, err
	}
	if ok {
		return existing, false, nil
	}

	seq := s.seq + 1
	entry := Entry{Fingerprint: fp, Signer: signer, Nonce: nonce, Seq: seq}

	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], uint64(seq))

	batch := s.db.NewBatch()
	if err := batch.Set(entryKey(fp), encodeEntryRecord(entry), nil); err != nil {
		return Entry{}, false, fmt.Errorf("insert entry: %w", err)
	}
	if err := batch.Set(signerKey(signer, seq), []byte(fp.String()), nil); err != nil {
		return Entry{}, false, fmt.Errorf("insert signer index: %w", err)
	}
	if err := batch.Set([]byte(metaSeqKey), seqBuf[:], nil); err != nil {
		return Entry{}, false, fmt.Errorf("insert seq counter: %w", err)
	}
	if err := s.db.Apply(batch, pebble.Sync); err != nil {
		return Entry{}, false, fmt.Errorf("commit entry batch: %w", err)
	}

	s.seq = seq
	return entry, true, nil
}

// Lookup implements Store.
func (s *PebbleStore) Lookup(_ context.Context, fp op.Fingerprint) (Entry, bool, error) {
	return s.getEntry(fp)
}

// BySigner implements Store.
//
// Scans the signer index; seq-padded keys give seq ASC iteration order.
func (s *PebbleStore) BySigner(_ context.Context, signer string) ([]Entry, error) {
	prefix := signerPrefix(signer)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("scan signer index: %w", err)
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		fp, err := op.ParseFingerprint(string(iter.Value()))
		if err != nil {
			return nil, fmt.Errorf("scan signer index: %w", err)
		}
		entry, ok, err := s.getEntry(fp)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("signer index references missing entry %s", fp)
		}
		entries = append(entries, entry)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan signer index: %w", err)
	}

	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// All implements Store.
func (s *PebbleStore) All(_ context.Context) ([]Entry, error) {
	prefix := []byte(entryKeyPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("scan entries: %w", err)
	}
	defer iter.Close()

	var entries []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		entry, err := decodeEntryRecord(iter.Value())
		if err != nil {
			return nil, err
		}
		fp, err := parseEntryKey(iter.Key())
		if err != nil {
			return nil, err
		}
		entry.Fingerprint = fp
		entries = append(entries, entry)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan entries: %w", err)
	}

	// Entry keys iterate in fingerprint order; reads are ordered by seq.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Close closes the database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) getEntry(fp op.Fingerprint) (Entry, bool, error) {
	val, closer, err := s.db.Get(entryKey(fp))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read entry: %w", err)
	}
	defer closer.Close()

	entry, err := decodeEntryRecord(val)
	if err != nil {
		return Entry{}, false, err
	}
	entry.Fingerprint = fp
	return entry, true, nil
}

// binary encoding: [seq:8][nonce:8][signerLen:4][signer]
func encodeEntryRecord(e Entry) []byte {
	buf := make([]byte, 8+8+4+len(e.Signer))
	binary.BigEndian.PutUint64(buf[0:8], uint64(e.Seq))
	binary.BigEndian.PutUint64(buf[8:16], uint64(e.Nonce))
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(e.Signer)))
	copy(buf[20:], e.Signer)
	return buf
}

func decodeEntryRecord(b []byte) (Entry, error) {
	if len(b) < 20 {
		return Entry{}, errors.New("invalid entry record length")
	}
	signerLen := binary.BigEndian.Uint32(b[16:20])
	if uint32(len(b)-20) != signerLen {
		return Entry{}, errors.New("entry record signer length mismatch")
	}
	return Entry{
		Seq:    int64(binary.BigEndian.Uint64(b[0:8])),
		Nonce:  int64(binary.BigEndian.Uint64(b[8:16])),
		Signer: string(b[20:]),
	}, nil
}

func entryKey(fp op.Fingerprint) []byte {
	return []byte(entryKeyPrefix + fp.String())
}

func parseEntryKey(key []byte) (op.Fingerprint, error) {
	if len(key) <= len(entryKeyPrefix) {
		return op.Fingerprint{}, fmt.Errorf("invalid entry key %q", key)
	}
	return op.ParseFingerprint(string(key[len(entryKeyPrefix):]))
}

func signerPrefix(signer string) []byte {
	return []byte(signerKeyPrefix + hex.EncodeToString([]byte(signer)) + "/")
}

func signerKey(signer string, seq int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", signerPrefix(signer), seq))
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func prefixUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		bound[i]++
		if bound[i] != 0 {
			return bound[:i+1]
		}
	}
	return nil // Unreachable for our ASCII prefixes
}
