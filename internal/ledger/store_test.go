package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/roach88/attest/internal/op"
)

// openStore constructors for the conformance suite. Every Store backend must
// pass the same semantics.
var backends = map[string]func(t *testing.T) Store{
	"memory": func(t *testing.T) Store {
		return NewMemoryStore()
	},
	"sqlite": func(t *testing.T) Store {
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
		if err != nil {
			t.Fatalf("OpenSQLite() failed: %v", err)
		}
		return s
	},
	"pebble": func(t *testing.T) Store {
		s, err := OpenPebble(filepath.Join(t.TempDir(), "ledger"))
		if err != nil {
			t.Fatalf("OpenPebble() failed: %v", err)
		}
		return s
	},
}

func testFingerprint(t *testing.T, kind op.Kind, recordID string, nonce int64) op.Fingerprint {
	t.Helper()
	o, err := op.NewOperation(kind, recordID, nonce)
	if err != nil {
		t.Fatalf("NewOperation() failed: %v", err)
	}
	fp, err := op.Encode(o)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	return fp
}

func TestStore_InsertIfAbsent_FirstWins(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()

			fp := testFingerprint(t, op.KindCreate, "customer_001", 100)

			entry, inserted, err := s.InsertIfAbsent(ctx, fp, "signer_a", 100)
			if err != nil {
				t.Fatalf("first InsertIfAbsent() failed: %v", err)
			}
			if !inserted {
				t.Fatal("first insert should win")
			}
			if entry.Signer != "signer_a" || entry.Seq != 1 {
				t.Errorf("unexpected entry: %+v", entry)
			}

			// Second insert with a different signer must lose and return the winner
			entry2, inserted2, err := s.InsertIfAbsent(ctx, fp, "signer_b", 100)
			if err != nil {
				t.Fatalf("second InsertIfAbsent() failed: %v", err)
			}
			if inserted2 {
				t.Fatal("second insert must be rejected")
			}
			if entry2.Signer != "signer_a" {
				t.Errorf("rejected insert must return winner's entry, got signer %q", entry2.Signer)
			}
			if entry2.Seq != entry.Seq {
				t.Errorf("rejected insert must return winner's seq: got %d, want %d", entry2.Seq, entry.Seq)
			}
		})
	}
}

func TestStore_SeqStrictlyIncreasing(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()

			var lastSeq int64
			for i := int64(0); i < 5; i++ {
				fp := testFingerprint(t, op.KindCreate, "record", i)
				entry, inserted, err := s.InsertIfAbsent(ctx, fp, "signer_a", i)
				if err != nil {
					t.Fatalf("InsertIfAbsent() failed: %v", err)
				}
				if !inserted {
					t.Fatal("distinct nonce must produce distinct fingerprint")
				}
				if entry.Seq <= lastSeq {
					t.Errorf("seq not strictly increasing: %d after %d", entry.Seq, lastSeq)
				}
				lastSeq = entry.Seq
			}
		})
	}
}

func TestStore_RejectedAttemptsConsumeNoSeq(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()

			fp1 := testFingerprint(t, op.KindCreate, "record", 1)
			if _, _, err := s.InsertIfAbsent(ctx, fp1, "signer_a", 1); err != nil {
				t.Fatalf("InsertIfAbsent() failed: %v", err)
			}

			// Burn several rejected attempts
			for i := 0; i < 3; i++ {
				if _, _, err := s.InsertIfAbsent(ctx, fp1, "signer_b", 1); err != nil {
					t.Fatalf("rejected InsertIfAbsent() failed: %v", err)
				}
			}

			fp2 := testFingerprint(t, op.KindCreate, "record", 2)
			entry, _, err := s.InsertIfAbsent(ctx, fp2, "signer_a", 2)
			if err != nil {
				t.Fatalf("InsertIfAbsent() failed: %v", err)
			}
			if entry.Seq != 2 {
				t.Errorf("rejected attempts must not consume seq numbers: got seq %d, want 2", entry.Seq)
			}
		})
	}
}

func TestStore_LookupMissing(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			fp := testFingerprint(t, op.KindDelete, "never_written", 1)
			_, ok, err := s.Lookup(context.Background(), fp)
			if err != nil {
				t.Fatalf("Lookup() failed: %v", err)
			}
			if ok {
				t.Error("Lookup of never-inserted fingerprint must return not found")
			}
		})
	}
}

func TestStore_BySignerOrdering(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()

			// Interleave two signers
			for i := int64(0); i < 6; i++ {
				signer := "signer_a"
				if i%2 == 1 {
					signer = "signer_b"
				}
				fp := testFingerprint(t, op.KindUpdate, "record", i)
				if _, _, err := s.InsertIfAbsent(ctx, fp, signer, i); err != nil {
					t.Fatalf("InsertIfAbsent() failed: %v", err)
				}
			}

			entries, err := s.BySigner(ctx, "signer_a")
			if err != nil {
				t.Fatalf("BySigner() failed: %v", err)
			}
			if len(entries) != 3 {
				t.Fatalf("got %d entries for signer_a, want 3", len(entries))
			}
			for i := 1; i < len(entries); i++ {
				if entries[i].Seq <= entries[i-1].Seq {
					t.Errorf("BySigner not seq ASC: %d after %d", entries[i].Seq, entries[i-1].Seq)
				}
			}
			for _, e := range entries {
				if e.Signer != "signer_a" {
					t.Errorf("BySigner returned foreign entry: %+v", e)
				}
			}
		})
	}
}

func TestStore_BySignerUnknown(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			entries, err := s.BySigner(context.Background(), "nobody")
			if err != nil {
				t.Fatalf("BySigner() failed: %v", err)
			}
			if len(entries) != 0 {
				t.Errorf("got %d entries for unknown signer, want 0", len(entries))
			}
		})
	}
}

func TestStore_AllOrdering(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()

			for i := int64(0); i < 4; i++ {
				fp := testFingerprint(t, op.KindCreate, "record", i)
				if _, _, err := s.InsertIfAbsent(ctx, fp, "signer_a", i); err != nil {
					t.Fatalf("InsertIfAbsent() failed: %v", err)
				}
			}

			entries, err := s.All(ctx)
			if err != nil {
				t.Fatalf("All() failed: %v", err)
			}
			if len(entries) != 4 {
				t.Fatalf("got %d entries, want 4", len(entries))
			}
			for i, e := range entries {
				if e.Seq != int64(i+1) {
					t.Errorf("All not seq ASC: entry %d has seq %d", i, e.Seq)
				}
			}
		})
	}
}

func TestStore_ConcurrentInsertSameFingerprint(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()

			fp := testFingerprint(t, op.KindCreate, "contested", 1)

			const racers = 50
			var wg sync.WaitGroup
			results := make(chan bool, racers)

			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					_, inserted, err := s.InsertIfAbsent(ctx, fp, "racer", 1)
					if err != nil {
						t.Errorf("InsertIfAbsent() failed: %v", err)
						return
					}
					results <- inserted
				}(i)
			}
			wg.Wait()
			close(results)

			wins := 0
			for inserted := range results {
				if inserted {
					wins++
				}
			}
			if wins != 1 {
				t.Errorf("got %d winners, want exactly 1", wins)
			}
		})
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	s1, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	fp := testFingerprint(t, op.KindCreate, "durable", 1)
	if _, _, err := s1.InsertIfAbsent(ctx, fp, "signer_a", 1); err != nil {
		t.Fatalf("InsertIfAbsent() failed: %v", err)
	}
	s1.Close()

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	entry, ok, err := s2.Lookup(ctx, fp)
	if err != nil {
		t.Fatalf("Lookup() after reopen failed: %v", err)
	}
	if !ok || entry.Signer != "signer_a" {
		t.Errorf("entry lost across reopen: ok=%v entry=%+v", ok, entry)
	}

	// The reopened store must not reuse the claimed fingerprint
	_, inserted, err := s2.InsertIfAbsent(ctx, fp, "signer_b", 1)
	if err != nil {
		t.Fatalf("InsertIfAbsent() after reopen failed: %v", err)
	}
	if inserted {
		t.Error("claimed fingerprint accepted again after reopen")
	}
}

func TestPebbleStore_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	ctx := context.Background()

	s1, err := OpenPebble(dir)
	if err != nil {
		t.Fatalf("OpenPebble() failed: %v", err)
	}
	fp := testFingerprint(t, op.KindCreate, "durable", 1)
	if _, _, err := s1.InsertIfAbsent(ctx, fp, "signer_a", 1); err != nil {
		t.Fatalf("InsertIfAbsent() failed: %v", err)
	}
	s1.Close()

	s2, err := OpenPebble(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()

	// Seq counter must resume past recovered entries
	fp2 := testFingerprint(t, op.KindCreate, "durable", 2)
	entry, inserted, err := s2.InsertIfAbsent(ctx, fp2, "signer_a", 2)
	if err != nil {
		t.Fatalf("InsertIfAbsent() after reopen failed: %v", err)
	}
	if !inserted || entry.Seq != 2 {
		t.Errorf("seq counter not recovered: inserted=%v seq=%d, want seq 2", inserted, entry.Seq)
	}
}

func TestPebbleStore_EntryRecordRoundTrip(t *testing.T) {
	entry := Entry{Signer: "signer_a", Nonce: 1700000000, Seq: 42}

	decoded, err := decodeEntryRecord(encodeEntryRecord(entry))
	if err != nil {
		t.Fatalf("decodeEntryRecord() failed: %v", err)
	}
	if decoded != entry {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, entry)
	}

	if _, err := decodeEntryRecord([]byte("short")); err == nil {
		t.Error("truncated record must be rejected")
	}
}
