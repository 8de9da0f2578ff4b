package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/attest/internal/op"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore is a durable Store backed by SQLite.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - a single connection, since SQLite allows one writer at a time
//
// The UNIQUE constraint on entries.fingerprint makes check-and-insert a
// single indivisible statement.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens a ledger database at the given path.
// Pass ":memory:" for an ephemeral database. Idempotent: safe to call
// against an existing ledger file.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to ledger database: %w", err)
	}

	// Single writer to avoid SQLITE_BUSY errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

// InsertIfAbsent implements Store.
//
// A transaction wraps the insert-or-select so the conflicting caller reads
// the winner's row from the same snapshot it lost to.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, fp op.Fingerprint, signer string, nonce int64) (Entry, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, false, fmt.Errorf("insert entry: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO entries (fingerprint, signer, nonce)
		VALUES (?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`, fp.String(), signer, nonce)
	if err != nil {
		return Entry{}, false, fmt.Errorf("insert entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return Entry{}, false, fmt.Errorf("insert entry: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Conflict - fingerprint already bound, fetch the winner
		entry, err := scanEntryRow(tx.QueryRowContext(ctx, `
			SELECT seq, fingerprint, signer, nonce FROM entries WHERE fingerprint = ?
		`, fp.String()))
		if err != nil {
			return Entry{}, false, fmt.Errorf("insert entry: select existing: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return Entry{}, false, fmt.Errorf("insert entry: commit (existing): %w", err)
		}
		return entry, false, nil
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return Entry{}, false, fmt.Errorf("insert entry: last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, false, fmt.Errorf("insert entry: commit: %w", err)
	}

	return Entry{Fingerprint: fp, Signer: signer, Nonce: nonce, Seq: seq}, true, nil
}

// Lookup implements Store.
func (s *SQLiteStore) Lookup(ctx context.Context, fp op.Fingerprint) (Entry, bool, error) {
	entry, err := scanEntryRow(s.db.QueryRowContext(ctx, `
		SELECT seq, fingerprint, signer, nonce FROM entries WHERE fingerprint = ?
	`, fp.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup entry: %w", err)
	}
	return entry, true, nil
}

// BySigner implements Store.
func (s *SQLiteStore) BySigner(ctx context.Context, signer string) ([]Entry, error) {
	return s.queryEntries(ctx, `
		SELECT seq, fingerprint, signer, nonce
		FROM entries
		WHERE signer = ?
		ORDER BY seq ASC
	`, signer)
}

// All implements Store.
func (s *SQLiteStore) All(ctx context.Context) ([]Entry, error) {
	return s.queryEntries(ctx, `
		SELECT seq, fingerprint, signer, nonce
		FROM entries
		ORDER BY seq ASC
	`)
}

func (s *SQLiteStore) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	// Return empty slice instead of nil
	if entries == nil {
		entries = []Entry{}
	}

	return entries, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// scanEntry scans a result row into an Entry.
func scanEntry(rows *sql.Rows) (Entry, error) {
	var entry Entry
	var fpHex string

	if err := rows.Scan(&entry.Seq, &fpHex, &entry.Signer, &entry.Nonce); err != nil {
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}

	fp, err := op.ParseFingerprint(fpHex)
	if err != nil {
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	entry.Fingerprint = fp

	return entry, nil
}

// scanEntryRow scans a single row into an Entry.
func scanEntryRow(row *sql.Row) (Entry, error) {
	var entry Entry
	var fpHex string

	if err := row.Scan(&entry.Seq, &fpHex, &entry.Signer, &entry.Nonce); err != nil {
		return Entry{}, err
	}

	fp, err := op.ParseFingerprint(fpHex)
	if err != nil {
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	entry.Fingerprint = fp

	return entry, nil
}
