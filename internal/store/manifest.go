package store

import (
	"context"
	"crypto/sha512"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver for database/sql
)

// ErrEmptyManifest is returned when a manifest's content-addressing hash
// is requested for zero-length input — spec §6 requires SHA-384 over a
// non-empty byte string.
var ErrEmptyManifest = errors.New("manifest: cannot hash empty content")

// ManifestStore is the "orthogonal content-addressing" specialization
// described in spec §4.5: values are keyed by the SHA-384 of their own
// content rather than by an embedded signature, for externally supplied
// manifests (e.g. pihsmctl export bundles). It generalizes the teacher's
// SQLite-backed log store (sqlite_store.go) from a monotonic-index key
// to a content-derived key, keeping the same pragma set and
// single-transaction write discipline.
type ManifestStore struct {
	db *sql.DB
}

// OpenManifestStore opens or creates a SQLite-backed manifest store at
// dsn (a database/sql data source name, e.g. "file:/var/lib/pihsm/manifests.db").
func OpenManifestStore(dsn string) (*ManifestStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("manifest: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: ping: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("manifest: set %s: %w", pragma, err)
		}
	}
	schema := `
CREATE TABLE IF NOT EXISTS manifests (
	hash      BLOB PRIMARY KEY,  -- SHA-384 of value
	value     BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: create schema: %w", err)
	}
	return &ManifestStore{db: db}, nil
}

// Close releases the underlying database handle.
func (m *ManifestStore) Close() error { return m.db.Close() }

// HashOf computes the SHA-384 content key for value. value must be
// non-empty.
func HashOf(value []byte) ([48]byte, error) {
	var h [48]byte
	if len(value) == 0 {
		return h, ErrEmptyManifest
	}
	h = sha512.Sum384(value)
	return h, nil
}

// Put stores value under its own SHA-384 hash and returns that hash.
// Writing the same value twice is idempotent: the second write leaves
// the stored row unchanged.
func (m *ManifestStore) Put(ctx context.Context, value []byte) ([48]byte, error) {
	hash, err := HashOf(value)
	if err != nil {
		return hash, err
	}
	_, err = m.db.ExecContext(ctx,
		`INSERT INTO manifests(hash, value, created_at) VALUES(?, ?, ?)
		 ON CONFLICT(hash) DO NOTHING`,
		hash[:], value, time.Now().Unix())
	if err != nil {
		return hash, fmt.Errorf("manifest: insert: %w", err)
	}
	return hash, nil
}

// Get returns the stored value for hash, or found=false if absent.
func (m *ManifestStore) Get(ctx context.Context, hash [48]byte) (value []byte, found bool, err error) {
	err = m.db.QueryRowContext(ctx, `SELECT value FROM manifests WHERE hash=?`, hash[:]).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("manifest: select: %w", err)
	}
	return value, true, nil
}

// List returns every stored hash, oldest first.
func (m *ManifestStore) List(ctx context.Context) ([][48]byte, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT hash FROM manifests ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("manifest: list: %w", err)
	}
	defer rows.Close()
	var out [][48]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		if len(raw) != 48 {
			continue
		}
		var h [48]byte
		copy(h[:], raw)
		out = append(out, h)
	}
	return out, rows.Err()
}
