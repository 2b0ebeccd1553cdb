// Package state manages the SQLite database that mirrors the News server
// locally: folders, feeds, items, the four pending-mutation marker tables,
// and a small key/value preference table.
//
// Only this package may open or query the database. All other packages receive
// a [*Store] and call its methods. The store holds a single connection, so
// every write is serialized through it.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS folders (
    id       INTEGER PRIMARY KEY,
    name     TEXT    NOT NULL,
    expanded INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS feeds (
    id                 INTEGER PRIMARY KEY,
    url                TEXT    NOT NULL DEFAULT '',
    title              TEXT    NOT NULL DEFAULT '',
    link               TEXT    NOT NULL DEFAULT '',
    favicon_link       TEXT    NOT NULL DEFAULT '',
    folder_id          INTEGER,
    pinned             INTEGER NOT NULL DEFAULT 0,
    ordering           INTEGER NOT NULL DEFAULT 0,
    unread_count       INTEGER NOT NULL DEFAULT 0,
    update_error_count INTEGER NOT NULL DEFAULT 0,
    last_update_error  TEXT    NOT NULL DEFAULT '',
    prefer_web         INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS items (
    id            INTEGER PRIMARY KEY,
    feed_id       INTEGER NOT NULL,
    title         TEXT    NOT NULL DEFAULT '',
    body          TEXT    NOT NULL DEFAULT '',
    author        TEXT    NOT NULL DEFAULT '',
    url           TEXT    NOT NULL DEFAULT '',
    guid          TEXT    NOT NULL DEFAULT '',
    guid_hash     TEXT    NOT NULL DEFAULT '',
    pub_date      INTEGER NOT NULL DEFAULT 0,
    last_modified INTEGER NOT NULL DEFAULT 0,
    unread        INTEGER NOT NULL DEFAULT 0,
    starred       INTEGER NOT NULL DEFAULT 0,
    image_link    TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS pending_read (
    item_id INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS pending_unread (
    item_id INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS pending_starred (
    item_id   INTEGER PRIMARY KEY,
    feed_id   INTEGER NOT NULL,
    guid_hash TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_unstarred (
    item_id   INTEGER PRIMARY KEY,
    feed_id   INTEGER NOT NULL,
    guid_hash TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS preferences (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feeds_folder        ON feeds (folder_id);
CREATE INDEX IF NOT EXISTS idx_items_feed          ON items (feed_id);
CREATE INDEX IF NOT EXISTS idx_items_unread        ON items (unread);
CREATE INDEX IF NOT EXISTS idx_items_starred       ON items (starred);
CREATE INDEX IF NOT EXISTS idx_items_last_modified ON items (last_modified);
`

// ErrNotFound is returned by CRUD calls that address a row the store does
// not have.
var ErrNotFound = errors.New("not found in local store")

// DatabaseError reports a failed store operation.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("state: %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

func dbErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DatabaseError{Op: op, Err: err}
}

// Store is the SQLite-backed local mirror.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the state database:
// ~/.local/share/newssync/state.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "newssync", "state.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema, and
// configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// withTx runs fn in a transaction. fn must only use tx: the pool has a single
// connection and s.db would block until the transaction ends.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so scan functions can be reused.
type scanner interface {
	Scan(dest ...any) error
}

// execer matches *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// maxBatch keeps IN (...) lists below SQLite's host parameter limit.
const maxBatch = 500

// inBatches calls fn with consecutive slices of ids of at most maxBatch
// elements, together with the matching "?,?,..." placeholder list.
func inBatches(ids []int64, fn func(placeholders string, args []any) error) error {
	for start := 0; start < len(ids); start += maxBatch {
		end := min(start+maxBatch, len(ids))
		chunk := ids[start:end]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		ph := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		if err := fn(ph, args); err != nil {
			return err
		}
	}
	return nil
}

func queryIDs(ctx context.Context, q execer, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func idPtr(n sql.NullInt64) *int64 {
	if !n.Valid || n.Int64 == 0 {
		return nil
	}
	v := n.Int64
	return &v
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func timeUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
