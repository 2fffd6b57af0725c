package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"
)

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: creating directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		hash    BLOB PRIMARY KEY,
		size    INTEGER NOT NULL,
		created INTEGER NOT NULL,
		data    BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: creating table: %w", err)
	}
	log.Debugf("opened snapshot store %s", path)
	return &SQLite{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores data under its hash. Existing rows are left untouched.
func (s *SQLite) Put(ctx context.Context, data []byte) (Hash, error) {
	h := blake3.Sum256(data)
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO snapshots (hash, size, created, data) VALUES (?, ?, ?, ?)",
		h[:], len(data), s.now().Unix(), data,
	)
	if err != nil {
		return h, fmt.Errorf("store: saving snapshot: %w", err)
	}
	return h, nil
}

// Get loads the snapshot with the given hash. The stored bytes are
// re-hashed so that on-disk corruption is reported rather than returned.
func (s *SQLite) Get(ctx context.Context, h Hash) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM snapshots WHERE hash = ?", h[:]).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: querying snapshot: %w", err)
	}
	if got := blake3.Sum256(data); got != h {
		log.Errorf("snapshot %s is corrupt on disk", FormatHash(h))
		return nil, fmt.Errorf("store: snapshot %s: stored bytes hash to %s", FormatHash(h), FormatHash(got))
	}
	return data, nil
}

// Has reports whether the store holds h.
func (s *SQLite) Has(ctx context.Context, h Hash) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots WHERE hash = ?", h[:]).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: querying snapshot: %w", err)
	}
	return n > 0, nil
}

// List returns all entries sorted by hash.
func (s *SQLite) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT hash, size, created FROM snapshots ORDER BY hash")
	if err != nil {
		return nil, fmt.Errorf("store: listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			raw     []byte
			e       Entry
			created int64
		)
		if err := rows.Scan(&raw, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("store: scanning row: %w", err)
		}
		if len(raw) != len(e.Hash) {
			return nil, fmt.Errorf("store: malformed hash of %d bytes", len(raw))
		}
		copy(e.Hash[:], raw)
		e.Created = time.Unix(created, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
