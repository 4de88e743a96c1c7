// Package ocrcache persists OCR-derived page text per device, so a page is
// recognized at most once across sessions. Entries have no TTL and are never
// evicted: OCR only runs for pages actually visited, and personal libraries
// are hundreds of documents, not millions.
package ocrcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/leafmark/reader/internal/textlayer"
)

const schema = `
CREATE TABLE IF NOT EXISTS ocr_pages (
	book_id    TEXT    NOT NULL,
	page       INTEGER NOT NULL,
	payload    TEXT    NOT NULL,
	created_at TEXT    NOT NULL,
	PRIMARY KEY (book_id, page)
);`

// Store is a SQLite-backed textlayer.Cache.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the cache database at path, creating parent
// directories as needed.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	// WAL for concurrent readers during background index builds.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Get returns the cached text layer for (bookID, page), or nil on a miss.
func (s *Store) Get(ctx context.Context, bookID string, page int) (*textlayer.PageText, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM ocr_pages WHERE book_id = ? AND page = ?`,
		bookID, page).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	var text textlayer.PageText
	if err := json.Unmarshal([]byte(payload), &text); err != nil {
		return nil, fmt.Errorf("decoding cache entry for %s page %d: %w", bookID, page, err)
	}
	return &text, nil
}

// Put stores the text layer for (bookID, page). Last writer wins; page text
// is deterministic, so concurrent writers do not conflict meaningfully.
func (s *Store) Put(ctx context.Context, bookID string, page int, text *textlayer.PageText) error {
	payload, err := json.Marshal(text)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ocr_pages (book_id, page, payload, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (book_id, page) DO UPDATE SET payload = excluded.payload`,
		bookID, page, string(payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Count returns the number of cached pages for a book.
func (s *Store) Count(ctx context.Context, bookID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ocr_pages WHERE book_id = ?`, bookID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}
