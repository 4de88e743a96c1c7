package store

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

	"github.com/leafmark/reader/internal/annotate"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS progress (
	user_id     TEXT NOT NULL,
	book_id     TEXT NOT NULL,
	pdf_page    INTEGER NOT NULL DEFAULT 0,
	pdf_total   INTEGER NOT NULL DEFAULT 0,
	epub_anchor TEXT    NOT NULL DEFAULT '',
	updated_at  TEXT    NOT NULL,
	PRIMARY KEY (user_id, book_id)
);
CREATE TABLE IF NOT EXISTS annotations (
	id         TEXT NOT NULL PRIMARY KEY,
	user_id    TEXT NOT NULL,
	book_id    TEXT NOT NULL,
	page       INTEGER NOT NULL DEFAULT 0,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS annotations_book ON annotations (user_id, book_id, page);`

// SQLiteStore implements ProgressStore and AnnotationStore on a local
// SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the store database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening store database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating store schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Get implements ProgressStore.
func (s *SQLiteStore) Get(ctx context.Context, userID, bookID string) (*Progress, error) {
	var p Progress
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT pdf_page, pdf_total, epub_anchor, updated_at FROM progress WHERE user_id = ? AND book_id = ?`,
		userID, bookID).Scan(&p.PDFPage, &p.PDFTotal, &p.EPUBAnchor, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading progress: %w", err)
	}
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &p, nil
}

// Merge implements ProgressStore. The upsert only overwrites fields the
// partial actually sets.
func (s *SQLiteStore) Merge(ctx context.Context, userID, bookID string, partial Progress) error {
	now := partial.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress (user_id, book_id, pdf_page, pdf_total, epub_anchor, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, book_id) DO UPDATE SET
			pdf_page    = CASE WHEN excluded.pdf_page    > 0  THEN excluded.pdf_page    ELSE progress.pdf_page    END,
			pdf_total   = CASE WHEN excluded.pdf_total   > 0  THEN excluded.pdf_total   ELSE progress.pdf_total   END,
			epub_anchor = CASE WHEN excluded.epub_anchor != '' THEN excluded.epub_anchor ELSE progress.epub_anchor END,
			updated_at  = excluded.updated_at`,
		userID, bookID, partial.PDFPage, partial.PDFTotal, partial.EPUBAnchor, now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("merging progress: %w", err)
	}
	return nil
}

// Create implements AnnotationStore.
func (s *SQLiteStore) Create(ctx context.Context, userID, bookID string, a *annotate.Annotation) (string, error) {
	if err := a.Validate(); err != nil {
		return "", fmt.Errorf("invalid annotation: %w", err)
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encoding annotation: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO annotations (id, user_id, book_id, page, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, userID, bookID, a.Anchor.Page, string(payload), a.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("writing annotation: %w", err)
	}
	return a.ID, nil
}

// List implements AnnotationStore.
func (s *SQLiteStore) List(ctx context.Context, userID, bookID string) ([]*annotate.Annotation, error) {
	return s.query(ctx,
		`SELECT payload FROM annotations WHERE user_id = ? AND book_id = ? ORDER BY created_at`,
		userID, bookID)
}

// ListByPage implements AnnotationStore.
func (s *SQLiteStore) ListByPage(ctx context.Context, userID, bookID string, page int) ([]*annotate.Annotation, error) {
	return s.query(ctx,
		`SELECT payload FROM annotations WHERE user_id = ? AND book_id = ? AND page = ? ORDER BY created_at`,
		userID, bookID, page)
}

// Delete implements AnnotationStore.
func (s *SQLiteStore) Delete(ctx context.Context, userID, bookID, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM annotations WHERE user_id = ? AND book_id = ? AND id = ?`,
		userID, bookID, id)
	if err != nil {
		return fmt.Errorf("deleting annotation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) query(ctx context.Context, stmt string, args ...any) ([]*annotate.Annotation, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("listing annotations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*annotate.Annotation
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning annotation: %w", err)
		}
		var a annotate.Annotation
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("decoding annotation: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
