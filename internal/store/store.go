// Package store defines the persistence ports the reader core depends on,
// plus in-memory and SQLite implementations. The core only ever talks to
// the interfaces; a remote backend slots in behind the same contracts.
package store

import (
	"context"
	"time"

	"github.com/leafmark/reader/internal/annotate"
)

// Progress is a user's saved reading position in one book. The two position
// fields coexist: merging an update for one document variant must not erase
// the position saved by the other, so a user switching between the EPUB and
// a scanned PDF of the same title keeps both places. PDFTotal rides along
// with PDFPage so a saved record can render "page X of Y" without reopening
// the file.
type Progress struct {
	PDFPage    int       `json:"pdf_page,omitempty" yaml:"pdf_page,omitempty"`
	PDFTotal   int       `json:"pdf_total,omitempty" yaml:"pdf_total,omitempty"`
	EPUBAnchor string    `json:"epub_anchor,omitempty" yaml:"epub_anchor,omitempty"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"updated_at"`
}

// merge folds the set fields of partial into p. Zero-valued fields of
// partial leave the existing value alone.
func (p *Progress) merge(partial Progress) {
	if partial.PDFPage > 0 {
		p.PDFPage = partial.PDFPage
	}
	if partial.PDFTotal > 0 {
		p.PDFTotal = partial.PDFTotal
	}
	if partial.EPUBAnchor != "" {
		p.EPUBAnchor = partial.EPUBAnchor
	}
	if partial.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	} else {
		p.UpdatedAt = partial.UpdatedAt
	}
}

// ProgressStore persists reading positions.
type ProgressStore interface {
	// Get returns the saved progress, or nil when none exists.
	Get(ctx context.Context, userID, bookID string) (*Progress, error)
	// Merge folds the set fields of partial into the stored record,
	// creating it if absent.
	Merge(ctx context.Context, userID, bookID string, partial Progress) error
}

// AnnotationStore persists highlights and bookmarks.
type AnnotationStore interface {
	// Create stores a new annotation and returns its id.
	Create(ctx context.Context, userID, bookID string, a *annotate.Annotation) (string, error)
	// List returns all annotations for a book in creation order.
	List(ctx context.Context, userID, bookID string) ([]*annotate.Annotation, error)
	// ListByPage returns the annotations anchored to the given PDF page.
	ListByPage(ctx context.Context, userID, bookID string, page int) ([]*annotate.Annotation, error)
	// Delete removes an annotation by id. Deleting an unknown id is not an
	// error.
	Delete(ctx context.Context, userID, bookID, id string) error
}
