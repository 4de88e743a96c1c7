// Package annotate defines annotation records and the mapping from live
// selections to them. Anchors are zoom-independent: PDF anchors hold
// page-fraction rectangles, EPUB anchors hold the layout engine's own
// content range token.
package annotate

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/textlayer"
)

// Type distinguishes the two annotation kinds.
type Type string

const (
	TypeHighlight Type = "highlight"
	TypeBookmark  Type = "bookmark"
)

// Valid reports whether t is a known annotation type.
func (t Type) Valid() bool { return t == TypeHighlight || t == TypeBookmark }

// Anchor locates an annotation independent of the scale active when it was
// created. Exactly one addressing form is populated: Page and Rects for PDF,
// Range for EPUB. Bookmarks carry no rects.
type Anchor struct {
	Page  int             `json:"page,omitempty"`
	Rects []textlayer.Box `json:"rects,omitempty"`
	Range string          `json:"range,omitempty"`
}

// Annotation is one saved highlight or bookmark. Records are immutable after
// creation; the only mutation path is deletion.
type Annotation struct {
	ID        string        `json:"id"`
	BookID    string        `json:"book_id"`
	Type      Type          `json:"type"`
	Engine    document.Kind `json:"engine"`
	Anchor    Anchor        `json:"anchor"`
	Text      string        `json:"text,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Validate checks structural invariants before persistence.
func (a *Annotation) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("annotation has no id")
	}
	if !a.Type.Valid() {
		return fmt.Errorf("unknown annotation type %q", a.Type)
	}
	switch a.Engine {
	case document.KindPDF:
		if a.Anchor.Page < 1 {
			return fmt.Errorf("pdf annotation needs a page, got %d", a.Anchor.Page)
		}
		if a.Type == TypeHighlight && len(a.Anchor.Rects) == 0 {
			return fmt.Errorf("pdf highlight needs at least one rect")
		}
	case document.KindEPUB:
		if a.Anchor.Range == "" {
			return fmt.Errorf("epub annotation needs a range token")
		}
	default:
		return fmt.Errorf("unknown engine %q", a.Engine)
	}
	return nil
}

// NewPDFHighlight builds a highlight from already-normalized rects.
func NewPDFHighlight(bookID string, page int, rects []textlayer.Box, text string) *Annotation {
	return &Annotation{
		ID:        uuid.NewString(),
		BookID:    bookID,
		Type:      TypeHighlight,
		Engine:    document.KindPDF,
		Anchor:    Anchor{Page: page, Rects: rects},
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// NewEPUBHighlight builds a highlight from the engine's range token.
func NewEPUBHighlight(bookID, rangeToken, text string) *Annotation {
	return &Annotation{
		ID:        uuid.NewString(),
		BookID:    bookID,
		Type:      TypeHighlight,
		Engine:    document.KindEPUB,
		Anchor:    Anchor{Range: rangeToken},
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// NewBookmark marks the given position.
func NewBookmark(bookID string, pos document.Position) *Annotation {
	a := &Annotation{
		ID:        uuid.NewString(),
		BookID:    bookID,
		Type:      TypeBookmark,
		CreatedAt: time.Now().UTC(),
	}
	switch pos.Kind() {
	case document.KindEPUB:
		a.Engine = document.KindEPUB
		a.Anchor = Anchor{Range: pos.Anchor()}
	default:
		a.Engine = document.KindPDF
		a.Anchor = Anchor{Page: pos.Page()}
	}
	return a
}
