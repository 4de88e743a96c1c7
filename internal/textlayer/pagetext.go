package textlayer

import "context"

// Source identifies how a page's text layer was derived.
type Source string

const (
	// SourceNative means the text came from the document's page description.
	SourceNative Source = "native"
	// SourceOCR means the text was recognized from a rasterized page image.
	SourceOCR Source = "ocr"
)

// Box is a rectangle in page-fraction units: x, y, w, h all in [0, 1]
// relative to the page, independent of zoom and device pixels. This is the
// invariant that makes highlights redraw correctly after zoom changes.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Empty reports whether the box has zero area.
func (b Box) Empty() bool { return b.W <= 0 || b.H <= 0 }

// Word is one positioned word of a page's text layer.
type Word struct {
	Text string `json:"text"`
	Box  Box    `json:"box"`
}

// PageText is the derived text layer of one page. It is immutable once
// created; cached copies are never updated in place.
type PageText struct {
	Source   Source `json:"source"`
	Words    []Word `json:"words"`
	FlatText string `json:"flat_text"`
}

// Cache is the persistent store for OCR-derived page text, keyed by
// (bookID, page). Native-path results are not persisted; they are cheap to
// recompute.
type Cache interface {
	// Get returns the cached text layer, or nil on a miss.
	Get(ctx context.Context, bookID string, page int) (*PageText, error)
	// Put stores a text layer. Writes for the same key are idempotent;
	// content is deterministic per page, so last-writer-wins is safe.
	Put(ctx context.Context, bookID string, page int, text *PageText) error
}
