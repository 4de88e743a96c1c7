package document

import (
	"fmt"
	"strconv"
	"strings"
)

// Position identifies a location within a document. For PDF it is a 1-based
// page number; for EPUB it is an opaque anchor token whose only guaranteed
// operations are equality and stepping through the rendering engine.
// Positions of different kinds never compare equal.
type Position struct {
	kind   Kind
	page   int
	anchor string
}

// PDFPage returns a position for a 1-based PDF page number.
func PDFPage(n int) Position {
	return Position{kind: KindPDF, page: n}
}

// EPUBAnchor returns a position for an opaque EPUB anchor token.
func EPUBAnchor(token string) Position {
	return Position{kind: KindEPUB, anchor: token}
}

// Kind returns the document kind this position belongs to.
func (p Position) Kind() Kind { return p.kind }

// Page returns the 1-based page number of a PDF position, or 0 for other kinds.
func (p Position) Page() int {
	if p.kind != KindPDF {
		return 0
	}
	return p.page
}

// Anchor returns the anchor token of an EPUB position, or "" for other kinds.
func (p Position) Anchor() string {
	if p.kind != KindEPUB {
		return ""
	}
	return p.anchor
}

// IsZero reports whether the position is unset.
func (p Position) IsZero() bool { return p.kind == "" }

// Equal reports whether two positions identify the same location.
// Positions of different kinds are never equal.
func (p Position) Equal(other Position) bool {
	if p.kind != other.kind {
		return false
	}
	switch p.kind {
	case KindPDF:
		return p.page == other.page
	case KindEPUB:
		return p.anchor == other.anchor
	default:
		return true
	}
}

// String renders the position for logs and wire payloads.
func (p Position) String() string {
	switch p.kind {
	case KindPDF:
		return fmt.Sprintf("pdf:%d", p.page)
	case KindEPUB:
		return "epub:" + p.anchor
	default:
		return ""
	}
}

// ParsePosition parses the String form back into a Position.
func ParsePosition(s string) (Position, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok {
		return Position{}, fmt.Errorf("malformed position %q", s)
	}
	switch Kind(kind) {
	case KindPDF:
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return Position{}, fmt.Errorf("malformed pdf position %q", s)
		}
		return PDFPage(n), nil
	case KindEPUB:
		if rest == "" {
			return Position{}, fmt.Errorf("malformed epub position %q", s)
		}
		return EPUBAnchor(rest), nil
	default:
		return Position{}, fmt.Errorf("unknown position kind %q", kind)
	}
}

// Reader is the capability surface implemented once per document variant.
// It owns pagination: page counts, stepping, and the mapping between
// positions and a uniform 1-based page ordinal used for caching and search.
type Reader interface {
	Kind() Kind
	PageCount() int
	// First returns the opening position of the document.
	First() Position
	// Step moves one page forward or backward from the given position.
	// The boolean is false when the edge of the document is reached.
	Step(from Position, forward bool) (Position, bool)
	// Ordinal maps a position to its 1-based page ordinal.
	Ordinal(p Position) int
	// At maps a 1-based page ordinal back to a position.
	At(ordinal int) Position
}
