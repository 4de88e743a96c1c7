package pdf

import (
	"fmt"
	"image"
	"sync"

	dpdf "github.com/dslipak/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/leafmark/reader/internal/document"
)

// PDF is the fixed-layout document variant. It owns pagination and the
// native text layer; rasterization lives in the render package.
type PDF struct {
	id        string
	path      string
	pageCount int

	// text reader; nil when the file parses for pdfcpu but not for the
	// text extractor, in which case every page routes to OCR.
	reader *dpdf.Reader

	mu         sync.Mutex
	pageImages map[int]image.Image // largest embedded image per page
}

// Open validates the file and builds a PDF variant. A file pdfcpu cannot
// parse is terminal for the session and yields a *document.DecodeError.
func Open(id, path string) (*PDF, error) {
	count, err := api.PageCountFile(path)
	if err != nil {
		return nil, &document.DecodeError{Path: path, Err: err}
	}
	if count < 1 {
		return nil, &document.DecodeError{Path: path, Err: fmt.Errorf("document has no pages")}
	}

	// The text extractor is stricter than pdfcpu; a failure here only
	// disables the native text layer.
	reader, err := dpdf.Open(path)
	if err != nil {
		reader = nil
	}

	return &PDF{
		id:         id,
		path:       path,
		pageCount:  count,
		reader:     reader,
		pageImages: make(map[int]image.Image),
	}, nil
}

// ID returns the document id this variant was opened for.
func (p *PDF) ID() string { return p.id }

// Path returns the local file path.
func (p *PDF) Path() string { return p.path }

// Kind returns document.KindPDF.
func (p *PDF) Kind() document.Kind { return document.KindPDF }

// PageCount returns the number of pages.
func (p *PDF) PageCount() int { return p.pageCount }

// First returns the first page position.
func (p *PDF) First() document.Position { return document.PDFPage(1) }

// Step moves one page forward or backward, reporting false at the edges.
func (p *PDF) Step(from document.Position, forward bool) (document.Position, bool) {
	page := from.Page()
	if page == 0 {
		return p.First(), true
	}
	if forward {
		if page >= p.pageCount {
			return from, false
		}
		return document.PDFPage(page + 1), true
	}
	if page <= 1 {
		return from, false
	}
	return document.PDFPage(page - 1), true
}

// Ordinal maps a position to its 1-based page ordinal.
func (p *PDF) Ordinal(pos document.Position) int { return pos.Page() }

// At maps a 1-based page ordinal to a position. Out-of-range ordinals are
// clamped into the document.
func (p *PDF) At(ordinal int) document.Position {
	if ordinal < 1 {
		ordinal = 1
	}
	if ordinal > p.pageCount {
		ordinal = p.pageCount
	}
	return document.PDFPage(ordinal)
}
