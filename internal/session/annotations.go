package session

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/leafmark/reader/internal/annotate"
	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/epub"
)

// Highlight captures a PDF screen-space selection on the current page as a
// highlight. An empty selection (nothing on the page) is a no-op returning
// nil, not an error. The annotation is kept locally and rendered
// immediately; persistence failure is logged, not surfaced.
func (s *Session) Highlight(ctx context.Context, screenRects []image.Rectangle) (*annotate.Annotation, error) {
	if s.pdfDoc == nil {
		return nil, fmt.Errorf("screen-space selection only applies to pdf documents")
	}
	page := s.CurrentPage()
	if page == nil {
		return nil, fmt.Errorf("no rendered page to select on")
	}

	boxes := annotate.CaptureSelection(page.Image.Bounds(), screenRects)
	if len(boxes) == 0 {
		return nil, nil
	}

	ordinal := s.reader.Ordinal(page.Position)
	text := ""
	if pageText, err := s.PageText(ctx, ordinal); err == nil {
		text = annotate.SelectionText(pageText, boxes)
	}

	a := annotate.NewPDFHighlight(s.doc.ID, ordinal, boxes, text)
	s.persist(ctx, a)
	return a, nil
}

// HighlightRange captures an EPUB selection from the layout engine's range
// token.
func (s *Session) HighlightRange(ctx context.Context, rangeToken, text string) (*annotate.Annotation, error) {
	if s.epubDoc == nil {
		return nil, fmt.Errorf("range selection only applies to reflowable documents")
	}
	if _, err := epub.ParseAnchor(rangeToken); err != nil {
		return nil, fmt.Errorf("invalid range token: %w", err)
	}

	a := annotate.NewEPUBHighlight(s.doc.ID, rangeToken, text)
	s.persist(ctx, a)
	return a, nil
}

// Bookmark marks the current position.
func (s *Session) Bookmark(ctx context.Context) *annotate.Annotation {
	a := annotate.NewBookmark(s.doc.ID, s.Position())
	s.persist(ctx, a)
	return a
}

// persist keeps the annotation locally, announces it, and writes it out.
// The local copy outlives a failed write, so the highlight stays visible
// for the rest of the session either way.
func (s *Session) persist(ctx context.Context, a *annotate.Annotation) {
	s.mu.Lock()
	s.created = append(s.created, a)
	s.mu.Unlock()

	s.events.publish(Event{Type: EventAnnotationCreated, Annotation: a})

	if _, err := s.annStore.Create(ctx, s.userID, s.doc.ID, a); err != nil {
		slog.Warn("annotation write failed, keeping local copy",
			"book", s.doc.ID,
			"annotation", a.ID,
			"error", err)
		s.events.publish(Event{Type: EventNotice, Notice: "annotation could not be saved"})
	}
}

// AnnotationsForPage returns the annotations to draw on a page ordinal:
// the stored ones plus any local ones whose write failed.
func (s *Session) AnnotationsForPage(ctx context.Context, ordinal int) ([]*annotate.Annotation, error) {
	var stored []*annotate.Annotation
	var err error
	if s.pdfDoc != nil {
		stored, err = s.annStore.ListByPage(ctx, s.userID, s.doc.ID, ordinal)
	} else {
		stored, err = s.annStore.List(ctx, s.userID, s.doc.ID)
	}
	if err != nil {
		slog.Warn("listing annotations failed, serving session-local ones",
			"book", s.doc.ID, "error", err)
		stored = nil
	}

	seen := make(map[string]bool, len(stored))
	var out []*annotate.Annotation
	for _, a := range stored {
		if s.onPage(a, ordinal) {
			seen[a.ID] = true
			out = append(out, a)
		}
	}

	s.mu.Lock()
	local := append([]*annotate.Annotation(nil), s.created...)
	s.mu.Unlock()
	for _, a := range local {
		if !seen[a.ID] && s.onPage(a, ordinal) {
			out = append(out, a)
		}
	}
	return out, nil
}

// onPage reports whether an annotation belongs on the given page ordinal
// under the current layout.
func (s *Session) onPage(a *annotate.Annotation, ordinal int) bool {
	switch a.Engine {
	case document.KindPDF:
		return a.Anchor.Page == ordinal
	case document.KindEPUB:
		if a.Anchor.Range == "" {
			return false
		}
		return s.reader.Ordinal(document.EPUBAnchor(a.Anchor.Range)) == ordinal
	}
	return false
}
