// Package session bundles all per-reading-session state into one explicit
// value: the open document variant, current position and scale, the render
// pipeline, text layer resolution, search, progress, and annotations.
// Nothing in here is global; closing the session releases everything.
package session

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/leafmark/reader/internal/annotate"
	"github.com/leafmark/reader/internal/config"
	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/epub"
	"github.com/leafmark/reader/internal/ocr"
	"github.com/leafmark/reader/internal/pdf"
	"github.com/leafmark/reader/internal/progress"
	"github.com/leafmark/reader/internal/render"
	"github.com/leafmark/reader/internal/search"
	"github.com/leafmark/reader/internal/store"
	"github.com/leafmark/reader/internal/textlayer"
)

// Deps are the external collaborators a session needs. OCR and Cache may be
// nil; Progress and Annotations fall back to an in-memory store when nil.
type Deps struct {
	OCR         ocr.Engine
	Cache       textlayer.Cache
	Progress    store.ProgressStore
	Annotations store.AnnotationStore
}

// Session is one user's open reader for one document.
type Session struct {
	cfg    *config.Config
	userID string
	doc    document.Document

	reader  document.Reader
	pdfDoc  *pdf.PDF   // nil for EPUB sessions
	epubDoc *epub.EPUB // nil for PDF sessions

	raster    *render.Rasterizer
	coalescer *render.Coalescer
	resolver  *textlayer.Resolver
	searcher  *search.Engine
	tracker   *progress.Tracker
	annStore  store.AnnotationStore

	events *bus

	mu      sync.Mutex
	pos     document.Position
	zoom    float64
	current *render.Page
	// created holds every annotation made this session, persisted or not,
	// so a failed write still renders (optimistic local state).
	created []*annotate.Annotation
	closed  bool
}

// Open builds a session for doc, restoring the saved reading position when
// one exists. A document that cannot be parsed fails the whole session.
func Open(ctx context.Context, cfg *config.Config, userID string, doc document.Document, deps Deps) (*Session, error) {
	if deps.Progress == nil || deps.Annotations == nil {
		mem := store.NewMemoryStore()
		if deps.Progress == nil {
			deps.Progress = mem
		}
		if deps.Annotations == nil {
			deps.Annotations = mem
		}
	}

	s := &Session{
		cfg:      cfg,
		userID:   userID,
		doc:      doc,
		raster:   render.NewRasterizer(cfg.Render),
		resolver: textlayer.NewResolver(cfg.Text, deps.OCR, deps.Cache),
		tracker:  progress.NewTracker(cfg.Progress, deps.Progress, userID, doc.ID),
		annStore: deps.Annotations,
		events:   newBus(),
		zoom:     1.0,
	}

	switch doc.Kind {
	case document.KindPDF:
		p, err := pdf.Open(doc.ID, doc.Path)
		if err != nil {
			return nil, err
		}
		s.pdfDoc = p
		s.reader = p
	case document.KindEPUB:
		e, err := epub.Open(doc.ID, doc.Path, cfg.Render.ViewportWidth, cfg.Render.ViewportHeight)
		if err != nil {
			return nil, err
		}
		s.epubDoc = e
		s.reader = e
	default:
		return nil, fmt.Errorf("unknown document kind %q", doc.Kind)
	}

	s.coalescer = render.NewCoalescer(s.renderOne, s.deliverRender)
	s.searcher = search.NewEngine(cfg.Search, &pageTextSource{s: s})
	s.pos = s.startPosition(ctx)
	return s, nil
}

// startPosition reads saved progress once and maps it to an opening
// position, falling back to the first page.
func (s *Session) startPosition(ctx context.Context) document.Position {
	saved, err := s.tracker.Load(ctx)
	if err != nil {
		slog.Warn("loading progress failed, starting at page one", "book", s.doc.ID, "error", err)
		return s.reader.First()
	}
	if saved == nil {
		return s.reader.First()
	}
	switch s.doc.Kind {
	case document.KindPDF:
		if saved.PDFPage >= 1 {
			return s.reader.At(saved.PDFPage)
		}
	case document.KindEPUB:
		if saved.EPUBAnchor != "" {
			return document.EPUBAnchor(saved.EPUBAnchor)
		}
	}
	return s.reader.First()
}

// Document returns the document this session reads.
func (s *Session) Document() document.Document { return s.doc }

// PageCount returns the current page count. For EPUB this changes with the
// font scale.
func (s *Session) PageCount() int { return s.reader.PageCount() }

// Position returns the current reading position.
func (s *Session) Position() document.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Ordinal returns the 1-based page ordinal of the current position.
func (s *Session) Ordinal() int { return s.reader.Ordinal(s.Position()) }

// Zoom returns the current requested zoom factor.
func (s *Session) Zoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}

// CurrentPage returns the last completed render, or nil before the first
// one finishes.
func (s *Session) CurrentPage() *render.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Render requests a render of the current position at the current zoom.
// The request goes through the single-flight queue; completion arrives as a
// PageRendered event.
func (s *Session) Render(ctx context.Context) error {
	s.mu.Lock()
	req := render.Request{Position: s.pos, Zoom: s.zoom}
	s.mu.Unlock()
	return s.coalescer.Submit(ctx, req)
}

// GoTo jumps to a 1-based page ordinal and requests a render.
func (s *Session) GoTo(ctx context.Context, ordinal int) error {
	return s.moveTo(ctx, s.reader.At(ordinal))
}

// NextPage turns one page forward. At the last page it is a no-op.
func (s *Session) NextPage(ctx context.Context) error {
	pos, ok := s.reader.Step(s.Position(), true)
	if !ok {
		return nil
	}
	return s.moveTo(ctx, pos)
}

// PrevPage turns one page backward. At the first page it is a no-op.
func (s *Session) PrevPage(ctx context.Context) error {
	pos, ok := s.reader.Step(s.Position(), false)
	if !ok {
		return nil
	}
	return s.moveTo(ctx, pos)
}

func (s *Session) moveTo(ctx context.Context, pos document.Position) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return render.ErrClosed
	}
	s.pos = pos
	req := render.Request{Position: pos, Zoom: s.zoom}
	s.mu.Unlock()

	s.tracker.OnPositionChanged(pos, s.reader.PageCount())
	s.events.publish(Event{Type: EventPositionChanged, Position: pos})
	return s.coalescer.Submit(ctx, req)
}

// SetZoom changes the requested zoom (PDF) and re-renders. The value is
// clamped to the configured bounds.
func (s *Session) SetZoom(ctx context.Context, zoom float64) error {
	clamped := s.cfg.Render.ClampZoom(zoom)
	s.mu.Lock()
	s.zoom = clamped
	req := render.Request{Position: s.pos, Zoom: clamped}
	s.mu.Unlock()
	return s.coalescer.Submit(ctx, req)
}

// SetFontScale changes the EPUB font scale (percent), relayouts, and
// re-renders at the page containing the previous position. The anchor-based
// position survives the relayout unchanged.
func (s *Session) SetFontScale(ctx context.Context, scale int) error {
	if s.epubDoc == nil {
		return fmt.Errorf("font scale only applies to reflowable documents")
	}
	clamped := s.cfg.Render.ClampFontScale(scale)
	s.epubDoc.SetFontScale(clamped, s.cfg.Render.ViewportWidth, s.cfg.Render.ViewportHeight)

	s.mu.Lock()
	req := render.Request{Position: s.pos, Zoom: s.zoom}
	s.mu.Unlock()
	return s.coalescer.Submit(ctx, req)
}

// renderOne is the coalescer's render function.
func (s *Session) renderOne(ctx context.Context, req render.Request) (*render.Page, error) {
	ordinal := s.reader.Ordinal(req.Position)
	if s.pdfDoc != nil {
		return s.raster.RenderPDF(ctx, s.pdfDoc, ordinal, req.Zoom)
	}
	return s.raster.RenderEPUB(ctx, s.epubDoc, ordinal)
}

// deliverRender records the completed surface and publishes the outcome.
// Render failures halt that page's display but not the session.
func (s *Session) deliverRender(o render.Outcome) {
	if o.Err != nil {
		slog.Warn("render failed", "book", s.doc.ID, "error", o.Err)
		s.events.publish(Event{Type: EventRenderFailed, Position: o.Request.Position, Err: o.Err})
		return
	}
	s.mu.Lock()
	s.current = o.Page
	s.mu.Unlock()
	s.events.publish(Event{Type: EventPageRendered, Position: o.Page.Position})
}

// PageText resolves the text layer for a page ordinal. PDF pages go through
// native extraction with OCR fallback; EPUB pages are text by construction.
func (s *Session) PageText(ctx context.Context, ordinal int) (*textlayer.PageText, error) {
	if s.pdfDoc != nil {
		return s.resolver.Resolve(ctx, s.pdfDoc, ordinal, s.rasterFor(ordinal))
	}
	return &textlayer.PageText{
		Source:   textlayer.SourceNative,
		FlatText: s.epubDoc.FlatText(ordinal),
	}, nil
}

// rasterFor hands the resolver the already-rendered surface when it shows
// the requested page, so the OCR path need not re-rasterize.
func (s *Session) rasterFor(ordinal int) image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.reader.Ordinal(s.current.Position) == ordinal {
		return s.current.Image
	}
	return nil
}

// pageTextSource adapts the session for the search engine, so index builds
// reuse the resolver and with it the OCR cache.
type pageTextSource struct{ s *Session }

func (p *pageTextSource) PageCount() int { return p.s.reader.PageCount() }

func (p *pageTextSource) PageText(ctx context.Context, page int) (*textlayer.PageText, error) {
	return p.s.PageText(ctx, page)
}

// Search runs a query and returns the hit count.
func (s *Session) Search(ctx context.Context, query string) (int, error) {
	return s.searcher.Find(ctx, query)
}

// NextHit advances the search cursor circularly and jumps to the hit's page.
func (s *Session) NextHit(ctx context.Context) (search.Hit, bool, error) {
	hit, ok := s.searcher.Next()
	if !ok {
		return search.Hit{}, false, nil
	}
	return hit, true, s.jumpToHit(ctx, hit)
}

// PrevHit steps the search cursor back circularly and jumps to the hit's
// page.
func (s *Session) PrevHit(ctx context.Context) (search.Hit, bool, error) {
	hit, ok := s.searcher.Prev()
	if !ok {
		return search.Hit{}, false, nil
	}
	return hit, true, s.jumpToHit(ctx, hit)
}

func (s *Session) jumpToHit(ctx context.Context, hit search.Hit) error {
	if s.Ordinal() == hit.Page {
		return nil
	}
	return s.GoTo(ctx, hit.Page)
}

// Events returns the session's event stream.
func (s *Session) Events() <-chan Event { return s.events.channel() }

// Close flushes progress, stops the render queue, and closes the event
// stream. The session is unusable afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.coalescer.Close()
	s.tracker.Close()
	s.events.close()
}
