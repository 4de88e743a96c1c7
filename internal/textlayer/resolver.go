package textlayer

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/leafmark/reader/internal/config"
	"github.com/leafmark/reader/internal/ocr"
	"github.com/leafmark/reader/internal/pdf"
)

// Resolver derives the text layer of PDF pages: native extraction first,
// OCR on the rendered raster when the page description carries no usable
// text. EPUB content is reflowable text by construction and never passes
// through here.
type Resolver struct {
	cfg    config.TextConfig
	engine ocr.Engine
	cache  Cache // persistent OCR cache; may be nil

	mu      sync.Mutex
	session map[string]*PageText // per-session memo, both sources
}

// NewResolver creates a resolver. cache may be nil (OCR results then live
// only for the session); engine may be nil when OCR is disabled.
func NewResolver(cfg config.TextConfig, engine ocr.Engine, cache Cache) *Resolver {
	return &Resolver{
		cfg:     cfg,
		engine:  engine,
		cache:   cache,
		session: make(map[string]*PageText),
	}
}

// Resolve returns the text layer for a page. raster is the currently
// rendered page surface; it is only consulted on the OCR path, and only
// when the persistent cache misses. Resolving the same page twice returns
// the identical PageText without re-running OCR.
func (r *Resolver) Resolve(ctx context.Context, doc *pdf.PDF, page int, raster image.Image) (*PageText, error) {
	key := fmt.Sprintf("%s:%d", doc.ID(), page)

	r.mu.Lock()
	if text, ok := r.session[key]; ok {
		r.mu.Unlock()
		return text, nil
	}
	r.mu.Unlock()

	runs, err := doc.TextRuns(page)
	if err != nil {
		return nil, fmt.Errorf("native text for page %d: %w", page, err)
	}

	// Pages with fewer discrete runs than the threshold are treated as
	// image-only. A legitimately sparse page (single pull-quote) gets OCR'd
	// redundantly, which still succeeds.
	if len(runs) >= r.cfg.NativeRunThreshold {
		text := r.nativePageText(doc, page, runs)
		r.remember(key, text)
		return text, nil
	}

	return r.resolveOCR(ctx, doc, page, raster, key)
}

// resolveOCR consults the persistent cache, then falls back to running the
// engine against the page raster.
func (r *Resolver) resolveOCR(ctx context.Context, doc *pdf.PDF, page int, raster image.Image, key string) (*PageText, error) {
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, doc.ID(), page)
		if err != nil {
			slog.Warn("ocr cache read failed", "book", doc.ID(), "page", page, "error", err)
		} else if cached != nil {
			r.remember(key, cached)
			return cached, nil
		}
	}

	if !r.cfg.OCREnabled || r.engine == nil {
		return nil, ocr.ErrUnavailable
	}

	if raster == nil {
		img, err := doc.PageImage(page)
		if err != nil {
			return nil, fmt.Errorf("rasterize page %d for ocr: %w", page, err)
		}
		raster = img
	}
	if raster == nil {
		// Neither text nor imagery; an empty layer, session-scoped only.
		text := &PageText{Source: SourceNative}
		r.remember(key, text)
		return text, nil
	}

	result, err := r.engine.Recognize(ctx, raster)
	if err != nil {
		return nil, err
	}

	text := ocrPageText(result, raster.Bounds())
	if r.cache != nil {
		if err := r.cache.Put(ctx, doc.ID(), page, text); err != nil {
			slog.Warn("ocr cache write failed", "book", doc.ID(), "page", page, "error", err)
		}
	}
	r.remember(key, text)
	return text, nil
}

func (r *Resolver) remember(key string, text *PageText) {
	r.mu.Lock()
	r.session[key] = text
	r.mu.Unlock()
}

// nativePageText converts point-space text runs into a normalized layer.
func (r *Resolver) nativePageText(doc *pdf.PDF, page int, runs []pdf.TextRun) *PageText {
	pageW, pageH := doc.PageSize(page)

	text := &PageText{Source: SourceNative, Words: make([]Word, 0, len(runs))}
	flat := make([]byte, 0, 256)
	for _, run := range runs {
		box := Box{
			X: run.X / pageW,
			Y: run.Y / pageH,
			W: run.Width / pageW,
			H: run.Height / pageH,
		}
		if box.Empty() {
			continue
		}
		text.Words = append(text.Words, Word{Text: run.Text, Box: box})
		if len(flat) > 0 {
			flat = append(flat, ' ')
		}
		flat = append(flat, run.Text...)
	}
	text.FlatText = string(flat)
	return text
}

// ocrPageText normalizes recognized word boxes by the bitmap's own
// dimensions, making the result resolution-independent.
func ocrPageText(result *ocr.Result, bounds image.Rectangle) *PageText {
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	text := &PageText{Source: SourceOCR, FlatText: result.FullText}
	for _, word := range result.Words {
		box := Box{
			X: float64(word.Box.Min.X-bounds.Min.X) / w,
			Y: float64(word.Box.Min.Y-bounds.Min.Y) / h,
			W: float64(word.Box.Dx()) / w,
			H: float64(word.Box.Dy()) / h,
		}
		if box.Empty() {
			continue
		}
		text.Words = append(text.Words, Word{Text: word.Text, Box: box})
	}
	return text
}
