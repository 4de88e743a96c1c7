// Package search provides full-text search over a document's resolved page
// text. The index is built lazily per query by walking pages in order, and
// the hit list is capped so pathological documents cannot grow it without
// bound. Navigation is circular: stepping past the last hit wraps to the
// first.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/leafmark/reader/internal/config"
	"github.com/leafmark/reader/internal/textlayer"
)

// TextSource yields resolved page text. The session wires the text layer
// resolver in here, so search reuses both the native extraction path and
// the OCR cache.
type TextSource interface {
	PageCount() int
	PageText(ctx context.Context, page int) (*textlayer.PageText, error)
}

// Hit is one match.
type Hit struct {
	// Page is the 1-based page ordinal the match is on.
	Page int
	// Offset is the rune offset of the match in the page's folded text.
	Offset int
	// Excerpt is a short snippet around the match for result lists.
	Excerpt string
}

// Engine runs queries against one document.
type Engine struct {
	cfg    config.SearchConfig
	source TextSource

	mu      sync.Mutex
	query   string
	hits    []Hit
	cursor  int
	skipped int // pages whose text could not be resolved
}

// NewEngine returns a search engine over source.
func NewEngine(cfg config.SearchConfig, source TextSource) *Engine {
	return &Engine{cfg: cfg, source: source, cursor: -1}
}

// Find runs a new query, replacing any previous result set and resetting
// the cursor to the start. Pages whose text cannot be resolved are skipped,
// not fatal: a single bad page should not kill search over the rest of the
// document. The walk stops early once the hit cap is reached, and checks
// ctx between pages so a stale query can be abandoned.
func (e *Engine) Find(ctx context.Context, query string) (int, error) {
	needle := fold(query)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.query = query
	e.hits = nil
	e.cursor = -1
	e.skipped = 0
	if needle == "" {
		return 0, nil
	}

	for page := 1; page <= e.source.PageCount(); page++ {
		if err := ctx.Err(); err != nil {
			e.hits = nil
			return 0, err
		}
		text, err := e.source.PageText(ctx, page)
		if err != nil || text == nil {
			e.skipped++
			continue
		}
		e.scanPage(page, fold(text.FlatText), needle)
		if len(e.hits) >= e.cfg.MaxHits {
			break
		}
	}
	return len(e.hits), nil
}

func (e *Engine) scanPage(page int, haystack, needle string) {
	runes := []rune(haystack)
	needleRunes := []rune(needle)
	for i := 0; i+len(needleRunes) <= len(runes); i++ {
		if len(e.hits) >= e.cfg.MaxHits {
			return
		}
		if string(runes[i:i+len(needleRunes)]) != needle {
			continue
		}
		e.hits = append(e.hits, Hit{
			Page:    page,
			Offset:  i,
			Excerpt: excerpt(runes, i, len(needleRunes)),
		})
	}
}

// Next advances the cursor circularly and returns the hit, or false when
// the result set is empty.
func (e *Engine) Next() (Hit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.hits) == 0 {
		return Hit{}, false
	}
	e.cursor = (e.cursor + 1) % len(e.hits)
	return e.hits[e.cursor], true
}

// Prev steps the cursor back circularly and returns the hit, or false when
// the result set is empty.
func (e *Engine) Prev() (Hit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.hits) == 0 {
		return Hit{}, false
	}
	if e.cursor <= 0 {
		e.cursor = len(e.hits) - 1
	} else {
		e.cursor--
	}
	return e.hits[e.cursor], true
}

// HitCount returns the size of the current result set.
func (e *Engine) HitCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.hits)
}

// Query returns the query the current result set was built for.
func (e *Engine) Query() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.query
}

// Status describes the current result set for display.
func (e *Engine) Status() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.query == "" {
		return "no query"
	}
	capped := ""
	if len(e.hits) >= e.cfg.MaxHits {
		capped = "+"
	}
	return fmt.Sprintf("%d%s hits for %q (%d pages unreadable)", len(e.hits), capped, e.query, e.skipped)
}

// fold normalizes text for matching: Unicode NFC then simple case folding,
// so "Épée" matches "épée" regardless of how the accents were encoded.
func fold(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

const excerptRadius = 30

func excerpt(runes []rune, offset, length int) string {
	start := offset - excerptRadius
	if start < 0 {
		start = 0
	}
	end := offset + length + excerptRadius
	if end > len(runes) {
		end = len(runes)
	}
	return strings.TrimSpace(string(runes[start:end]))
}
