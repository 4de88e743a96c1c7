// Package progress persists the reading position. Page turns arrive far
// faster than they are worth writing, so the tracker debounces: a write
// happens only after a quiet period, and carries just the latest position.
// Failed writes are logged and dropped, never retried, because a failed
// background save must not interrupt reading.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/leafmark/reader/internal/config"
	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/store"
)

// Tracker debounces position updates for one (user, book) pair.
type Tracker struct {
	store    store.ProgressStore
	interval time.Duration
	userID   string
	bookID   string

	mu      sync.Mutex
	timer   *time.Timer
	pending *store.Progress
	closed  bool
}

// NewTracker returns a tracker writing through st.
func NewTracker(cfg config.ProgressConfig, st store.ProgressStore, userID, bookID string) *Tracker {
	return &Tracker{
		store:    st,
		interval: cfg.DebounceInterval,
		userID:   userID,
		bookID:   bookID,
	}
}

// Load reads the saved progress once, for picking the position to open at.
// A missing record returns nil.
func (t *Tracker) Load(ctx context.Context) (*store.Progress, error) {
	return t.store.Get(ctx, t.userID, t.bookID)
}

// OnPositionChanged records a new position and (re)arms the debounce timer.
// Rapid successive calls collapse into one write carrying the last position.
// pageCount is stored alongside PDF pages so the saved record can say
// "page X of Y"; for EPUB it is layout-dependent and not persisted.
func (t *Tracker) OnPositionChanged(pos document.Position, pageCount int) {
	partial := store.Progress{}
	switch pos.Kind() {
	case document.KindEPUB:
		partial.EPUBAnchor = pos.Anchor()
	case document.KindPDF:
		partial.PDFPage = pos.Page()
		partial.PDFTotal = pageCount
	default:
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.pending = &partial
	if t.timer == nil {
		t.timer = time.AfterFunc(t.interval, t.flushDebounced)
	} else {
		t.timer.Reset(t.interval)
	}
}

func (t *Tracker) flushDebounced() {
	t.mu.Lock()
	partial := t.pending
	t.pending = nil
	t.mu.Unlock()
	t.write(partial)
}

// Flush writes any pending position immediately.
func (t *Tracker) Flush() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	partial := t.pending
	t.pending = nil
	t.mu.Unlock()
	t.write(partial)
}

func (t *Tracker) write(partial *store.Progress) {
	if partial == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.store.Merge(ctx, t.userID, t.bookID, *partial); err != nil {
		slog.Warn("dropping progress write",
			"book", t.bookID,
			"error", err)
	}
}

// Close flushes the pending position and stops the tracker. Updates after
// Close are ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()
	t.Flush()
}
