package progress

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmark/reader/internal/config"
	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/store"
)

// countingStore wraps the memory store and counts Merge calls.
type countingStore struct {
	*store.MemoryStore
	mu     sync.Mutex
	merges int
	err    error
}

func (c *countingStore) Merge(ctx context.Context, userID, bookID string, partial store.Progress) error {
	c.mu.Lock()
	c.merges++
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.MemoryStore.Merge(ctx, userID, bookID, partial)
}

func (c *countingStore) mergeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.merges
}

func newTracker(st store.ProgressStore) *Tracker {
	cfg := config.ProgressConfig{DebounceInterval: 20 * time.Millisecond}
	return NewTracker(cfg, st, "u1", "b1")
}

func TestOnPositionChanged_DebouncesToSingleWrite(t *testing.T) {
	st := &countingStore{MemoryStore: store.NewMemoryStore()}
	tr := newTracker(st)
	defer tr.Close()

	// A burst of page turns inside the debounce window.
	for page := 1; page <= 10; page++ {
		tr.OnPositionChanged(document.PDFPage(page), 10)
	}

	require.Eventually(t, func() bool { return st.mergeCount() == 1 },
		time.Second, 5*time.Millisecond)

	p, err := st.Get(context.Background(), "u1", "b1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 10, p.PDFPage, "only the last position of the burst is written")
}

func TestOnPositionChanged_SeparateQuietPeriodsWriteSeparately(t *testing.T) {
	st := &countingStore{MemoryStore: store.NewMemoryStore()}
	tr := newTracker(st)
	defer tr.Close()

	tr.OnPositionChanged(document.PDFPage(1), 10)
	require.Eventually(t, func() bool { return st.mergeCount() == 1 },
		time.Second, 5*time.Millisecond)

	tr.OnPositionChanged(document.PDFPage(2), 10)
	require.Eventually(t, func() bool { return st.mergeCount() == 2 },
		time.Second, 5*time.Millisecond)
}

func TestFlush_WritesImmediately(t *testing.T) {
	st := &countingStore{MemoryStore: store.NewMemoryStore()}
	tr := newTracker(st)
	defer tr.Close()

	tr.OnPositionChanged(document.EPUBAnchor("2/4/0"), 0)
	tr.Flush()

	assert.Equal(t, 1, st.mergeCount())
	p, err := st.Get(context.Background(), "u1", "b1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "2/4/0", p.EPUBAnchor)
}

func TestOnPositionChanged_PDFWritesPageTotal(t *testing.T) {
	st := &countingStore{MemoryStore: store.NewMemoryStore()}
	tr := newTracker(st)
	defer tr.Close()

	tr.OnPositionChanged(document.PDFPage(3), 120)
	tr.Flush()

	p, err := st.Get(context.Background(), "u1", "b1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 3, p.PDFPage)
	assert.Equal(t, 120, p.PDFTotal, "the record carries page X of Y")

	// A later EPUB position leaves the pdf fields untouched.
	tr.OnPositionChanged(document.EPUBAnchor("1/0/0"), 9)
	tr.Flush()

	p, err = st.Get(context.Background(), "u1", "b1")
	require.NoError(t, err)
	assert.Equal(t, 120, p.PDFTotal)
	assert.Equal(t, "1/0/0", p.EPUBAnchor)
}

func TestFlush_NothingPendingIsNoop(t *testing.T) {
	st := &countingStore{MemoryStore: store.NewMemoryStore()}
	tr := newTracker(st)
	tr.Flush()
	assert.Equal(t, 0, st.mergeCount())
}

func TestClose_FlushesAndIgnoresLaterUpdates(t *testing.T) {
	st := &countingStore{MemoryStore: store.NewMemoryStore()}
	tr := newTracker(st)

	tr.OnPositionChanged(document.PDFPage(7), 10)
	tr.Close()
	assert.Equal(t, 1, st.mergeCount())

	tr.OnPositionChanged(document.PDFPage(8), 10)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, st.mergeCount())

	p, err := st.Get(context.Background(), "u1", "b1")
	require.NoError(t, err)
	assert.Equal(t, 7, p.PDFPage)
}

func TestWrite_FailureIsDroppedNotRetried(t *testing.T) {
	st := &countingStore{MemoryStore: store.NewMemoryStore(), err: fmt.Errorf("backend down")}
	tr := newTracker(st)
	defer tr.Close()

	tr.OnPositionChanged(document.PDFPage(3), 10)
	tr.Flush()
	assert.Equal(t, 1, st.mergeCount())

	// No retry happens later.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, st.mergeCount())

	// The tracker keeps working once the backend recovers.
	st.mu.Lock()
	st.err = nil
	st.mu.Unlock()
	tr.OnPositionChanged(document.PDFPage(4), 10)
	tr.Flush()

	p, err := st.Get(context.Background(), "u1", "b1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 4, p.PDFPage)
}

func TestLoad_ReturnsSavedProgress(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Merge(context.Background(), "u1", "b1", store.Progress{PDFPage: 12}))

	tr := newTracker(st)
	p, err := tr.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 12, p.PDFPage)

	missing := NewTracker(config.DefaultProgressConfig(), st, "u1", "other")
	p, err = missing.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, p)
}
