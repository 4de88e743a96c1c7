package search

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmark/reader/internal/config"
	"github.com/leafmark/reader/internal/textlayer"
)

// fakeSource serves canned page text and records which pages were asked for.
type fakeSource struct {
	pages    map[int]string
	failures map[int]error
	requests []int
}

func (f *fakeSource) PageCount() int { return len(f.pages) + len(f.failures) }

func (f *fakeSource) PageText(_ context.Context, page int) (*textlayer.PageText, error) {
	f.requests = append(f.requests, page)
	if err, ok := f.failures[page]; ok {
		return nil, err
	}
	return &textlayer.PageText{FlatText: f.pages[page]}, nil
}

func newEngine(source TextSource) *Engine {
	return NewEngine(config.DefaultSearchConfig(), source)
}

func TestFind_LocatesMatchesAcrossPages(t *testing.T) {
	source := &fakeSource{pages: map[int]string{
		1: "the whale surfaced near the boat",
		2: "no relevant content here",
		3: "another whale appeared, then a third whale",
	}}
	e := newEngine(source)

	n, err := e.Find(context.Background(), "whale")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hit, ok := e.Next()
	require.True(t, ok)
	assert.Equal(t, 1, hit.Page)
	assert.Contains(t, hit.Excerpt, "whale")

	hit, _ = e.Next()
	assert.Equal(t, 3, hit.Page)
	hit, _ = e.Next()
	assert.Equal(t, 3, hit.Page)
}

func TestFind_FoldsCaseAndNormalization(t *testing.T) {
	// The page stores decomposed accents (base letter plus combining acute);
	// the query uses precomposed runes with different casing.
	source := &fakeSource{pages: map[int]string{
		1: "le maitre d'E\u0301pe\u0301e",
	}}
	e := newEngine(source)

	n, err := e.Find(context.Background(), "\u00e9p\u00e9e")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNavigation_IsCircular(t *testing.T) {
	source := &fakeSource{pages: map[int]string{
		1: "fox", 2: "fox", 3: "fox",
	}}
	e := newEngine(source)
	_, err := e.Find(context.Background(), "fox")
	require.NoError(t, err)
	require.Equal(t, 3, e.HitCount())

	// Forward past the end wraps to the first hit.
	pages := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		hit, ok := e.Next()
		require.True(t, ok)
		pages = append(pages, hit.Page)
	}
	assert.Equal(t, []int{1, 2, 3, 1}, pages)

	// Backward from the first hit wraps to the last.
	hit, ok := e.Prev()
	require.True(t, ok)
	assert.Equal(t, 3, hit.Page)
}

func TestPrev_BeforeAnyNextStartsAtLastHit(t *testing.T) {
	source := &fakeSource{pages: map[int]string{1: "fox", 2: "fox"}}
	e := newEngine(source)
	_, err := e.Find(context.Background(), "fox")
	require.NoError(t, err)

	hit, ok := e.Prev()
	require.True(t, ok)
	assert.Equal(t, 2, hit.Page)
}

func TestFind_EmptyQueryClearsResults(t *testing.T) {
	source := &fakeSource{pages: map[int]string{1: "fox"}}
	e := newEngine(source)
	_, err := e.Find(context.Background(), "fox")
	require.NoError(t, err)
	require.Equal(t, 1, e.HitCount())

	n, err := e.Find(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	_, ok := e.Next()
	assert.False(t, ok)
}

func TestFind_NewQueryResetsCursor(t *testing.T) {
	source := &fakeSource{pages: map[int]string{
		1: "fox and badger", 2: "fox again", 3: "badger den",
	}}
	e := newEngine(source)

	_, err := e.Find(context.Background(), "fox")
	require.NoError(t, err)
	e.Next()
	e.Next()

	_, err = e.Find(context.Background(), "badger")
	require.NoError(t, err)
	hit, ok := e.Next()
	require.True(t, ok)
	assert.Equal(t, 1, hit.Page, "new query starts from the first hit")
}

func TestFind_CapsHitsAndStopsWalking(t *testing.T) {
	pages := make(map[int]string, 100)
	for i := 1; i <= 100; i++ {
		pages[i] = strings.Repeat("hit ", 10) // 10 matches per page
	}
	cfg := config.SearchConfig{MaxHits: 25}
	source := &fakeSource{pages: pages}
	e := NewEngine(cfg, source)

	n, err := e.Find(context.Background(), "hit")
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	// 25 hits at 10 per page means the walk stopped after 3 pages.
	assert.Len(t, source.requests, 3)
}

func TestFind_SkipsUnresolvablePages(t *testing.T) {
	source := &fakeSource{
		pages:    map[int]string{1: "needle here", 3: "needle there"},
		failures: map[int]error{2: fmt.Errorf("ocr unavailable")},
	}
	e := newEngine(source)

	n, err := e.Find(context.Background(), "needle")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, e.Status(), "1 pages unreadable")
}

func TestFind_CancelledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source := &fakeSource{pages: map[int]string{1: "fox"}}
	e := newEngine(source)

	_, err := e.Find(ctx, "fox")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, e.HitCount())
}

func TestNext_NoResults(t *testing.T) {
	e := newEngine(&fakeSource{pages: map[int]string{}})
	_, ok := e.Next()
	assert.False(t, ok)
	_, ok = e.Prev()
	assert.False(t, ok)
}
