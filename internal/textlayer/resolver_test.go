package textlayer

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmark/reader/internal/config"
	"github.com/leafmark/reader/internal/ocr"
	"github.com/leafmark/reader/internal/pdf"
	"github.com/leafmark/reader/internal/testutil"
)

// memCache is a map-backed Cache for tests.
type memCache struct {
	entries map[string]*PageText
	puts    int
}

func newMemCache() *memCache { return &memCache{entries: make(map[string]*PageText)} }

func (c *memCache) Get(_ context.Context, bookID string, page int) (*PageText, error) {
	return c.entries[fmt.Sprintf("%s:%d", bookID, page)], nil
}

func (c *memCache) Put(_ context.Context, bookID string, page int, text *PageText) error {
	c.puts++
	c.entries[fmt.Sprintf("%s:%d", bookID, page)] = text
	return nil
}

func openScanned(t *testing.T, pages int) *pdf.PDF {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.pdf")
	images := make([]image.Image, pages)
	for i := range images {
		images[i] = testutil.CreateTextImage(fmt.Sprintf("scan page %d", i+1), testutil.SmallSize)
	}
	testutil.WriteScannedPDF(t, path, images)

	doc, err := pdf.Open("scan-book", path)
	require.NoError(t, err)
	return doc
}

func TestResolve_OCRPath(t *testing.T) {
	doc := openScanned(t, 2)
	engine := testutil.NewFakeOCR("hello scanned world")
	cache := newMemCache()
	r := NewResolver(config.DefaultTextConfig(), engine, cache)

	raster := testutil.CreateTextImage("hello scanned world", testutil.PageSize)
	text, err := r.Resolve(context.Background(), doc, 1, raster)
	require.NoError(t, err)

	assert.Equal(t, SourceOCR, text.Source)
	assert.Equal(t, "hello scanned world", text.FlatText)
	require.Len(t, text.Words, 3)
	for _, w := range text.Words {
		assert.GreaterOrEqual(t, w.Box.X, 0.0)
		assert.LessOrEqual(t, w.Box.X+w.Box.W, 1.0)
		assert.False(t, w.Box.Empty())
	}
	assert.Equal(t, 1, engine.Calls())
	assert.Equal(t, 1, cache.puts)
}

func TestResolve_SecondResolveIsIdentical(t *testing.T) {
	doc := openScanned(t, 1)
	engine := testutil.NewFakeOCR("cached words")
	r := NewResolver(config.DefaultTextConfig(), engine, newMemCache())
	raster := testutil.CreateTextImage("cached words", testutil.PageSize)

	first, err := r.Resolve(context.Background(), doc, 1, raster)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), doc, 1, raster)
	require.NoError(t, err)

	// Bit-identical result, no second OCR run.
	assert.Same(t, first, second)
	assert.Equal(t, 1, engine.Calls())
}

func TestResolve_PersistentCacheShortCircuitsOCR(t *testing.T) {
	doc := openScanned(t, 1)
	cache := newMemCache()
	raster := testutil.CreateTextImage("persisted", testutil.PageSize)

	engine1 := testutil.NewFakeOCR("persisted")
	r1 := NewResolver(config.DefaultTextConfig(), engine1, cache)
	_, err := r1.Resolve(context.Background(), doc, 1, raster)
	require.NoError(t, err)
	require.Equal(t, 1, engine1.Calls())

	// A fresh session (new resolver) hits the persistent cache; no OCR and
	// no raster needed.
	engine2 := testutil.NewFakeOCR("persisted")
	r2 := NewResolver(config.DefaultTextConfig(), engine2, cache)
	text, err := r2.Resolve(context.Background(), doc, 1, nil)
	require.NoError(t, err)

	assert.Equal(t, SourceOCR, text.Source)
	assert.Equal(t, 0, engine2.Calls())
}

func TestResolve_OCRDisabled(t *testing.T) {
	doc := openScanned(t, 1)
	cfg := config.DefaultTextConfig()
	cfg.OCREnabled = false
	r := NewResolver(cfg, nil, newMemCache())

	_, err := r.Resolve(context.Background(), doc, 1, testutil.CreateTextImage("x", testutil.SmallSize))
	require.ErrorIs(t, err, ocr.ErrUnavailable)
}

func TestResolve_EngineFailureDegrades(t *testing.T) {
	doc := openScanned(t, 1)
	engine := testutil.NewFakeOCR("irrelevant")
	engine.Err = ocr.ErrUnavailable
	r := NewResolver(config.DefaultTextConfig(), engine, newMemCache())

	_, err := r.Resolve(context.Background(), doc, 1, testutil.CreateTextImage("x", testutil.SmallSize))
	require.ErrorIs(t, err, ocr.ErrUnavailable)
}

func TestNativePageText_NormalizesByPageSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text.pdf")
	testutil.WritePDF(t, path, 1)
	doc, err := pdf.Open("text-book", path)
	require.NoError(t, err)

	r := NewResolver(config.DefaultTextConfig(), nil, nil)
	runs := []pdf.TextRun{
		{Text: "title", X: 61.2, Y: 79.2, Width: 122.4, Height: 15.84, FontSize: 14},
		{Text: "", X: 0, Y: 0, Width: 0, Height: 0}, // zero-area run dropped
	}
	text := r.nativePageText(doc, 1, runs)

	assert.Equal(t, SourceNative, text.Source)
	require.Len(t, text.Words, 1)
	assert.InDelta(t, 0.1, text.Words[0].Box.X, 1e-9)
	assert.InDelta(t, 0.1, text.Words[0].Box.Y, 1e-9)
	assert.InDelta(t, 0.2, text.Words[0].Box.W, 1e-9)
	assert.InDelta(t, 0.02, text.Words[0].Box.H, 1e-9)
	assert.Equal(t, "title", text.FlatText)
}

func TestOCRPageText_NormalizesByBitmap(t *testing.T) {
	result := &ocr.Result{
		FullText: "one two",
		Words: []ocr.Word{
			{Text: "one", Box: image.Rect(0, 0, 100, 20)},
			{Text: "two", Box: image.Rect(100, 0, 200, 20)},
		},
	}

	text := ocrPageText(result, image.Rect(0, 0, 400, 200))
	require.Len(t, text.Words, 2)
	assert.InDelta(t, 0.25, text.Words[0].Box.W, 1e-9)
	assert.InDelta(t, 0.1, text.Words[0].Box.H, 1e-9)
	assert.InDelta(t, 0.25, text.Words[1].Box.X, 1e-9)
}
