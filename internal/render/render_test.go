package render

import (
	"context"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmark/reader/internal/config"
	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/epub"
	"github.com/leafmark/reader/internal/pdf"
	"github.com/leafmark/reader/internal/testutil"
)

func testRenderConfig() config.RenderConfig {
	cfg := config.DefaultRenderConfig()
	cfg.ViewportWidth = 640
	cfg.ViewportHeight = 480
	return cfg
}

func TestEffectiveScale(t *testing.T) {
	r := NewRasterizer(testRenderConfig())

	// Fit-to-width wins when the clamped zoom is smaller: 640/612 ≈ 1.046.
	fit := 640.0 / 612.0
	assert.InDelta(t, fit, r.EffectiveScale(612, 1.0), 1e-9)

	// A larger zoom wins over fit-to-width.
	assert.InDelta(t, 1.5, r.EffectiveScale(612, 1.5), 1e-9)

	// Zoom is clamped to the configured bounds before the comparison.
	assert.InDelta(t, 2.0, r.EffectiveScale(612, 9.0), 1e-9)
}

func TestRenderPDF_ScannedPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.pdf")
	testutil.WriteScannedPDF(t, path, []image.Image{
		testutil.CreateImage(306, 396, color.White),
	})
	doc, err := pdf.Open("scan", path)
	require.NoError(t, err)

	r := NewRasterizer(testRenderConfig())
	page, err := r.RenderPDF(context.Background(), doc, 1, 1.5)
	require.NoError(t, err)

	assert.Equal(t, document.PDFPage(1), page.Position)
	assert.InDelta(t, 1.5, page.Scale, 1e-9)
	bounds := page.Image.Bounds()
	assert.Equal(t, int(math.Round(612*1.5)), bounds.Dx())
	assert.Equal(t, int(math.Round(792*1.5)), bounds.Dy())
}

func TestRenderPDF_TextPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text.pdf")
	testutil.WritePDFWithText(t, path, []string{"Hello render"})
	doc, err := pdf.Open("text", path)
	require.NoError(t, err)

	r := NewRasterizer(testRenderConfig())
	page, err := r.RenderPDF(context.Background(), doc, 1, 1.0)
	require.NoError(t, err)

	fit := 640.0 / 612.0
	assert.InDelta(t, fit, page.Scale, 1e-9)
	assert.Equal(t, int(math.Round(612*fit)), page.Image.Bounds().Dx())
}

func TestRenderPDF_OutOfRangeAndCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "text.pdf")
	testutil.WritePDFWithText(t, path, []string{"page"})
	doc, err := pdf.Open("text", path)
	require.NoError(t, err)

	r := NewRasterizer(testRenderConfig())

	_, err = r.RenderPDF(context.Background(), doc, 2, 1.0)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.RenderPDF(ctx, doc, 1, 1.0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderEPUB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.epub")
	testutil.WriteEPUB(t, path, []string{"Some chapter text that renders."})
	book, err := epub.Open("book", path, 640, 480)
	require.NoError(t, err)

	r := NewRasterizer(testRenderConfig())
	page, err := r.RenderEPUB(context.Background(), book, 1)
	require.NoError(t, err)

	assert.Equal(t, book.First(), page.Position)
	assert.InDelta(t, 1.0, page.Scale, 1e-9)
	assert.Equal(t, 640, page.Image.Bounds().Dx())
	assert.Equal(t, 480, page.Image.Bounds().Dy())

	// Text was actually drawn: some pixel is no longer white.
	assert.True(t, hasInk(page.Image), "rendered page has no ink")

	_, err = r.RenderEPUB(context.Background(), book, book.PageCount()+1)
	assert.Error(t, err)
}

func TestRenderEPUB_ScaledFontFillsLayoutWidth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.epub")
	filler := strings.Repeat("Words that wrap across the whole page width. ", 30)
	testutil.WriteEPUB(t, path, []string{filler})
	book, err := epub.Open("book", path, 640, 480)
	require.NoError(t, err)
	book.SetFontScale(200, 640, 480)

	r := NewRasterizer(testRenderConfig())
	page, err := r.RenderEPUB(context.Background(), book, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, page.Scale, 1e-9)

	// At 200% the layout wraps lines for 14px glyph cells. Drawing at the
	// base 7px face would leave the right half of every line empty.
	const margin = 24
	cols := (640 - 2*margin) / 14
	right := rightmostInk(page.Image)
	assert.Greater(t, right, margin+cols*7, "glyphs drawn narrower than the layout wrapped for")
	assert.LessOrEqual(t, right, margin+cols*14)
}

func rightmostInk(img image.Image) int {
	bounds := img.Bounds()
	for x := bounds.Max.X - 1; x >= bounds.Min.X; x-- {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r != 0xffff || g != 0xffff || b != 0xffff {
				return x
			}
		}
	}
	return -1
}

func hasInk(img image.Image) bool {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r != 0xffff || g != 0xffff || b != 0xffff {
				return true
			}
		}
	}
	return false
}

func TestCoalescer_CollapsesBursts(t *testing.T) {
	gate := make(chan struct{})
	var calls atomic.Int32
	outcomes := make(chan Outcome, 8)

	render := func(ctx context.Context, req Request) (*Page, error) {
		if calls.Add(1) == 1 {
			<-gate
		}
		return &Page{Position: req.Position, Scale: req.Zoom}, nil
	}
	c := NewCoalescer(render, func(o Outcome) { outcomes <- o })
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, Request{Position: document.PDFPage(1), Zoom: 1.0}))
	// Burst while the first render is blocked; only the last survives.
	require.NoError(t, c.Submit(ctx, Request{Position: document.PDFPage(2), Zoom: 1.2}))
	require.NoError(t, c.Submit(ctx, Request{Position: document.PDFPage(3), Zoom: 1.4}))
	require.NoError(t, c.Submit(ctx, Request{Position: document.PDFPage(4), Zoom: 1.6}))
	close(gate)

	first := <-outcomes
	second := <-outcomes
	assert.Equal(t, document.PDFPage(1), first.Request.Position)
	assert.Equal(t, document.PDFPage(4), second.Request.Position)

	c.Close()
	assert.Equal(t, int32(2), calls.Load())
}

func TestCoalescer_SequentialSubmitsAllRender(t *testing.T) {
	outcomes := make(chan Outcome, 4)
	c := NewCoalescer(func(ctx context.Context, req Request) (*Page, error) {
		return &Page{Position: req.Position}, nil
	}, func(o Outcome) { outcomes <- o })
	ctx := context.Background()

	for page := 1; page <= 3; page++ {
		require.NoError(t, c.Submit(ctx, Request{Position: document.PDFPage(page)}))
		got := <-outcomes
		require.NoError(t, got.Err)
		assert.Equal(t, document.PDFPage(page), got.Request.Position)
	}
	c.Close()
}

func TestCoalescer_SubmitAfterClose(t *testing.T) {
	c := NewCoalescer(func(ctx context.Context, req Request) (*Page, error) {
		return &Page{}, nil
	}, func(Outcome) {})
	c.Close()
	assert.ErrorIs(t, c.Submit(context.Background(), Request{}), ErrClosed)
}
