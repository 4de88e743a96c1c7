package annotate

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/textlayer"
)

func TestCaptureSelection_NormalizesAgainstSurface(t *testing.T) {
	surface := image.Rect(0, 0, 800, 1000)
	boxes := CaptureSelection(surface, []image.Rectangle{
		image.Rect(80, 100, 240, 150),
	})

	require.Len(t, boxes, 1)
	assert.InDelta(t, 0.1, boxes[0].X, 1e-9)
	assert.InDelta(t, 0.1, boxes[0].Y, 1e-9)
	assert.InDelta(t, 0.2, boxes[0].W, 1e-9)
	assert.InDelta(t, 0.05, boxes[0].H, 1e-9)
}

func TestCaptureSelection_ClipsToSurface(t *testing.T) {
	surface := image.Rect(0, 0, 100, 100)
	boxes := CaptureSelection(surface, []image.Rectangle{
		image.Rect(50, 50, 200, 80), // spills off the right edge
	})

	require.Len(t, boxes, 1)
	assert.InDelta(t, 0.5, boxes[0].X, 1e-9)
	assert.InDelta(t, 0.5, boxes[0].W, 1e-9)
}

func TestCaptureSelection_DropsDegenerateRects(t *testing.T) {
	surface := image.Rect(0, 0, 100, 100)

	assert.Nil(t, CaptureSelection(surface, []image.Rectangle{
		image.Rect(200, 200, 300, 300), // entirely off-surface
		image.Rect(10, 10, 10, 40),     // zero width
	}))
	assert.Nil(t, CaptureSelection(surface, nil))
	assert.Nil(t, CaptureSelection(image.Rectangle{}, []image.Rectangle{image.Rect(0, 0, 10, 10)}))
}

func TestCaptureRedraw_RoundTripAcrossZoom(t *testing.T) {
	// Capture at zoom Z1 on an 800x1000 surface.
	captured := CaptureSelection(image.Rect(0, 0, 800, 1000), []image.Rectangle{
		image.Rect(200, 400, 400, 430),
	})
	require.Len(t, captured, 1)

	// Redraw at zoom Z2 on a 1200x1500 surface. Same page fractions, so the
	// pixel rect scales by exactly 1.5.
	redrawn := Denormalize(captured[0], 1200, 1500)
	assert.Equal(t, image.Rect(300, 600, 600, 645), redrawn)
}

func TestSelectionText_CollectsCoveredWords(t *testing.T) {
	page := &textlayer.PageText{
		Words: []textlayer.Word{
			{Text: "alpha", Box: textlayer.Box{X: 0.10, Y: 0.10, W: 0.10, H: 0.03}},
			{Text: "beta", Box: textlayer.Box{X: 0.25, Y: 0.10, W: 0.10, H: 0.03}},
			{Text: "gamma", Box: textlayer.Box{X: 0.10, Y: 0.50, W: 0.10, H: 0.03}},
		},
	}
	rects := []textlayer.Box{{X: 0.05, Y: 0.08, W: 0.40, H: 0.08}}

	assert.Equal(t, "alpha beta", SelectionText(page, rects))
	assert.Equal(t, "", SelectionText(page, nil))
	assert.Equal(t, "", SelectionText(nil, rects))
}

func TestNewPDFHighlight(t *testing.T) {
	rects := []textlayer.Box{{X: 0.1, Y: 0.2, W: 0.3, H: 0.05}}
	a := NewPDFHighlight("book-1", 4, rects, "quoted text")

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, TypeHighlight, a.Type)
	assert.Equal(t, document.KindPDF, a.Engine)
	assert.Equal(t, 4, a.Anchor.Page)
	assert.Equal(t, rects, a.Anchor.Rects)
	assert.False(t, a.CreatedAt.IsZero())
	assert.NoError(t, a.Validate())
}

func TestNewEPUBHighlight(t *testing.T) {
	a := NewEPUBHighlight("book-1", "2/7/31", "quoted")
	assert.Equal(t, document.KindEPUB, a.Engine)
	assert.Equal(t, "2/7/31", a.Anchor.Range)
	assert.NoError(t, a.Validate())
}

func TestNewBookmark(t *testing.T) {
	pdfMark := NewBookmark("book-1", document.PDFPage(9))
	assert.Equal(t, TypeBookmark, pdfMark.Type)
	assert.Equal(t, 9, pdfMark.Anchor.Page)
	assert.NoError(t, pdfMark.Validate())

	epubMark := NewBookmark("book-1", document.EPUBAnchor("1/0/0"))
	assert.Equal(t, "1/0/0", epubMark.Anchor.Range)
	assert.NoError(t, epubMark.Validate())
}

func TestValidate_RejectsMalformedRecords(t *testing.T) {
	cases := map[string]*Annotation{
		"no id":            {Type: TypeHighlight, Engine: document.KindPDF, Anchor: Anchor{Page: 1, Rects: []textlayer.Box{{W: 0.1, H: 0.1}}}},
		"bad type":         {ID: "x", Type: "underline", Engine: document.KindPDF, Anchor: Anchor{Page: 1}},
		"pdf no page":      {ID: "x", Type: TypeBookmark, Engine: document.KindPDF},
		"pdf no rects":     {ID: "x", Type: TypeHighlight, Engine: document.KindPDF, Anchor: Anchor{Page: 1}},
		"epub no range":    {ID: "x", Type: TypeHighlight, Engine: document.KindEPUB},
		"unknown engine":   {ID: "x", Type: TypeBookmark, Engine: "djvu", Anchor: Anchor{Page: 1}},
	}
	for name, a := range cases {
		assert.Error(t, a.Validate(), name)
	}
}
