package pdf

import (
	"fmt"
	"math"
	"strings"

	dpdf "github.com/dslipak/pdf"
)

// Letter-size fallback in points, used when a page carries no usable MediaBox.
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// TextRun is one positioned native text run on a page. Coordinates are in
// page points with a top-left origin (the PDF-native bottom-up y-axis is
// flipped so runs line up with rendered viewports).
type TextRun struct {
	Text     string  `json:"text"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	FontSize float64 `json:"font_size"`
}

// PageSize returns the page dimensions in points.
func (p *PDF) PageSize(pageNum int) (width, height float64) {
	if p.reader == nil || pageNum < 1 || pageNum > p.pageCount {
		return defaultPageWidth, defaultPageHeight
	}
	page := p.reader.Page(pageNum)
	if page.V.IsNull() {
		return defaultPageWidth, defaultPageHeight
	}
	return mediaBoxSize(page)
}

// TextRuns extracts the native text runs of a page. An empty slice means the
// page description carries no extractable text (or the text reader is
// unavailable for this file) and the caller should fall back to OCR.
func (p *PDF) TextRuns(pageNum int) ([]TextRun, error) {
	if pageNum < 1 || pageNum > p.pageCount {
		return nil, fmt.Errorf("page %d out of range [1, %d]", pageNum, p.pageCount)
	}
	if p.reader == nil {
		return nil, nil
	}

	page := p.reader.Page(pageNum)
	if page.V.IsNull() {
		return nil, nil
	}

	_, pageHeight := mediaBoxSize(page)
	content := page.Content()
	return coalesceRuns(content.Text, pageHeight), nil
}

// coalesceRuns merges adjacent glyph fragments into word-level runs and
// flips the y-axis to a top-left origin. Fragments on the same baseline with
// a gap under half the font size belong to the same run.
func coalesceRuns(texts []dpdf.Text, pageHeight float64) []TextRun {
	var runs []TextRun
	var cur *TextRun
	var curEndX float64

	flush := func() {
		if cur != nil && strings.TrimSpace(cur.Text) != "" {
			runs = append(runs, *cur)
		}
		cur = nil
	}

	for _, t := range texts {
		if t.S == "" {
			continue
		}
		height := t.FontSize
		if height <= 0 {
			height = 12
		}
		top := pageHeight - t.Y - height

		sameLine := cur != nil && math.Abs((pageHeight-cur.Y-cur.Height)-t.Y) < height/2
		adjacent := sameLine && t.X-curEndX <= height/2 && t.X >= curEndX-height/2

		if adjacent {
			cur.Text += t.S
			cur.Width = t.X + t.W - cur.X
			curEndX = t.X + t.W
			continue
		}

		flush()
		cur = &TextRun{
			Text:     t.S,
			X:        t.X,
			Y:        top,
			Width:    t.W,
			Height:   height,
			FontSize: t.FontSize,
		}
		curEndX = t.X + t.W
	}
	flush()

	return runs
}

// mediaBoxSize reads the page MediaBox, falling back to letter size when it
// is absent or degenerate.
func mediaBoxSize(page dpdf.Page) (float64, float64) {
	box := page.V.Key("MediaBox")
	if box.Len() != 4 {
		return defaultPageWidth, defaultPageHeight
	}
	x0 := box.Index(0).Float64()
	y0 := box.Index(1).Float64()
	x1 := box.Index(2).Float64()
	y1 := box.Index(3).Float64()
	w := x1 - x0
	h := y1 - y0
	if w <= 0 || h <= 0 {
		return defaultPageWidth, defaultPageHeight
	}
	return w, h
}
