// Package render turns document pages into bitmaps. PDF pages draw at an
// effective scale derived from the viewport and the requested zoom; EPUB
// pages draw the current layout's lines onto a viewport-sized surface.
package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/leafmark/reader/internal/config"
	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/epub"
	"github.com/leafmark/reader/internal/pdf"
)

// Page is one rendered surface.
type Page struct {
	Image    image.Image
	Position document.Position
	// Scale is the effective render scale: page points to pixels for PDF,
	// font scale fraction for EPUB.
	Scale float64
}

// Rasterizer renders pages for both document variants.
type Rasterizer struct {
	cfg config.RenderConfig
}

// NewRasterizer returns a rasterizer for the given render configuration.
func NewRasterizer(cfg config.RenderConfig) *Rasterizer {
	return &Rasterizer{cfg: cfg}
}

// EffectiveScale computes the PDF render scale for a page of the given width:
// the larger of the fit-to-viewport-width scale and the clamped user zoom.
func (r *Rasterizer) EffectiveScale(pageWidth, zoom float64) float64 {
	fit := float64(r.cfg.ViewportWidth) / pageWidth
	return math.Max(fit, r.cfg.ClampZoom(zoom))
}

// RenderPDF rasterizes one PDF page at the given zoom. Scanned pages resize
// their embedded bitmap; text pages draw their runs onto a blank surface.
func (r *Rasterizer) RenderPDF(ctx context.Context, doc *pdf.PDF, ordinal int, zoom float64) (*Page, error) {
	if ordinal < 1 || ordinal > doc.PageCount() {
		return nil, fmt.Errorf("page %d out of range [1,%d]", ordinal, doc.PageCount())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pageW, pageH := doc.PageSize(ordinal)
	scale := r.EffectiveScale(pageW, zoom)
	outW := int(math.Round(pageW * scale))
	outH := int(math.Round(pageH * scale))

	base, err := doc.PageImage(ordinal)
	if err == nil && base != nil {
		return &Page{
			Image:    imaging.Resize(base, outW, outH, imaging.Lanczos),
			Position: doc.At(ordinal),
			Scale:    scale,
		}, nil
	}

	surface := blankSurface(outW, outH)
	runs, err := doc.TextRuns(ordinal)
	if err != nil {
		return nil, fmt.Errorf("rendering page %d: %w", ordinal, err)
	}
	face := basicfont.Face7x13
	for _, run := range runs {
		drawString(surface, run.Text, face,
			int(math.Round(run.X*scale)),
			int(math.Round(run.Y*scale))+face.Ascent)
	}
	return &Page{Image: surface, Position: doc.At(ordinal), Scale: scale}, nil
}

// RenderEPUB draws one laid-out EPUB page onto a viewport-sized surface.
// Glyphs draw at the same scaled cell size the layout wrapped lines for, so
// drawn text fills exactly the width pagination assumed.
func (r *Rasterizer) RenderEPUB(ctx context.Context, doc *epub.EPUB, ordinal int) (*Page, error) {
	if ordinal < 1 || ordinal > doc.PageCount() {
		return nil, fmt.Errorf("page %d out of range [1,%d]", ordinal, doc.PageCount())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	surface := blankSurface(r.cfg.ViewportWidth, r.cfg.ViewportHeight)
	face := basicfont.Face7x13
	fontScale := doc.FontScale()
	glyphWidth := face.Advance * fontScale / 100
	if glyphWidth < 1 {
		glyphWidth = 1
	}
	glyphHeight := face.Height * fontScale / 100
	if glyphHeight < 1 {
		glyphHeight = 1
	}
	lineHeight := face.Height*fontScale/100 + 4
	const margin = 24

	for i, text := range doc.PageLines(ordinal) {
		if text == "" {
			continue
		}
		y := margin + i*lineHeight
		if fontScale == 100 {
			drawString(surface, text, face, margin, y+face.Ascent)
			continue
		}
		// The face only exists at one size, so scaled text renders via a
		// base-size strip resized to the layout's glyph cell dimensions.
		cols := utf8.RuneCountInString(text)
		strip := blankSurface(cols*face.Advance, face.Height)
		drawString(strip, text, face, 0, face.Ascent)
		scaled := imaging.Resize(strip, cols*glyphWidth, glyphHeight, imaging.Lanczos)
		draw.Draw(surface,
			image.Rect(margin, y, margin+cols*glyphWidth, y+glyphHeight),
			scaled, image.Point{}, draw.Over)
	}
	return &Page{
		Image:    surface,
		Position: doc.At(ordinal),
		Scale:    float64(fontScale) / 100,
	}, nil
}

func blankSurface(w, h int) *image.RGBA {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

func drawString(dst draw.Image, text string, face font.Face, x, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
