package annotate

import (
	"image"
	"math"

	"github.com/leafmark/reader/internal/textlayer"
)

// CaptureSelection converts screen-space selection rectangles into
// page-fraction rects relative to the rendered surface. Rects are clipped to
// the surface; zero-area results are dropped. Returns nil when nothing of
// the selection lies on the page, which callers treat as "do not create an
// annotation".
func CaptureSelection(surface image.Rectangle, screenRects []image.Rectangle) []textlayer.Box {
	w := float64(surface.Dx())
	h := float64(surface.Dy())
	if w <= 0 || h <= 0 {
		return nil
	}

	var boxes []textlayer.Box
	for _, r := range screenRects {
		clipped := r.Intersect(surface)
		if clipped.Empty() {
			continue
		}
		boxes = append(boxes, textlayer.Box{
			X: float64(clipped.Min.X-surface.Min.X) / w,
			Y: float64(clipped.Min.Y-surface.Min.Y) / h,
			W: float64(clipped.Dx()) / w,
			H: float64(clipped.Dy()) / h,
		})
	}
	return boxes
}

// Denormalize maps a page-fraction rect back to pixels on a surface of the
// given dimensions. This is the redraw half of the round trip: a highlight
// captured at one zoom renders at the geometrically corresponding spot at
// any other.
func Denormalize(box textlayer.Box, width, height int) image.Rectangle {
	x0 := int(math.Round(box.X * float64(width)))
	y0 := int(math.Round(box.Y * float64(height)))
	x1 := int(math.Round((box.X + box.W) * float64(width)))
	y1 := int(math.Round((box.Y + box.H) * float64(height)))
	return image.Rect(x0, y0, x1, y1)
}

// SelectionText assembles the text covered by a selection from the page's
// word boxes: words whose center falls inside any selection rect, in
// reading order.
func SelectionText(page *textlayer.PageText, rects []textlayer.Box) string {
	if page == nil || len(rects) == 0 {
		return ""
	}
	text := ""
	for _, word := range page.Words {
		cx := word.Box.X + word.Box.W/2
		cy := word.Box.Y + word.Box.H/2
		for _, r := range rects {
			if cx >= r.X && cx <= r.X+r.W && cy >= r.Y && cy <= r.Y+r.H {
				if text != "" {
					text += " "
				}
				text += word.Text
				break
			}
		}
	}
	return text
}
