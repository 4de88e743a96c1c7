package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common test image sizes.
	SmallSize  = ImageSize{320, 240}
	MediumSize = ImageSize{640, 480}
	PageSize   = ImageSize{960, 1280}
)

// CreateImage returns a uniformly filled image.
func CreateImage(width, height int, background color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)
	return img
}

// CreateTextImage returns a white image with the given text drawn centered,
// simulating a scanned page for OCR tests.
func CreateTextImage(text string, size ImageSize) *image.RGBA {
	img := CreateImage(size.Width, size.Height, color.White)

	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{color.Black},
		Face: face,
	}

	textWidth := font.MeasureString(face, text).Ceil()
	textHeight := face.Metrics().Height.Ceil()
	x := (size.Width - textWidth) / 2
	y := (size.Height + textHeight) / 2
	drawer.Dot = fixed.P(x, y)
	drawer.DrawString(text)

	return img
}

// SaveImage writes an image to path as PNG, creating parent directories.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	file, err := os.Create(path) //nolint:gosec // G304: controlled test path
	require.NoError(t, err)
	defer func() { _ = file.Close() }()

	require.NoError(t, png.Encode(file, img))
}
