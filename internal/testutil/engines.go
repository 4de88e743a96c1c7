package testutil

import (
	"context"
	"image"
	"strings"
	"sync"

	"github.com/leafmark/reader/internal/ocr"
)

// FakeOCR is an ocr.Engine returning scripted results and counting calls,
// so tests can assert cache behavior without a Tesseract install.
type FakeOCR struct {
	mu sync.Mutex

	// Text is the recognized text for every image; one word per field.
	Text string
	// Err, when set, is returned from every Recognize call.
	Err error

	calls int
}

// NewFakeOCR returns a fake engine recognizing the given text.
func NewFakeOCR(text string) *FakeOCR {
	return &FakeOCR{Text: text}
}

// Recognize fabricates one word box per whitespace-separated field, laid
// out left to right across the top of the image.
func (f *FakeOCR) Recognize(_ context.Context, img image.Image) (*ocr.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}

	fields := strings.Fields(f.Text)
	result := &ocr.Result{FullText: strings.Join(fields, " ")}

	b := img.Bounds()
	if len(fields) == 0 {
		return result, nil
	}
	wordWidth := b.Dx() / (len(fields) + 1)
	for i, field := range fields {
		x := b.Min.X + i*wordWidth
		result.Words = append(result.Words, ocr.Word{
			Text:       field,
			Box:        image.Rect(x, b.Min.Y, x+wordWidth, b.Min.Y+b.Dy()/10),
			Confidence: 0.95,
		})
	}
	return result, nil
}

// Close is a no-op.
func (f *FakeOCR) Close() error { return nil }

// Calls returns how many times Recognize ran.
func (f *FakeOCR) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
