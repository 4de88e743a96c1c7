package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine recognizes text with a local Tesseract installation via
// gosseract. A single client is reused; recognition is serialized because
// the underlying API is not safe for concurrent use.
type TesseractEngine struct {
	mu        sync.Mutex
	client    *gosseract.Client
	languages []string
}

// NewTesseractEngine creates a Tesseract-backed engine for the given
// language codes (e.g. "eng", "deu"). Engine load failures surface as
// ErrUnavailable so callers can degrade instead of aborting the session.
func NewTesseractEngine(languages []string) (*TesseractEngine, error) {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(languages...); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: set language %v: %v", ErrUnavailable, languages, err)
	}

	return &TesseractEngine{client: client, languages: languages}, nil
}

// Languages returns the configured language codes.
func (e *TesseractEngine) Languages() []string { return e.languages }

// Recognize runs word-level recognition on the image. The context is
// checked before the (non-interruptible) recognition call; an in-flight
// recognition always runs to completion.
func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page image: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: set image: %v", ErrUnavailable, err)
	}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("%w: recognize: %v", ErrUnavailable, err)
	}

	result := &Result{Words: make([]Word, 0, len(boxes))}
	var flat []string
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		result.Words = append(result.Words, Word{
			Text:       word,
			Box:        b.Box,
			Confidence: b.Confidence,
		})
		flat = append(flat, word)
	}
	result.FullText = strings.Join(flat, " ")

	return result, nil
}

// Close releases the Tesseract client.
func (e *TesseractEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}
