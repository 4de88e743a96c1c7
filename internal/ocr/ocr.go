// Package ocr defines the recognition boundary of the reader. The reader
// only needs word-level text with pixel bounding boxes for a rasterized
// page; the concrete engine is pluggable.
package ocr

import (
	"context"
	"errors"
	"image"
)

// ErrUnavailable indicates the recognition engine failed to load or run.
// The reader degrades gracefully: the page stays readable but carries no
// selectable or searchable text.
var ErrUnavailable = errors.New("ocr engine unavailable")

// Word is one recognized word with its bounding box in pixels relative to
// the recognized bitmap.
type Word struct {
	Text       string          `json:"text"`
	Box        image.Rectangle `json:"box"`
	Confidence float64         `json:"confidence"`
}

// Result holds the recognition output for one bitmap.
type Result struct {
	Words    []Word `json:"words"`
	FullText string `json:"full_text"`
}

// Engine recognizes text in a rasterized page image.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) (*Result, error)
	Close() error
}
