package ocr

import (
	"context"
	"image"
)

// NoopEngine is used when OCR is disabled. Every recognition attempt
// reports ErrUnavailable, which the text layer treats as "no text".
type NoopEngine struct{}

// NewNoopEngine returns the disabled engine.
func NewNoopEngine() *NoopEngine { return &NoopEngine{} }

// Recognize always fails with ErrUnavailable.
func (*NoopEngine) Recognize(context.Context, image.Image) (*Result, error) {
	return nil, ErrUnavailable
}

// Close is a no-op.
func (*NoopEngine) Close() error { return nil }
