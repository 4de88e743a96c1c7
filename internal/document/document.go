package document

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies the structural family of a document.
type Kind string

const (
	// KindEPUB is reflowable packaged XHTML content.
	KindEPUB Kind = "epub"
	// KindPDF is fixed-layout paginated content.
	KindPDF Kind = "pdf"
)

// Valid reports whether the kind is one of the supported document kinds.
func (k Kind) Valid() bool {
	return k == KindEPUB || k == KindPDF
}

// Document is an immutable handle to an opened document. The byte source is
// owned by the surrounding app's file store; the reader only borrows a local
// path and the kind tag for the duration of a session.
type Document struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Path string `json:"path"`
}

// Handle is the resolved location of a document's bytes.
type Handle struct {
	URL  string `json:"url"`
	Kind Kind   `json:"kind"`
}

// ErrNotFound is returned by a Source when no document exists for the
// requested (user, book) pair.
var ErrNotFound = errors.New("document not found")

// Source resolves a (user, book) pair to a document location. The concrete
// resolution chain (cloud storage, local blob store, explicit field) belongs
// to the surrounding app.
type Source interface {
	Resolve(ctx context.Context, userID, bookID string) (Handle, error)
}

// DecodeError indicates the document bytes could not be parsed at all.
// It is terminal for the reading session; the caller must reload.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode document %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is (or wraps) a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
