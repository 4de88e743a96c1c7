package pdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/testutil"
)

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open("book-1", "/nonexistent/book.pdf")
	require.Error(t, err)
	assert.True(t, document.IsDecodeError(err))
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7 garbage"), 0o600))

	_, err := Open("book-1", path)
	require.Error(t, err)
	assert.True(t, document.IsDecodeError(err))
}

func TestOpen_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.pdf")
	testutil.WritePDF(t, path, 3)

	doc, err := Open("book-1", path)
	require.NoError(t, err)
	assert.Equal(t, "book-1", doc.ID())
	assert.Equal(t, document.KindPDF, doc.Kind())
	assert.Equal(t, 3, doc.PageCount())
}

func TestStep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.pdf")
	testutil.WritePDF(t, path, 3)

	doc, err := Open("book-1", path)
	require.NoError(t, err)

	pos, ok := doc.Step(doc.First(), true)
	require.True(t, ok)
	assert.Equal(t, 2, pos.Page())

	pos, ok = doc.Step(pos, true)
	require.True(t, ok)
	assert.Equal(t, 3, pos.Page())

	back, ok := doc.Step(pos, false)
	require.True(t, ok)
	assert.Equal(t, 2, back.Page())

	// Forward off the last page stays put.
	end, ok := doc.Step(document.PDFPage(doc.PageCount()), true)
	assert.False(t, ok)
	assert.Equal(t, doc.PageCount(), end.Page())

	start, ok := doc.Step(doc.First(), false)
	assert.False(t, ok)
	assert.Equal(t, 1, start.Page())
}

func TestOrdinalAndAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.pdf")
	testutil.WritePDF(t, path, 5)

	doc, err := Open("book-1", path)
	require.NoError(t, err)

	assert.Equal(t, 4, doc.Ordinal(document.PDFPage(4)))
	assert.Equal(t, 4, doc.At(4).Page())
	assert.Equal(t, 1, doc.At(0).Page())
	assert.Equal(t, 5, doc.At(99).Page())
}
