package ocrcache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmark/reader/internal/textlayer"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "cache", "ocr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func samplePageText() *textlayer.PageText {
	return &textlayer.PageText{
		Source: textlayer.SourceOCR,
		Words: []textlayer.Word{
			{Text: "hello", Box: textlayer.Box{X: 0.1, Y: 0.2, W: 0.3, H: 0.05}},
			{Text: "world", Box: textlayer.Box{X: 0.45, Y: 0.2, W: 0.3, H: 0.05}},
		},
		FlatText: "hello world",
	}
}

func TestStore_MissReturnsNil(t *testing.T) {
	store := newTestStore(t)

	text, err := store.Get(context.Background(), "book-1", 1)
	require.NoError(t, err)
	assert.Nil(t, text)
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "book-1", 3, samplePageText()))

	got, err := store.Get(ctx, "book-1", 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, samplePageText(), got)

	// Keys are per page and per book.
	miss, err := store.Get(ctx, "book-1", 4)
	require.NoError(t, err)
	assert.Nil(t, miss)
	miss, err = store.Get(ctx, "book-2", 3)
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestStore_PutIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "book-1", 1, samplePageText()))
	require.NoError(t, store.Put(ctx, "book-1", 1, samplePageText()))

	n, err := store.Count(ctx, "book-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ocr.db")
	ctx := context.Background()

	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "book-1", 7, samplePageText()))
	require.NoError(t, store.Close())

	reopened, err := NewStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Get(ctx, "book-1", 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello world", got.FlatText)
}
