package epub

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/testutil"
)

const (
	testViewportW = 640
	testViewportH = 480
)

func longChapter(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog near the riverbank. ")
	}
	return b.String()
}

func openTestBook(t *testing.T, chapters ...string) *EPUB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.epub")
	testutil.WriteEPUB(t, path, chapters)
	book, err := Open("book-1", path, testViewportW, testViewportH)
	require.NoError(t, err)
	return book
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open("x", filepath.Join(t.TempDir(), "nope.epub"), testViewportW, testViewportH)
	require.Error(t, err)
	assert.True(t, document.IsDecodeError(err))
}

func TestOpen_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.epub")
	require.NoError(t, os.WriteFile(path, []byte("this is not an epub"), 0o600))

	_, err := Open("x", path, testViewportW, testViewportH)
	require.Error(t, err)
	assert.True(t, document.IsDecodeError(err))
}

func TestOpen_ParsesMetadataAndChapters(t *testing.T) {
	book := openTestBook(t, "First chapter text.", "Second chapter text.")

	assert.Equal(t, document.KindEPUB, book.Kind())
	assert.Equal(t, "Test Book", book.Metadata().Title)
	assert.Len(t, book.chapters, 2)
	assert.GreaterOrEqual(t, book.PageCount(), 1)
}

func TestNavigation_StepAndOrdinal(t *testing.T) {
	book := openTestBook(t, longChapter(200))
	require.Greater(t, book.PageCount(), 2, "fixture must span several pages")

	first := book.First()
	assert.Equal(t, 1, book.Ordinal(first))

	second, ok := book.Step(first, true)
	require.True(t, ok)
	assert.Equal(t, 2, book.Ordinal(second))

	back, ok := book.Step(second, false)
	require.True(t, ok)
	assert.Equal(t, first, back)

	// Edges stay put.
	_, ok = book.Step(first, false)
	assert.False(t, ok)
	last := book.At(book.PageCount())
	_, ok = book.Step(last, true)
	assert.False(t, ok)
}

func TestAt_ClampsOrdinals(t *testing.T) {
	book := openTestBook(t, longChapter(200))

	assert.Equal(t, book.First(), book.At(0))
	assert.Equal(t, book.At(book.PageCount()), book.At(book.PageCount()+5))
}

func TestOrdinal_MidPageAnchorMapsToContainingPage(t *testing.T) {
	book := openTestBook(t, longChapter(200))
	require.Greater(t, book.PageCount(), 2)

	start, err := ParseAnchor(book.At(2).Anchor())
	require.NoError(t, err)

	// An anchor a few runes past the page start still lands on that page.
	mid := Anchor{Spine: start.Spine, Para: start.Para, Offset: start.Offset + 3}
	assert.Equal(t, 2, book.Ordinal(document.EPUBAnchor(mid.Token())))
}

func TestSetFontScale_RelayoutsAndKeepsAnchorsValid(t *testing.T) {
	book := openTestBook(t, longChapter(300))
	before := book.PageCount()

	pos := book.At(3)

	book.SetFontScale(200, testViewportW, testViewportH)
	assert.Equal(t, 200, book.FontScale())
	assert.Greater(t, book.PageCount(), before, "larger text means more pages")

	// The anchor still resolves; it names content, not a page.
	ord := book.Ordinal(pos)
	assert.GreaterOrEqual(t, ord, 1)
	assert.LessOrEqual(t, ord, book.PageCount())
	assert.Greater(t, ord, 3, "content shifts to a later page at a larger scale")

	book.SetFontScale(60, testViewportW, testViewportH)
	assert.Less(t, book.PageCount(), before, "smaller text means fewer pages")
}

func TestFlatText_CoversAllContentExactlyOnce(t *testing.T) {
	book := openTestBook(t, "Alpha beta gamma.", "Delta epsilon zeta.")

	var all []string
	for i := 1; i <= book.PageCount(); i++ {
		all = append(all, book.FlatText(i))
	}
	joined := strings.Join(strings.Fields(strings.Join(all, " ")), " ")
	assert.Equal(t, "Alpha beta gamma. Delta epsilon zeta.", joined)
}

func TestPageLines_OutOfRange(t *testing.T) {
	book := openTestBook(t, "Some text.")
	assert.Nil(t, book.PageLines(0))
	assert.Nil(t, book.PageLines(book.PageCount()+1))
}

func TestWrapParagraph(t *testing.T) {
	lines := wrapParagraph("one two three four five", 0, 0, 9)
	require.Len(t, lines, 3)
	assert.Equal(t, "one two", lines[0].text)
	assert.Equal(t, "three", lines[1].text)
	assert.Equal(t, "four five", lines[2].text)
	assert.Equal(t, Anchor{Spine: 0, Para: 0, Offset: 0}, lines[0].anchor)
	assert.Equal(t, Anchor{Spine: 0, Para: 0, Offset: 8}, lines[1].anchor)
	assert.Equal(t, Anchor{Spine: 0, Para: 0, Offset: 14}, lines[2].anchor)
}

func TestWrapParagraph_BreaksOversizedWords(t *testing.T) {
	lines := wrapParagraph("abcdefghij", 1, 2, 4)
	require.Len(t, lines, 3)
	assert.Equal(t, "abcd", lines[0].text)
	assert.Equal(t, "efgh", lines[1].text)
	assert.Equal(t, "ij", lines[2].text)
	assert.Equal(t, 4, lines[1].anchor.Offset)
	assert.Equal(t, 8, lines[2].anchor.Offset)
}

func TestAnchor_TokenRoundTripAndOrdering(t *testing.T) {
	a := Anchor{Spine: 2, Para: 7, Offset: 31}
	parsed, err := ParseAnchor(a.Token())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	assert.True(t, Anchor{Spine: 1}.Less(Anchor{Spine: 2}))
	assert.True(t, Anchor{Spine: 1, Para: 1}.Less(Anchor{Spine: 1, Para: 2}))
	assert.True(t, Anchor{Spine: 1, Para: 1, Offset: 5}.Less(Anchor{Spine: 1, Para: 1, Offset: 6}))
	assert.False(t, a.Less(a))

	for _, bad := range []string{"", "1/2", "1/2/3/4", "a/2/3", "1/-2/3"} {
		_, err := ParseAnchor(bad)
		assert.Error(t, err, bad)
	}
}
