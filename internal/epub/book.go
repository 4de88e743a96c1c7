package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/leafmark/reader/internal/document"
)

// Chapter is one spine item flattened to plain-text paragraphs.
type Chapter struct {
	Path       string
	Paragraphs []string
}

// EPUB is the reflowable document variant. Pagination is a function of the
// viewport and font scale; positions are content anchors that survive
// relayout.
type EPUB struct {
	id   string
	path string
	meta Metadata

	chapters []Chapter

	mu        sync.RWMutex
	fontScale int // percent
	layout    *layout
}

// Open parses the EPUB archive and lays it out for the given viewport at
// 100% font scale. Malformed archives yield a *document.DecodeError.
func Open(id, path string, viewportWidth, viewportHeight int) (*EPUB, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, &document.DecodeError{Path: path, Err: err}
	}
	defer func() { _ = archive.Close() }()

	opf, err := parseOPF(&archive.Reader)
	if err != nil {
		return nil, &document.DecodeError{Path: path, Err: err}
	}

	chapters := make([]Chapter, 0, len(opf.Spine))
	for _, item := range opf.Spine {
		chapterFile, ok := opf.chapterPath(item)
		if !ok {
			continue // spine entry without manifest item
		}
		raw, err := readArchiveFile(&archive.Reader, chapterFile)
		if err != nil {
			continue
		}
		paras, err := flattenXHTML(raw)
		if err != nil || len(paras) == 0 {
			continue
		}
		chapters = append(chapters, Chapter{Path: chapterFile, Paragraphs: paras})
	}
	if len(chapters) == 0 {
		return nil, &document.DecodeError{Path: path, Err: fmt.Errorf("no readable chapters")}
	}

	e := &EPUB{
		id:        id,
		path:      path,
		meta:      opf.Metadata,
		chapters:  chapters,
		fontScale: 100,
	}
	e.layout = paginate(chapters, viewportWidth, viewportHeight, e.fontScale)
	return e, nil
}

// ID returns the document id this variant was opened for.
func (e *EPUB) ID() string { return e.id }

// Metadata returns the package metadata.
func (e *EPUB) Metadata() Metadata { return e.meta }

// Kind returns document.KindEPUB.
func (e *EPUB) Kind() document.Kind { return document.KindEPUB }

// FontScale returns the current font scale in percent.
func (e *EPUB) FontScale() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fontScale
}

// SetFontScale relayouts the book at the given font scale (percent).
// Callers clamp the value to the configured bounds; existing anchors stay
// valid because they address content, not pages.
func (e *EPUB) SetFontScale(scale, viewportWidth, viewportHeight int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if scale == e.fontScale {
		return
	}
	e.fontScale = scale
	e.layout = paginate(e.chapters, viewportWidth, viewportHeight, scale)
}

// PageCount returns the page count under the current layout.
func (e *EPUB) PageCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.layout.pages)
}

// First returns the position of the first page.
func (e *EPUB) First() document.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return document.EPUBAnchor(e.layout.pages[0].anchor.Token())
}

// Step moves one page forward or backward from the given position,
// reporting false at the edges. Unparseable anchors restart at page one.
func (e *EPUB) Step(from document.Position, forward bool) (document.Position, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	idx := e.pageIndexLocked(from)
	if forward {
		if idx >= len(e.layout.pages)-1 {
			return from, false
		}
		idx++
	} else {
		if idx <= 0 {
			return from, false
		}
		idx--
	}
	return document.EPUBAnchor(e.layout.pages[idx].anchor.Token()), true
}

// Ordinal maps a position to its 1-based page ordinal under the current
// layout.
func (e *EPUB) Ordinal(pos document.Position) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pageIndexLocked(pos) + 1
}

// At maps a 1-based page ordinal to the page's starting position.
func (e *EPUB) At(ordinal int) document.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if ordinal < 1 {
		ordinal = 1
	}
	if ordinal > len(e.layout.pages) {
		ordinal = len(e.layout.pages)
	}
	return document.EPUBAnchor(e.layout.pages[ordinal-1].anchor.Token())
}

// PageLines returns the laid-out lines of a page for rasterization.
func (e *EPUB) PageLines(ordinal int) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if ordinal < 1 || ordinal > len(e.layout.pages) {
		return nil
	}
	page := e.layout.pages[ordinal-1]
	lines := make([]string, len(page.lines))
	for i, l := range page.lines {
		lines[i] = l.text
	}
	return lines
}

// FlatText returns the text of a page under the current layout.
func (e *EPUB) FlatText(ordinal int) string {
	return strings.Join(e.PageLines(ordinal), "\n")
}

// pageIndexLocked finds the 0-based page holding the anchor: the last page
// whose starting anchor is not after it.
func (e *EPUB) pageIndexLocked(pos document.Position) int {
	anchor, err := ParseAnchor(pos.Anchor())
	if err != nil {
		return 0
	}
	idx := 0
	for i, page := range e.layout.pages {
		if page.anchor.Less(anchor) || page.anchor == anchor {
			idx = i
		} else {
			break
		}
	}
	return idx
}

// flattenXHTML reduces a chapter document to plain-text paragraphs. Block
// elements delimit paragraphs; scripts, styles, and head content are
// dropped.
func flattenXHTML(raw []byte) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	var paras []string
	var cur strings.Builder

	flush := func() {
		text := strings.Join(strings.Fields(cur.String()), " ")
		if text != "" {
			paras = append(paras, text)
		}
		cur.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			cur.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Head:
				return
			}
		}
		block := n.Type == html.ElementNode && isBlock(n.DataAtom)
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	walk(doc)
	flush()

	return paras, nil
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Li, atom.Blockquote, atom.Pre, atom.Td, atom.Br, atom.Section, atom.Article:
		return true
	}
	return false
}
