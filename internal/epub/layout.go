package epub

import (
	"strings"
	"unicode/utf8"
)

// Base glyph metrics of the fixed 7x13 face the renderer draws with.
// Scaling the font scales these linearly.
const (
	baseGlyphWidth  = 7
	baseLineHeight  = 13
	pageMargin      = 24
	lineSpacing     = 4
	paragraphBreaks = 1 // blank lines between paragraphs
)

type line struct {
	text   string
	anchor Anchor
}

type page struct {
	anchor Anchor
	lines  []line
}

type layout struct {
	pages []page
}

// paginate word-wraps every chapter paragraph into viewport-sized pages at
// the given font scale (percent). Every line carries the anchor of its first
// rune, and a page's anchor is its first line's anchor.
func paginate(chapters []Chapter, viewportWidth, viewportHeight, fontScale int) *layout {
	if fontScale <= 0 {
		fontScale = 100
	}
	glyphWidth := baseGlyphWidth * fontScale / 100
	if glyphWidth < 1 {
		glyphWidth = 1
	}
	lineHeight := baseLineHeight*fontScale/100 + lineSpacing
	if lineHeight < 1 {
		lineHeight = 1
	}

	maxCols := (viewportWidth - 2*pageMargin) / glyphWidth
	if maxCols < 8 {
		maxCols = 8
	}
	maxRows := (viewportHeight - 2*pageMargin) / lineHeight
	if maxRows < 1 {
		maxRows = 1
	}

	l := &layout{}
	var cur page

	flushPage := func() {
		if len(cur.lines) == 0 {
			return
		}
		cur.anchor = cur.lines[0].anchor
		l.pages = append(l.pages, cur)
		cur = page{}
	}
	addLine := func(ln line) {
		if len(cur.lines) >= maxRows {
			flushPage()
		}
		cur.lines = append(cur.lines, ln)
	}

	for si, ch := range chapters {
		for pi, para := range ch.Paragraphs {
			for _, ln := range wrapParagraph(para, si, pi, maxCols) {
				addLine(ln)
			}
			// Blank separator between paragraphs, never at a page top.
			if len(cur.lines) > 0 && len(cur.lines) < maxRows {
				for i := 0; i < paragraphBreaks; i++ {
					cur.lines = append(cur.lines, line{anchor: Anchor{Spine: si, Para: pi, Offset: utf8.RuneCountInString(para)}})
				}
			}
		}
	}
	flushPage()

	if len(l.pages) == 0 {
		l.pages = []page{{anchor: Anchor{}}}
	}
	return l
}

// wrapParagraph breaks a paragraph into lines of at most maxCols runes,
// splitting on spaces. Words longer than a line are broken mid-word so every
// rune remains addressable.
func wrapParagraph(para string, spine, paraIdx, maxCols int) []line {
	var lines []line
	words := strings.Fields(para)
	if len(words) == 0 {
		return nil
	}

	// Rune offset of each word within the normalized paragraph text, where
	// words are joined by single spaces. Anchors address this normalized form.
	offset := 0
	var b strings.Builder
	lineStart := 0

	flush := func() {
		if b.Len() == 0 {
			return
		}
		lines = append(lines, line{
			text:   b.String(),
			anchor: Anchor{Spine: spine, Para: paraIdx, Offset: lineStart},
		})
		b.Reset()
	}

	for wi, word := range words {
		wlen := utf8.RuneCountInString(word)
		cur := utf8.RuneCountInString(b.String())

		if cur > 0 && cur+1+wlen > maxCols {
			flush()
			cur = 0
		}
		if cur == 0 {
			lineStart = offset
		} else {
			b.WriteByte(' ')
		}

		// Hard-break oversized words.
		for wlen > maxCols {
			runes := []rune(word)
			b.WriteString(string(runes[:maxCols]))
			flush()
			word = string(runes[maxCols:])
			wlen -= maxCols
			offset += maxCols
			lineStart = offset
		}
		b.WriteString(word)
		offset += wlen
		if wi < len(words)-1 {
			offset++ // joining space
		}
	}
	flush()
	return lines
}
