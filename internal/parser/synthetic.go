package parser

import (
	"strings"

	"github.com/dgallion1/docsense/internal/doctree"
)

// Formats with explicit heading markup have no font metrics, so headings
// are laid out with sizes that rank the same way a typeset PDF would.
const (
	titleFontSize  = 30.0
	bodyFontSize   = 10.0
	lineAdvance    = 14.0
	linesPerPage   = 50
	leftMargin     = 72.0
	topMargin      = 72.0
	maxHeadingRank = 6
)

// headingFontSize maps a markup heading level (1-6) to a font size.
func headingFontSize(level int) float64 {
	if level < 1 {
		return bodyFontSize
	}
	if level > maxHeadingRank {
		level = maxHeadingRank
	}
	return 26 - float64(level-1)*3
}

// layoutWriter places text lines onto synthetic pages.
type layoutWriter struct {
	src   *doctree.Source
	line  int
	pages [][]doctree.Span
}

func newLayoutWriter(name string) *layoutWriter {
	return &layoutWriter{src: &doctree.Source{Name: name}}
}

// heading writes a heading line at the size for level.
func (w *layoutWriter) heading(level int, text string) {
	w.write(text, headingFontSize(level))
}

// title writes a line that outranks every heading level.
func (w *layoutWriter) title(text string) {
	w.write(text, titleFontSize)
}

// body writes a paragraph as one body line.
func (w *layoutWriter) body(text string) {
	w.write(text, bodyFontSize)
}

func (w *layoutWriter) write(text string, size float64) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return
	}
	page := w.line/linesPerPage + 1
	for len(w.pages) < page {
		w.pages = append(w.pages, nil)
	}
	w.pages[page-1] = append(w.pages[page-1], doctree.Span{
		Text:     text,
		FontSize: size,
		X:        leftMargin,
		Y:        topMargin + float64(w.line%linesPerPage)*lineAdvance,
		Page:     page,
	})
	w.line++
}

func (w *layoutWriter) source() *doctree.Source {
	w.src.Pages = w.pages
	return w.src
}
