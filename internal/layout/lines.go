// Package layout groups positioned spans into reading lines.
package layout

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/docsense/internal/doctree"
)

// RowToleranceRatio is the fraction of a page's median font size within
// which two spans are considered to sit on the same line.
const RowToleranceRatio = 0.25

// minLetterSpaced is the number of single-character spans from which a
// line is treated as letter-spaced and joined without separators.
const minLetterSpaced = 3

// GroupDocument groups every page of src and returns the lines in reading
// order (page ascending, then top to bottom).
func GroupDocument(src *doctree.Source) []doctree.Line {
	var lines []doctree.Line
	for _, page := range src.Pages {
		lines = append(lines, GroupLines(page)...)
	}
	return lines
}

// GroupLines clusters the spans of one page into lines by vertical
// proximity. Spans without any letter are ignored. A page with no spans
// yields no lines.
func GroupLines(spans []doctree.Span) []doctree.Line {
	spans = withLetters(spans)
	if len(spans) == 0 {
		return nil
	}

	tol := RowToleranceRatio * medianFontSize(spans)

	type bucket struct {
		y     float64
		order int
		spans []doctree.Span
	}
	var buckets []*bucket
	for _, s := range spans {
		var found *bucket
		for _, b := range buckets {
			if math.Abs(b.y-s.Y) < tol {
				found = b
				break
			}
		}
		if found == nil {
			found = &bucket{y: s.Y, order: len(buckets)}
			buckets = append(buckets, found)
		}
		found.spans = append(found.spans, s)
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].y < buckets[j].y
	})

	lines := make([]doctree.Line, 0, len(buckets))
	for _, b := range buckets {
		sort.SliceStable(b.spans, func(i, j int) bool {
			return b.spans[i].X < b.spans[j].X
		})
		text := joinSpans(b.spans)
		if !hasLetter(text) {
			continue
		}
		lines = append(lines, doctree.Line{
			Text:     text,
			FontSize: dominantSize(b.spans),
			Page:     b.spans[0].Page,
			Y:        b.y,
		})
	}
	return lines
}

func joinSpans(spans []doctree.Span) string {
	texts := make([]string, len(spans))
	single := len(spans) >= minLetterSpaced
	for i, s := range spans {
		texts[i] = strings.TrimSpace(s.Text)
		if utf8.RuneCountInString(texts[i]) != 1 {
			single = false
		}
	}
	if single {
		return strings.Join(texts, "")
	}
	return strings.TrimSpace(strings.Join(texts, " "))
}

// dominantSize is the font size carrying the most characters; ties go to
// the size seen first.
func dominantSize(spans []doctree.Span) float64 {
	weight := make(map[float64]int)
	best := spans[0].FontSize
	for _, s := range spans {
		weight[s.FontSize] += utf8.RuneCountInString(s.Text)
		if weight[s.FontSize] > weight[best] {
			best = s.FontSize
		}
	}
	return best
}

func medianFontSize(spans []doctree.Span) float64 {
	sizes := make([]float64, len(spans))
	for i, s := range spans {
		sizes[i] = s.FontSize
	}
	sort.Float64s(sizes)
	mid := len(sizes) / 2
	if len(sizes)%2 == 0 {
		return (sizes[mid-1] + sizes[mid]) / 2
	}
	return sizes[mid]
}

func withLetters(spans []doctree.Span) []doctree.Span {
	out := make([]doctree.Span, 0, len(spans))
	for _, s := range spans {
		if hasLetter(s.Text) {
			out = append(out, s)
		}
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
