// Package outline turns classified lines into a document outline and
// slices the document into sections along it.
package outline

import (
	"strings"

	"github.com/dgallion1/docsense/internal/classify"
	"github.com/dgallion1/docsense/internal/doctree"
)

// Build returns the title and headings of a classified document in
// reading order. A heading whose line repeats an earlier heading line is
// left out, so running headers appear once.
func Build(res classify.Result) doctree.Outline {
	out := doctree.Outline{Title: res.Title, Headings: []doctree.Heading{}}
	seen := make(map[string]bool)
	for i, l := range res.Lines {
		if !l.Role.IsHeading() {
			continue
		}
		key := classify.HeadingKey(l)
		if seen[key] {
			continue
		}
		seen[key] = true
		out.Headings = append(out.Headings, doctree.NewHeading(l.Role, l.HeadingText, l.Page, i))
	}
	return out
}

// Segment produces one section per outline heading. A section's body is
// every non-title line after its heading up to the next outline heading,
// joined by newlines; the last section runs to the end of the document.
func Segment(docID string, lines []doctree.ClassifiedLine, o doctree.Outline) []doctree.Section {
	if len(o.Headings) == 0 {
		return nil
	}
	pages := pageTexts(lines)

	sections := make([]doctree.Section, 0, len(o.Headings))
	for i, h := range o.Headings {
		end := len(lines)
		if i+1 < len(o.Headings) {
			end = o.Headings[i+1].LineIndex()
		}
		var body []string
		for j := h.LineIndex() + 1; j < end; j++ {
			if lines[j].Role == doctree.RoleTitle {
				continue
			}
			body = append(body, lines[j].Text)
		}
		sections = append(sections, doctree.Section{
			DocumentID:  docID,
			HeadingText: h.Text,
			Level:       h.Level,
			Page:        h.Page,
			BodyText:    strings.Join(body, "\n"),
			PageText:    pages[h.Page],
		})
	}
	return sections
}

// NewDocument runs outline construction and segmentation for one
// classified document.
func NewDocument(docID string, res classify.Result) *doctree.Document {
	o := Build(res)
	return &doctree.Document{
		ID:       docID,
		Lines:    res.Lines,
		Outline:  o,
		Sections: Segment(docID, res.Lines, o),
	}
}

func pageTexts(lines []doctree.ClassifiedLine) map[int]string {
	parts := make(map[int][]string)
	for _, l := range lines {
		parts[l.Page] = append(parts[l.Page], l.Text)
	}
	out := make(map[int]string, len(parts))
	for p, texts := range parts {
		out[p] = strings.Join(texts, " ")
	}
	return out
}
