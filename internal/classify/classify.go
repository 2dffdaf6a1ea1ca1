// Package classify assigns structural roles to document lines from font
// size ranking and heading shape rules.
//
// Classification is two-phase: the heading sizes are collected over the
// whole document first, then each line is classified against them.
package classify

import (
	"sort"
	"strings"

	"github.com/dgallion1/docsense/internal/doctree"
)

// MinStrictHeadings is the number of strict headings below which the
// size-only pass replaces the strict result.
const MinStrictHeadings = 5

// maxHeadingLevels is the number of distinct sizes mapped to H1..H3.
const maxHeadingLevels = 3

// Pass identifies which heading pass produced a classification.
type Pass string

const (
	PassStrict   Pass = "strict"
	PassFallback Pass = "size_only"
)

// Result is the classification of one document.
type Result struct {
	Lines        []doctree.ClassifiedLine
	HeadingSizes []float64
	Pass         Pass
	StrictCount  int  // Distinct lines the strict pass accepted, whether used or not
	Title        string
	TitleIndex   int  // Index of the title line, -1 when the title fell back
	TitleFromID  bool // Title fell back to the document identifier
}

// HeadingCount returns the number of lines classified as headings.
func (r Result) HeadingCount() int {
	n := 0
	for _, l := range r.Lines {
		if l.Role.IsHeading() {
			n++
		}
	}
	return n
}

// HeadingSizes returns the largest distinct font sizes across lines,
// descending, at most three.
func HeadingSizes(lines []doctree.Line) []float64 {
	seen := make(map[float64]bool)
	var sizes []float64
	for _, l := range lines {
		if !seen[l.FontSize] {
			seen[l.FontSize] = true
			sizes = append(sizes, l.FontSize)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sizes)))
	if len(sizes) > maxHeadingLevels {
		sizes = sizes[:maxHeadingLevels]
	}
	return sizes
}

// Classify assigns a role to every line. docID is the external document
// identifier used as the title when page 1 has no lines.
func Classify(docID string, lines []doctree.Line) Result {
	res := Result{
		HeadingSizes: HeadingSizes(lines),
		TitleIndex:   findTitle(lines),
	}

	if res.TitleIndex >= 0 {
		res.Title = lines[res.TitleIndex].Text
	} else {
		res.Title = docID
		res.TitleFromID = true
	}

	strict := strictPass(lines, res.HeadingSizes, res.TitleIndex)
	res.StrictCount = distinctHeadings(strict)
	if res.StrictCount >= MinStrictHeadings {
		res.Lines = strict
		res.Pass = PassStrict
	} else {
		res.Lines = fallbackPass(lines, res.HeadingSizes, res.TitleIndex)
		res.Pass = PassFallback
	}
	return res
}

// findTitle returns the index of the largest-font line on page 1, the
// topmost one on ties, or -1 when page 1 has no lines.
func findTitle(lines []doctree.Line) int {
	best := -1
	for i, l := range lines {
		if l.Page != 1 {
			continue
		}
		if best < 0 || l.FontSize > lines[best].FontSize ||
			(l.FontSize == lines[best].FontSize && l.Y < lines[best].Y) {
			best = i
		}
	}
	return best
}

func strictPass(lines []doctree.Line, sizes []float64, titleIdx int) []doctree.ClassifiedLine {
	out := baseRoles(lines, titleIdx)
	for i := range out {
		if i == titleIdx {
			continue
		}
		c := NewCandidate(lines[i].Text, lines[i].FontSize, sizes)
		if Evaluate(c) != "" {
			continue
		}
		out[i].Role = doctree.HeadingRole(c.SizeRank)
		out[i].HeadingText = TitleCase(c.Phrase)
	}
	return out
}

func fallbackPass(lines []doctree.Line, sizes []float64, titleIdx int) []doctree.ClassifiedLine {
	out := baseRoles(lines, titleIdx)
	for i := range out {
		if i == titleIdx {
			continue
		}
		rank := sizeRank(lines[i].FontSize, sizes)
		if rank < 0 || len(strings.Fields(lines[i].Text)) < MinFallbackWords {
			continue
		}
		out[i].Role = doctree.HeadingRole(rank)
		out[i].HeadingText = lines[i].Text
	}
	return out
}

func baseRoles(lines []doctree.Line, titleIdx int) []doctree.ClassifiedLine {
	out := make([]doctree.ClassifiedLine, len(lines))
	for i, l := range lines {
		out[i] = doctree.ClassifiedLine{Line: l, Role: doctree.RoleBody}
		if i == titleIdx {
			out[i].Role = doctree.RoleTitle
		}
	}
	return out
}

// distinctHeadings counts heading lines by case-insensitive line text, so
// a running header repeated on every page counts once.
func distinctHeadings(lines []doctree.ClassifiedLine) int {
	seen := make(map[string]bool)
	for _, l := range lines {
		if l.Role.IsHeading() {
			seen[HeadingKey(l)] = true
		}
	}
	return len(seen)
}

// HeadingKey identifies repeats of the same heading line.
func HeadingKey(l doctree.ClassifiedLine) string {
	return strings.ToLower(strings.Join(strings.Fields(l.Text), " "))
}
