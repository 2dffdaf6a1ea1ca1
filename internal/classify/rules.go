package classify

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Strict heading shape limits.
const (
	MinHeadingWords = 2
	MaxHeadingWords = 4
	MaxHeadingChars = 40
)

// MinFallbackWords is the word count a size-only heading needs.
const MinFallbackWords = 3

// Candidate is a line under evaluation by the strict rules.
type Candidate struct {
	Text     string  // Full line text; the shape rules measure this
	Phrase   string  // Leading clause isolated by SplitClause, emitted as the heading
	FontSize float64 // Line font size
	SizeRank int     // Index into the heading sizes, -1 when not a heading size
}

// Rule is one named, side-effect-free heading check.
type Rule struct {
	Name  string
	Check func(Candidate) bool
}

// StrictRules must all hold for a line to be a strict heading.
var StrictRules = []Rule{
	{Name: "heading_size", Check: func(c Candidate) bool { return c.SizeRank >= 0 }},
	{Name: "word_count", Check: func(c Candidate) bool {
		n := len(strings.Fields(c.Text))
		return n >= MinHeadingWords && n <= MaxHeadingWords
	}},
	{Name: "max_length", Check: func(c Candidate) bool {
		return utf8.RuneCountInString(strings.TrimSpace(c.Text)) <= MaxHeadingChars
	}},
	{Name: "no_trailing_punct", Check: func(c Candidate) bool {
		return !hasTrailingPunct(c.Text)
	}},
}

// NewCandidate prepares a line for rule evaluation.
func NewCandidate(text string, fontSize float64, sizes []float64) Candidate {
	return Candidate{
		Text:     text,
		Phrase:   SplitClause(text),
		FontSize: fontSize,
		SizeRank: sizeRank(fontSize, sizes),
	}
}

// Evaluate runs every strict rule and returns the name of the first rule
// that fails, or "" when the candidate is a heading.
func Evaluate(c Candidate) string {
	for _, r := range StrictRules {
		if !r.Check(c) {
			return r.Name
		}
	}
	return ""
}

// SplitClause cuts text at the first colon, or at the first dash that
// stands between spaces, and returns the leading clause trimmed.
func SplitClause(text string) string {
	cut := len(text)
	if i := strings.IndexByte(text, ':'); i >= 0 {
		cut = i
	}
	for _, sep := range []string{" - ", " – ", " — "} {
		if i := strings.Index(text, sep); i >= 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimSpace(text[:cut])
}

var trailingPunct = ".,;"

func hasTrailingPunct(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(s)
	return strings.ContainsRune(trailingPunct, last)
}

// TitleCase normalizes a heading phrase: first letter of each word upper,
// the rest lower, single spaces between words.
func TitleCase(s string) string {
	return cases.Title(language.English).String(strings.Join(strings.Fields(s), " "))
}

func sizeRank(size float64, sizes []float64) int {
	for i, s := range sizes {
		if s == size {
			return i
		}
	}
	return -1
}
