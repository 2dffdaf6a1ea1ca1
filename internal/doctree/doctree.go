package doctree

import "strings"

// Span is a run of text with uniform font metadata, as produced by a parser.
type Span struct {
	Text     string
	FontSize float64
	X        float64 // Left edge in points
	Y        float64 // Distance from the top of the page in points
	Page     int     // 1-based
}

// Source is the raw span stream for one document.
type Source struct {
	Name  string   // Document identifier (file name)
	Pages [][]Span // Pages[i] holds the spans of page i+1, in extraction order
}

// SpanCount returns the number of spans across all pages.
func (s *Source) SpanCount() int {
	n := 0
	for _, p := range s.Pages {
		n += len(p)
	}
	return n
}

// Line is one or more spans merged into a single reading line.
type Line struct {
	Text     string
	FontSize float64
	Page     int
	Y        float64
}

// Role is the structural role assigned to a line.
type Role int

const (
	RoleBody Role = iota
	RoleTitle
	RoleH1
	RoleH2
	RoleH3
)

func (r Role) String() string {
	switch r {
	case RoleTitle:
		return "Title"
	case RoleH1:
		return "H1"
	case RoleH2:
		return "H2"
	case RoleH3:
		return "H3"
	default:
		return "Body"
	}
}

// IsHeading reports whether the role is one of H1, H2, H3.
func (r Role) IsHeading() bool {
	return r == RoleH1 || r == RoleH2 || r == RoleH3
}

// HeadingRole returns the heading role for a 0-based size rank.
func HeadingRole(rank int) Role {
	switch rank {
	case 0:
		return RoleH1
	case 1:
		return RoleH2
	case 2:
		return RoleH3
	}
	return RoleBody
}

// ClassifiedLine is a Line with its structural role. HeadingText is the
// normalized heading phrase for heading roles and empty otherwise.
type ClassifiedLine struct {
	Line
	Role        Role
	HeadingText string
}

// Heading is one outline entry.
type Heading struct {
	Level string `json:"level"` // "H1", "H2" or "H3"
	Text  string `json:"text"`
	Page  int    `json:"page"`

	line int // Index into the classified lines it came from
}

// NewHeading builds a heading that points back at classified line idx.
func NewHeading(level Role, text string, page, idx int) Heading {
	return Heading{Level: level.String(), Text: text, Page: page, line: idx}
}

// LineIndex returns the classified line index the heading was built from.
func (h Heading) LineIndex() int { return h.line }

// Outline is the title plus ordered headings of one document.
type Outline struct {
	Title    string    `json:"title"`
	Headings []Heading `json:"outline"`
}

// Section is the body text owned by one outline heading.
type Section struct {
	DocumentID  string
	HeadingText string
	Level       string
	Page        int
	BodyText    string
	PageText    string // Full text of the heading's page, used when BodyText is empty
}

// ScoringText returns the text that stands in for the section body:
// the body itself, or the page text when the body is empty.
func (s Section) ScoringText() string {
	if strings.TrimSpace(s.BodyText) != "" {
		return s.BodyText
	}
	return s.PageText
}

// Query is the persona plus the job to be done.
type Query struct {
	Persona     string
	JobToBeDone string
}

// Text combines the query into the single string that gets embedded.
func (q Query) Text() string {
	persona := strings.TrimSpace(q.Persona)
	job := strings.TrimSpace(q.JobToBeDone)
	switch {
	case persona == "":
		return job
	case job == "":
		return persona
	}
	return strings.TrimRight(persona, ".") + ". " + job
}

// Document is everything the structural stage derives from one source.
type Document struct {
	ID       string
	Lines    []ClassifiedLine
	Outline  Outline
	Sections []Section
}
