package rank

import (
	"context"
	"sort"

	"github.com/dgallion1/docsense/internal/chunker"
	"github.com/dgallion1/docsense/internal/doctree"
)

// DefaultTopN is the number of sentences kept per section when none is
// given.
const DefaultTopN = 3

// Subsection is the refined text of one selected section.
type Subsection struct {
	DocumentID     string
	SectionHeading string
	Page           int
	RefinedText    []string // At most N sentences, in document order
}

// Refine keeps the n sentences of the section most similar to the query
// and returns them in the order they appear in the document. A section
// with an empty body is refined from its page text.
func (r *Ranker) Refine(ctx context.Context, q doctree.Query, s doctree.Section, n int) (Subsection, error) {
	if n <= 0 {
		n = DefaultTopN
	}
	sub := Subsection{
		DocumentID:     s.DocumentID,
		SectionHeading: s.HeadingText,
		Page:           s.Page,
		RefinedText:    []string{},
	}

	sentences := chunker.SplitSentences(s.ScoringText())
	if len(sentences) == 0 {
		return sub, nil
	}

	scored, err := r.Rank(ctx, q.Text(), sentences)
	if err != nil {
		return Subsection{}, err
	}
	if len(scored) > n {
		scored = scored[:n]
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Index < scored[j].Index })

	for _, sc := range scored {
		sub.RefinedText = append(sub.RefinedText, sc.Text)
	}
	return sub, nil
}
