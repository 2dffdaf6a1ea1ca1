// Package rank scores sections and sentences against a persona query,
// picks a document-diverse top K and refines each pick to its most
// relevant sentences.
package rank

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dgallion1/docsense/internal/doctree"
	"github.com/dgallion1/docsense/internal/embed"
)

// Scored is one candidate text with its similarity to the query.
type Scored struct {
	Index int // Position in the input
	Text  string
	Score float64 // Cosine similarity in [-1, 1]
}

// Ranker scores candidate texts with an injected embedder.
type Ranker struct {
	emb embed.Embedder
}

func NewRanker(emb embed.Embedder) *Ranker {
	return &Ranker{emb: emb}
}

// Rank embeds the query and all texts in a single batch call and returns
// the texts ordered by descending similarity. Equal scores keep input
// order.
func (r *Ranker) Rank(ctx context.Context, query string, texts []string) ([]Scored, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	batch := make([]string, 0, len(texts)+1)
	batch = append(batch, query)
	batch = append(batch, texts...)

	vecs, err := r.emb.EmbedBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("embed %d candidates: %w", len(texts), err)
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", embed.ErrUnavailable, len(vecs), len(batch))
	}

	q := vecs[0]
	out := make([]Scored, len(texts))
	for i, t := range texts {
		out[i] = Scored{Index: i, Text: t, Score: embed.Cosine(q, vecs[i+1])}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// RankedSection is a section with its relevance score. Rank is 1-based
// and set by SelectDiverse.
type RankedSection struct {
	doctree.Section
	Score float64
	Rank  int
}

// SectionText is what gets embedded for a section: its heading, or the
// heading followed by the page text when the body is empty.
func SectionText(s doctree.Section) string {
	if strings.TrimSpace(s.BodyText) != "" {
		return s.HeadingText
	}
	return strings.TrimSpace(s.HeadingText + " " + s.PageText)
}

// RankSections scores every section against the query, highest first.
func (r *Ranker) RankSections(ctx context.Context, q doctree.Query, sections []doctree.Section) ([]RankedSection, error) {
	texts := make([]string, len(sections))
	for i, s := range sections {
		texts[i] = SectionText(s)
	}
	scored, err := r.Rank(ctx, q.Text(), texts)
	if err != nil {
		return nil, err
	}
	out := make([]RankedSection, len(scored))
	for i, sc := range scored {
		out[i] = RankedSection{Section: sections[sc.Index], Score: sc.Score}
	}
	return out, nil
}
