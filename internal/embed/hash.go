package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedder maps text into a fixed number of buckets by hashing word
// unigrams, word bigrams and character trigrams. Vectors are L2
// normalized, so texts sharing vocabulary score higher under cosine.
// It is deterministic and has no external dependencies.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder returns a hashing embedder with dim buckets.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = defaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

// Feature weights.
const (
	unigramWeight = 1.0
	bigramWeight  = 0.5
	trigramWeight = 0.25
)

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	vec := make([]float32, h.dim)
	words := tokenize(text)
	for i, w := range words {
		h.add(vec, w, unigramWeight)
		if i > 0 {
			h.add(vec, words[i-1]+" "+w, bigramWeight)
		}
		padded := []rune("#" + w + "#")
		for j := 0; j+3 <= len(padded); j++ {
			h.add(vec, "3:"+string(padded[j:j+3]), trigramWeight)
		}
	}
	Normalize(vec)
	return vec, nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := h.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (h *HashEmbedder) Dimension() int { return h.dim }
func (h *HashEmbedder) Model() string  { return fmt.Sprintf("%s-%d", hashModelName, h.dim) }

// add hashes a feature into a bucket. The sign comes from the top hash bit.
func (h *HashEmbedder) add(vec []float32, feature string, weight float32) {
	hf := fnv.New64a()
	_, _ = hf.Write([]byte(feature))
	sum := hf.Sum64()
	idx := sum % uint64(h.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
