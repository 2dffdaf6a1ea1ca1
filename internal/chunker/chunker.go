// Package chunker splits section text into the sentence units the
// refiner scores, and bounds text handed to an embedding model.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SplitSentences folds line breaks into spaces and splits text after '.',
// '!' or '?' when followed by whitespace. Text with no such boundary comes
// back as a single sentence; blank text yields none.
func SplitSentences(text string) []string {
	text = foldLines(text)
	if text == "" {
		return nil
	}

	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next, _ := utf8.DecodeRuneInString(text[i+utf8.RuneLen(r):])
		if unicode.IsSpace(next) {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// foldLines replaces line breaks with spaces and collapses runs of
// whitespace.
func foldLines(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Truncate cuts text to roughly maxTokens tokens on a word boundary.
// maxTokens <= 0 leaves text untouched.
func Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text
	}
	words := strings.Fields(text)
	// Approximate: 1.33 tokens per word.
	keep := int(float64(maxTokens) / 1.33)
	if keep < 1 {
		keep = 1
	}
	if keep > len(words) {
		keep = len(words)
	}
	return strings.Join(words[:keep], " ")
}
