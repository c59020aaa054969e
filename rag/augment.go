package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/hubenschmidt/ultrarelay/vector"
)

// DefaultTopK is the number of fragments added to an augmented prompt.
const DefaultTopK = 3

// Searcher finds the fragments most similar to a query.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]vector.ScoredFragment, error)
}

// Augmenter decides whether and how to enrich a system prompt with
// retrieved fragments.
type Augmenter struct {
	searcher Searcher
	topK     int
}

func NewAugmenter(searcher Searcher, topK int) *Augmenter {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Augmenter{searcher: searcher, topK: topK}
}

// SystemPrompt returns base unchanged when retrieval is off, the query is
// empty or nothing was found. Otherwise the retrieved fragments are appended
// in rank order. A search failure is returned to the caller.
func (a *Augmenter) SystemPrompt(ctx context.Context, base string, useRAG bool, query string) (string, int, error) {
	if !useRAG || query == "" {
		return base, 0, nil
	}

	hits, err := a.searcher.Search(ctx, query, a.topK)
	if err != nil {
		return "", 0, err
	}
	if len(hits) == 0 {
		return base, 0, nil
	}
	return FormatAugmented(base, hits), len(hits), nil
}

// FormatAugmented renders base followed by one DOC block per hit.
func FormatAugmented(base string, hits []vector.ScoredFragment) string {
	docs := make([]string, len(hits))
	for i, h := range hits {
		docs[i] = fmt.Sprintf("DOC%d (score:%.3f): %s", i+1, h.Score, h.Text)
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nUse the following docs when answering (do not invent other facts):\n\n")
	b.WriteString(strings.Join(docs, "\n\n"))
	b.WriteString("\n\nAnswer concisely.")
	return b.String()
}
