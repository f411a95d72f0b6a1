package search

import (
	"hash/fnv"
	"sync"
)

type knowledgeEntry struct {
	stamp uint64
	idx   Index
}

// KnowledgeBase answers paragraph lookups over each tenant's markdown
// knowledge text. The flattened index is cached per tenant until the text
// changes.
type KnowledgeBase struct {
	opts []Option

	mu    sync.Mutex
	cache map[string]knowledgeEntry
}

// NewKnowledgeBase creates an empty cache. Without options paragraphs shorter
// than 12 runes are ignored.
func NewKnowledgeBase(opts ...Option) *KnowledgeBase {
	if len(opts) == 0 {
		opts = []Option{WithMinParagraphRunes(12), WithStopwords(DefaultStopwords)}
	}
	return &KnowledgeBase{opts: opts, cache: make(map[string]knowledgeEntry)}
}

// Retrieve returns up to k paragraphs of text relevant to query.
func (kb *KnowledgeBase) Retrieve(tenantID, text, query string, k int) []string {
	if text == "" || query == "" {
		return nil
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	stamp := h.Sum64()

	kb.mu.Lock()
	e, ok := kb.cache[tenantID]
	if !ok || e.stamp != stamp {
		e = knowledgeEntry{stamp: stamp, idx: NewIndexFromStrings(MarkdownFacts(text), kb.opts...)}
		kb.cache[tenantID] = e
	}
	kb.mu.Unlock()

	hits := e.idx.TopK(query, k)
	out := make([]string, len(hits))
	for i, r := range hits {
		out[i] = r.Snippet
	}
	return out
}
