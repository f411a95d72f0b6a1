package search

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/tbourn/go-order-agent/internal/domain"
)

// CatalogSource loads a tenant together with its catalog.
type CatalogSource interface {
	ByID(ctx context.Context, id string) (*domain.Tenant, error)
}

type catalogEntry struct {
	stamp uint64
	idx   Index
	items map[string]domain.CatalogItem
}

// CatalogSearcher ranks a tenant's available catalog items against a free-text
// query. Indices are built lazily per tenant and rebuilt when the catalog
// changes.
type CatalogSearcher struct {
	src  CatalogSource
	opts []Option

	mu    sync.Mutex
	cache map[string]catalogEntry
}

// NewCatalogSearcher creates a searcher over src. Without options the index
// keeps every item and drops DefaultStopwords.
func NewCatalogSearcher(src CatalogSource, opts ...Option) *CatalogSearcher {
	if len(opts) == 0 {
		opts = []Option{WithMinParagraphRunes(0), WithStopwords(DefaultStopwords)}
	}
	return &CatalogSearcher{src: src, opts: opts, cache: make(map[string]catalogEntry)}
}

// Search returns up to k items ranked by relevance. An unknown tenant is an
// error; a query with no match returns an empty slice.
func (s *CatalogSearcher) Search(ctx context.Context, tenantID, query string, k int) ([]domain.CatalogItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := s.src.ByID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	e := s.entry(t)
	hits := e.idx.TopK(query, k)
	out := make([]domain.CatalogItem, 0, len(hits))
	for _, h := range hits {
		if it, ok := e.items[h.ID]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// Invalidate drops the cached index for tenantID.
func (s *CatalogSearcher) Invalidate(tenantID string) {
	s.mu.Lock()
	delete(s.cache, tenantID)
	s.mu.Unlock()
}

func (s *CatalogSearcher) entry(t *domain.Tenant) catalogEntry {
	stamp := catalogStamp(t.Catalog)

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.cache[t.ID]; ok && e.stamp == stamp {
		return e
	}
	docs := make([]Doc, 0, len(t.Catalog))
	items := make(map[string]domain.CatalogItem, len(t.Catalog))
	for i, it := range t.Catalog {
		if !it.IsAvailable {
			continue
		}
		id := it.ID
		if id == "" {
			id = fmt.Sprintf("#%d", i)
		}
		items[id] = it
		docs = append(docs, Doc{ID: id, Text: strings.Join([]string{it.Name, it.Description, it.Category}, " ")})
	}
	e := catalogEntry{stamp: stamp, idx: NewIndexFromDocs(docs, s.opts...), items: items}
	s.cache[t.ID] = e
	return e
}

func catalogStamp(items []domain.CatalogItem) uint64 {
	h := fnv.New64a()
	for _, it := range items {
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%d\x00%t\x01", it.ID, it.Name, it.Description, it.Category, it.Price, it.IsAvailable)
	}
	return h.Sum64()
}

// MatchSubstring returns the first available item whose name or description
// contains query, case-insensitively. It returns nil when nothing matches.
func MatchSubstring(items []domain.CatalogItem, query string) *domain.CatalogItem {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	for i := range items {
		it := &items[i]
		if !it.IsAvailable {
			continue
		}
		if strings.Contains(strings.ToLower(it.Name), q) || strings.Contains(strings.ToLower(it.Description), q) {
			out := *it
			return &out
		}
	}
	return nil
}
