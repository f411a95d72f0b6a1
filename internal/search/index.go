// Package search provides a small, deterministic, concurrency-safe in-memory
// lexical index. It backs two lookups in the ordering pipeline:
//
//   - catalog retrieval (documents are menu items, keyed by item id)
//   - knowledge-base retrieval (documents are markdown facts)
//
// The index is immutable after construction and safe for concurrent use.
// There is no logging in the package; callers decide what to log.
//
// Scoring is the Jaccard similarity between the query's term set and each
// document's term set: score = |Q ∩ D| / |Q ∪ D|. Only documents sharing at
// least one term with the query are visited, through a term -> document
// postings map.
package search

import (
	"io"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Result is a ranked document with its similarity score. ID is empty for
// documents built from plain paragraphs.
type Result struct {
	ID      string
	Snippet string
	Score   float64
}

// Index ranks documents for a free-text query.
type Index interface {
	TopK(query string, k int) []Result
}

// Doc is one indexable document.
type Doc struct {
	ID   string
	Text string
}

// Option tunes index construction.
type Option func(*settings)

type settings struct {
	minRunes int
	stop     map[string]struct{}
	maxDocs  int
}

func defaultSettings() settings {
	return settings{minRunes: 40}
}

func apply(opts []Option) settings {
	s := defaultSettings()
	for _, o := range opts {
		o(&s)
	}
	return s
}

// WithMinParagraphRunes drops documents shorter than n runes. Zero keeps all.
func WithMinParagraphRunes(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.minRunes = n
		}
	}
}

// WithStopwords removes words (case-insensitive) from documents and queries.
func WithStopwords(words []string) Option {
	return func(s *settings) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			s.stop = m
		}
	}
}

// WithMaxDocs keeps only the first n accepted documents.
func WithMaxDocs(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxDocs = n
		}
	}
}

// DefaultStopwords is a short English/French list tuned for menu queries.
var DefaultStopwords = []string{
	"the", "a", "an", "and", "or", "of", "with", "do", "you", "have", "is", "what", "i", "want", "some",
	"le", "la", "les", "un", "une", "des", "de", "du", "et", "avec", "vous", "avez", "est", "je", "veux",
}

type entry struct {
	id    string
	text  string
	terms int
	runes int
}

type index struct {
	stop     map[string]struct{}
	entries  []entry
	postings map[string][]int // term -> positions in entries, ascending
}

// NewIndexFromReader builds an Index from UTF-8 text provided by r.
// The reader is fully consumed; paragraphs are split on blank lines.
func NewIndexFromReader(r io.Reader, opts ...Option) (Index, error) {
	s := apply(opts)
	all, err := io.ReadAll(r)
	if err != nil {
		return build(nil, s), err
	}
	return build(paragraphDocs(splitParas(string(all))), s), nil
}

// NewIndexFromStrings builds an Index directly from a slice of paragraphs.
func NewIndexFromStrings(paragraphs []string, opts ...Option) Index {
	return build(paragraphDocs(paragraphs), apply(opts))
}

// NewIndexFromDocs builds an Index over identified documents.
func NewIndexFromDocs(docs []Doc, opts ...Option) Index {
	return build(docs, apply(opts))
}

func paragraphDocs(paragraphs []string) []Doc {
	out := make([]Doc, len(paragraphs))
	for i, p := range paragraphs {
		out[i] = Doc{Text: p}
	}
	return out
}

func build(in []Doc, s settings) *index {
	ix := &index{stop: s.stop, postings: make(map[string][]int)}
	for _, d := range in {
		text := strings.TrimSpace(normalizeWhitespace(d.Text))
		runes := utf8.RuneCountInString(text)
		if runes == 0 || runes < s.minRunes {
			continue
		}
		ts := terms(text, s.stop)
		if len(ts) == 0 {
			continue
		}
		pos := len(ix.entries)
		ix.entries = append(ix.entries, entry{id: d.ID, text: text, terms: len(ts), runes: runes})
		for _, t := range ts {
			ix.postings[t] = append(ix.postings[t], pos)
		}
		if s.maxDocs > 0 && len(ix.entries) >= s.maxDocs {
			break
		}
	}
	return ix
}

// TopK returns up to k best-matching documents (3 when k <= 0). Ties prefer
// shorter documents, then lexical order.
func (ix *index) TopK(q string, k int) []Result {
	if len(ix.entries) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qs := terms(q, ix.stop)
	if len(qs) == 0 {
		return nil
	}

	shared := make(map[int]int)
	for _, t := range qs {
		for _, pos := range ix.postings[t] {
			shared[pos]++
		}
	}
	if len(shared) == 0 {
		return nil
	}

	type hit struct {
		pos   int
		score float64
	}
	hits := make([]hit, 0, len(shared))
	for pos, n := range shared {
		union := len(qs) + ix.entries[pos].terms - n
		hits = append(hits, hit{pos: pos, score: float64(n) / float64(union)})
	}
	sort.Slice(hits, func(a, b int) bool {
		ea, eb := &ix.entries[hits[a].pos], &ix.entries[hits[b].pos]
		switch {
		case hits[a].score != hits[b].score:
			return hits[a].score > hits[b].score
		case ea.runes != eb.runes:
			return ea.runes < eb.runes
		case ea.text != eb.text:
			return ea.text < eb.text
		default:
			return hits[a].pos < hits[b].pos
		}
	})

	if k > len(hits) {
		k = len(hits)
	}
	out := make([]Result, k)
	for n := range out {
		e := ix.entries[hits[n].pos]
		out[n] = Result{ID: e.id, Snippet: e.text, Score: hits[n].score}
	}
	return out
}

// terms returns the distinct lowercase words of s in first-seen order.
// Text is NFC-normalized first so composed and decomposed accents agree.
func terms(s string, stop map[string]struct{}) []string {
	words := strings.FieldsFunc(strings.ToLower(norm.NFC.String(s)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]struct{}, len(words))
	out := words[:0]
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// normalizeWhitespace collapses runs of spaces, tabs and carriage returns
// into one space. Newlines are kept.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r'
	}), " ")
}

var blankLine = regexp.MustCompile(`\n\s*\n`)

func splitParas(raw string) []string {
	var out []string
	for _, c := range blankLine.Split(raw, -1) {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}
