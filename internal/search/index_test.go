package search

import (
	"errors"
	"strings"
	"testing"
)

type boomReader struct{}

func (boomReader) Read(_ []byte) (int, error) { return 0, errors.New("boom") }

func TestOptionsAndDefaults(t *testing.T) {
	def := defaultSettings()
	if def.minRunes != 40 || def.stop != nil || def.maxDocs != 0 {
		t.Fatalf("defaults: %#v", def)
	}

	s := apply([]Option{WithMinParagraphRunes(10), WithMinParagraphRunes(-5)})
	if s.minRunes != 10 {
		t.Fatalf("negative min runes should be ignored: %d", s.minRunes)
	}

	s = apply([]Option{WithStopwords([]string{"  The ", "", "Les"})})
	for _, w := range []string{"the", "les"} {
		if _, ok := s.stop[w]; !ok {
			t.Fatalf("stopword %q missing: %#v", w, s.stop)
		}
	}
	if s = apply([]Option{WithStopwords(nil)}); s.stop != nil {
		t.Fatalf("empty stopwords should remain nil")
	}

	if s = apply([]Option{WithMaxDocs(2), WithMaxDocs(0)}); s.maxDocs != 2 {
		t.Fatalf("max docs: %d", s.maxDocs)
	}
}

func TestNewIndexFromReader(t *testing.T) {
	idx, err := NewIndexFromReader(strings.NewReader("Alpha beta gamma.\n\n  \nDelta epsilon zeta."), WithMinParagraphRunes(0))
	if err != nil {
		t.Fatalf("NewIndexFromReader: %v", err)
	}
	res := idx.TopK("zeta", 5)
	if len(res) != 1 || res[0].Snippet != "Delta epsilon zeta." {
		t.Fatalf("unexpected results: %+v", res)
	}

	idx, err = NewIndexFromReader(boomReader{})
	if err == nil {
		t.Fatalf("expected read error")
	}
	if got := idx.TopK("anything", 3); got != nil {
		t.Fatalf("errored index should be empty, got %+v", got)
	}
}

func TestNewIndexFromStrings_FiltersShortAndCaps(t *testing.T) {
	idx := NewIndexFromStrings([]string{"tiny", strings.Repeat("long paragraph text ", 3)}, WithMinParagraphRunes(10))
	if res := idx.TopK("tiny", 3); res != nil {
		t.Fatalf("short paragraph should be dropped: %+v", res)
	}
	if res := idx.TopK("paragraph", 3); len(res) != 1 {
		t.Fatalf("expected long paragraph, got %+v", res)
	}

	capped := NewIndexFromStrings([]string{"pizza one", "pizza two", "pizza three"}, WithMinParagraphRunes(0), WithMaxDocs(2))
	if res := capped.TopK("pizza", 10); len(res) != 2 {
		t.Fatalf("WithMaxDocs: got %d results", len(res))
	}
}

func TestTopK_RankingAndTies(t *testing.T) {
	idx := NewIndexFromDocs([]Doc{
		{ID: "b", Text: "poulet braisé"},
		{ID: "a", Text: "yassa poulet oignons"},
		{ID: "c", Text: "alpha gamma"},
		{ID: "d", Text: "alpha beta"},
	}, WithMinParagraphRunes(0))

	res := idx.TopK("Yassa POULET", 5)
	if len(res) != 2 || res[0].ID != "a" || res[1].ID != "b" {
		t.Fatalf("ranking wrong: %+v", res)
	}
	if res[0].Score <= res[1].Score {
		t.Fatalf("scores not descending: %+v", res)
	}

	res = idx.TopK("alpha", 5)
	if len(res) != 2 || res[0].ID != "d" {
		t.Fatalf("equal scores should prefer the shorter document: %+v", res)
	}
}

func TestTopK_EdgeCases(t *testing.T) {
	empty := NewIndexFromStrings(nil)
	if empty.TopK("x", 3) != nil {
		t.Fatalf("empty index should return nil")
	}

	docs := make([]Doc, 5)
	for i := range docs {
		docs[i] = Doc{Text: "menu item " + string(rune('a'+i))}
	}
	idx := NewIndexFromDocs(docs, WithMinParagraphRunes(0))
	if idx.TopK("   ", 3) != nil {
		t.Fatalf("blank query should return nil")
	}
	if got := len(idx.TopK("menu", 0)); got != 3 {
		t.Fatalf("k<=0 should default to 3, got %d", got)
	}

	stop := NewIndexFromStrings([]string{"the menu"}, WithMinParagraphRunes(0), WithStopwords([]string{"the"}))
	if stop.TopK("the", 3) != nil {
		t.Fatalf("stopword-only query should return nil")
	}
}

func TestTokenize_NormalizesAccents(t *testing.T) {
	idx := NewIndexFromDocs([]Doc{{ID: "x", Text: "Thie\u0301boudienne au poisson"}}, WithMinParagraphRunes(0))
	res := idx.TopK("thiéboudienne", 1)
	if len(res) != 1 || res[0].ID != "x" {
		t.Fatalf("decomposed accent should match composed query: %+v", res)
	}
}

func TestTerms_DistinctAndStopwords(t *testing.T) {
	got := terms("Poulet, POULET et frites 2x", map[string]struct{}{"et": {}})
	want := []string{"poulet", "frites", "2x"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("terms=%q want %q", got, want)
	}
}

func TestNormalizeWhitespaceAndSplit(t *testing.T) {
	if got := normalizeWhitespace("a \t\r b"); got != "a b" {
		t.Fatalf("normalizeWhitespace=%q", got)
	}
	got := splitParas("one\n\n \n two \n\nthree")
	if len(got) != 3 || got[1] != "two" {
		t.Fatalf("splitParas=%q", got)
	}
}
