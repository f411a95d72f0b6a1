package search

import (
	"strings"
	"testing"
)

func TestMarkdownFacts_Empty(t *testing.T) {
	if got := MarkdownFacts(" \n\n  \n"); len(got) != 0 {
		t.Fatalf("expected no facts, got %q", got)
	}
}

func TestMarkdownFacts_TablesHeadingsBullets(t *testing.T) {
	in := "# Hours\n\n| Day | Open |\n|---|:---:|\n| Mon | 9-17 |\n\n- Parking available\n* Wifi\r\n"
	want := []string{"Hours", "Day Open", "Mon 9-17", "Parking available", "Wifi"}
	if got := MarkdownFacts(in); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("MarkdownFacts:\n got %q\nwant %q", got, want)
	}
}

func TestMarkdownFacts_SkipsEmptyRowsAndBareMarkers(t *testing.T) {
	got := MarkdownFacts("|   |   |\n###\n- \nPlain line\n")
	if len(got) != 1 || got[0] != "Plain line" {
		t.Fatalf("got %q", got)
	}
}
