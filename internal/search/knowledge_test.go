package search

import (
	"strings"
	"testing"
)

const kbText = "## Parking\nFree parking is available behind the restaurant.\n\n## Payment\nWe accept Wave and Orange Money payments.\n"

func TestKnowledgeBase_Retrieve(t *testing.T) {
	kb := NewKnowledgeBase()

	got := kb.Retrieve("t1", kbText, "parking", 3)
	if len(got) != 1 || !strings.Contains(got[0], "behind the restaurant") {
		t.Fatalf("parking lookup: %q", got)
	}
	got = kb.Retrieve("t1", kbText, "can I pay with wave", 3)
	if len(got) != 1 || !strings.Contains(got[0], "Wave") {
		t.Fatalf("payment lookup: %q", got)
	}
	if kb.Retrieve("t1", "", "parking", 3) != nil || kb.Retrieve("t1", kbText, "", 3) != nil {
		t.Fatalf("empty text or query should return nil")
	}
}

func TestKnowledgeBase_RebuildsWhenTextChanges(t *testing.T) {
	kb := NewKnowledgeBase()
	_ = kb.Retrieve("t1", kbText, "parking", 3)
	got := kb.Retrieve("t1", "Delivery runs until midnight every day.", "midnight", 3)
	if len(got) != 1 {
		t.Fatalf("changed text should rebuild the index: %q", got)
	}
}
