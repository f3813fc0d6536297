package budget

import (
	"strings"
	"testing"

	"github.com/sistc/ragcore/internal/knowledge"
)

// match builds a Match with the given text.
func match(text string, score float64) knowledge.Match {
	return knowledge.Match{Record: knowledge.Record{Text: text}, Score: score}
}

func Test_Trim_NoTrimNeeded(t *testing.T) {
	t.Parallel()
	matches := []knowledge.Match{match("short fact", 0.9), match("another fact", 0.8)}
	got := Trim(matches, 100)
	if len(got) != 2 {
		t.Errorf("got %d matches, want 2", len(got))
	}
	if Chars(got) != Chars(matches) {
		t.Errorf("text altered without overflow: %d vs %d chars", Chars(got), Chars(matches))
	}
}

func Test_Trim_TruncatesLowestRankedFirst(t *testing.T) {
	t.Parallel()
	matches := []knowledge.Match{
		match(strings.Repeat("a", 50), 0.9),
		match(strings.Repeat("b", 50), 0.8),
		match(strings.Repeat("c", 50), 0.7),
	}
	got := Trim(matches, 120)
	if len(got) != 3 {
		t.Fatalf("got %d matches, want 3", len(got))
	}
	if len(got[0].Record.Text) != 50 || len(got[1].Record.Text) != 50 {
		t.Error("higher-ranked matches must stay whole")
	}
	if len(got[2].Record.Text) != 20 {
		t.Errorf("lowest match has %d chars, want 20", len(got[2].Record.Text))
	}
}

func Test_Trim_DropsBeyondOverflow(t *testing.T) {
	t.Parallel()
	matches := []knowledge.Match{
		match(strings.Repeat("a", 100), 0.9),
		match(strings.Repeat("b", 100), 0.8),
		match(strings.Repeat("c", 100), 0.7),
	}
	got := Trim(matches, 150)
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2", len(got))
	}
}

func Test_Trim_ZeroBudgetUsesDefault(t *testing.T) {
	t.Parallel()
	matches := []knowledge.Match{match(strings.Repeat("x", DefaultMaxContextChars+500), 0.9)}
	got := Trim(matches, 0)
	if len(got) != 1 {
		t.Fatalf("got %d matches, want 1", len(got))
	}
	if len(got[0].Record.Text) > DefaultMaxContextChars {
		t.Errorf("text length %d exceeds default budget", len(got[0].Record.Text))
	}
}

func Test_Trim_EmptyInput(t *testing.T) {
	t.Parallel()
	if got := Trim(nil, 100); len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}
