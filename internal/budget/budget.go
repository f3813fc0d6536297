// Package budget bounds the retrieved context handed to the answer model.
// Because the assistant supports multiple LLM backends with different
// tokenizers, the budget is expressed in characters rather than tokens:
// simple, backend-independent, and conservative.
package budget

import (
	"strings"

	"github.com/sistc/ragcore/internal/knowledge"
)

// DefaultMaxContextChars is the default character budget for the knowledge
// context bundle. Small enough to fit comfortably in an 8k-context model
// alongside the system prompt, memory, and the query itself.
const DefaultMaxContextChars = 3000

// Trim fits ranked matches into a character budget. Matches are consumed
// highest-ranked first; the first match that would overflow the budget is
// truncated to the remaining space and everything below it is dropped.
// A maxChars <= 0 applies the default budget.
func Trim(matches []knowledge.Match, maxChars int) []knowledge.Match {
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}

	var kept []knowledge.Match
	used := 0
	for _, m := range matches {
		remaining := maxChars - used
		if remaining <= 0 {
			break
		}
		if len(m.Record.Text) > remaining {
			m.Record.Text = strings.TrimSpace(m.Record.Text[:remaining])
			if m.Record.Text == "" {
				break
			}
			kept = append(kept, m)
			break
		}
		used += len(m.Record.Text)
		kept = append(kept, m)
	}
	return kept
}

// Chars returns the total text length of the matches, the quantity Trim
// budgets against.
func Chars(matches []knowledge.Match) int {
	total := 0
	for _, m := range matches {
		total += len(m.Record.Text)
	}
	return total
}
