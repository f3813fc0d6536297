package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sistc/ragcore/internal/logging"
)

// NewLearnCmd constructs the `ragcore learn` command, which runs one
// web-learning cycle for a topic and stores the distilled knowledge.
func NewLearnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn [topic]",
		Short: "Learn about a topic from the web and store the result",
		Long: `Run one learning cycle for a topic: search the configured SearxNG
instance, distill the results into factual text with the LLM, and store
the outcome as web-learned knowledge records.

This is the same cycle the pipeline triggers automatically on
low-confidence answers. Requires websearch.base_url (or SEARX_BASE_URL)
to be configured.

Examples:
  ragcore learn "SISTC semester 2 orientation dates"
  ragcore learn "student visa work hour limits Australia"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logging.WithLogger(cmd.Context(), rootLog)

			a, err := buildApp(ctx, rootLog)
			if err != nil {
				return fmt.Errorf("learn: %w", err)
			}
			defer a.Close()

			if a.learner == nil {
				return fmt.Errorf("learn: web search is not configured (set websearch.base_url or SEARX_BASE_URL)")
			}

			topic := strings.Join(args, " ")
			recs, err := a.learner.LearnFromExternal(ctx, topic)
			if err != nil {
				return fmt.Errorf("learn: %w", err)
			}
			if len(recs) == 0 {
				fmt.Println("no new knowledge found")
				return nil
			}

			fmt.Printf("learned %d records about %q:\n", len(recs), topic)
			for _, rec := range recs {
				fmt.Printf("  %s  [%s] %s\n", rec.ID, rec.Meta.Category, excerpt(rec.Text, 80))
			}
			return nil
		},
	}

	return cmd
}

// excerpt trims s to at most n characters for display.
func excerpt(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
