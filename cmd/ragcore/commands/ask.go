package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sistc/ragcore/internal/logging"
)

// NewAskCmd constructs the `ragcore ask` command, which runs a single
// question through the full answer pipeline and prints the result.
func NewAskCmd() *cobra.Command {
	var user string
	var previous string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the student assistant a question",
		Long: `Ask the student assistant a single question from the command line.

The question runs through the same confidence-gated pipeline as the HTTP
API: safety check, categorization, knowledge retrieval, and — when
confidence is low and web search is configured — a learning cycle.

Examples:
  ragcore ask "what are the campus locations?"
  ragcore ask --user alice "when is the census date this semester?"
  ragcore ask --previous "Orientation runs in week 0." "do I have to attend?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logging.WithLogger(cmd.Context(), rootLog)

			a, err := buildApp(ctx, rootLog)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.Close()

			res, err := a.engine.Answer(ctx, strings.Join(args, " "), user, previous)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(res.Text)
			fmt.Fprintf(os.Stderr, "\n[confidence %.2f, category %s, learned %v]\n",
				res.Confidence, res.Category, res.Learned)
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User ID for conversational memory")
	cmd.Flags().StringVar(&previous, "previous", "", "Previous answer, for follow-up questions")

	return cmd
}
