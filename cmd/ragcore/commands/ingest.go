package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sistc/ragcore/internal/ingest"
	"github.com/sistc/ragcore/internal/logging"
)

// NewIngestCmd constructs the `ragcore ingest` command, which seeds the
// knowledge store from local text or markdown files.
func NewIngestCmd() *cobra.Command {
	var category string
	var chunkSize int
	var overlap int

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest local knowledge files into the knowledge store",
		Long: `Read local text or markdown files, chunk them, and store the chunks as
manually curated knowledge records.

Chunk IDs are deterministic per file, so re-ingesting an updated file
replaces its records instead of duplicating them. When --category is
omitted each chunk is classified into the taxonomy by the LLM.

Examples:
  ragcore ingest docs/campus.md docs/fees.md
  ragcore ingest --category visa docs/visa-faq.md
  ragcore ingest --chunk-size 500 --overlap 50 handbook.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := logging.WithLogger(cmd.Context(), rootLog)

			a, err := buildApp(ctx, rootLog)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer a.Close()

			p, err := ingest.NewPipeline(a.embedder, a.store, &ingest.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: overlap,
				Category:     category,
				Categorize:   a.manager.Categorize,
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			n, err := p.Ingest(ctx, args, func(msg string) {
				rootLog.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			fmt.Printf("ingested %d chunks from %d files\n", n, len(args))
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Taxonomy category for all chunks (default: classify per chunk)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Maximum characters per chunk (default 1000)")
	cmd.Flags().IntVar(&overlap, "overlap", 0, "Characters of overlap between chunks (default 100)")

	return cmd
}
