package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sistc/ragcore/internal/logging"
)

// NewEvictCmd constructs the `ragcore evict` command, which removes stale
// knowledge records that were never verified as accurate.
func NewEvictCmd() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "evict",
		Short: "Evict stale unverified knowledge records",
		Long: `Delete knowledge records older than the eviction horizon that were
never verified as accurate. Verified-accurate records are kept regardless
of age.

Intended to run periodically (e.g. from cron) against the same knowledge
store the server uses.

Examples:
  ragcore evict
  ragcore evict --max-age 720h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := logging.WithLogger(cmd.Context(), rootLog)

			if maxAge > 0 {
				cfg.Lifecycle.MaxAge = maxAge
			}

			a, err := buildApp(ctx, rootLog)
			if err != nil {
				return fmt.Errorf("evict: %w", err)
			}
			defer a.Close()

			n, err := a.manager.EvictStale(ctx)
			if err != nil {
				return fmt.Errorf("evict: %w", err)
			}

			fmt.Printf("evicted %d stale records\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Eviction horizon override (default from config)")

	return cmd
}
