// Package commands defines all Cobra CLI commands for the ragcore binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sistc/ragcore/internal/audit"
	"github.com/sistc/ragcore/internal/config"
	"github.com/sistc/ragcore/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// cfg is the resolved configuration shared by all subcommands. It is
// populated by the root command's PersistentPreRunE before any RunE fires.
var cfg *config.Config

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// rootLog is the logger built from the resolved logging configuration.
var rootLog *slog.Logger

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragcore",
		Short: "ragcore — the SISTC student assistant retrieval core",
		Long: `ragcore is the confidence-gated retrieval core behind the SISTC student
assistant. It answers student questions about campuses, admissions, courses,
fees, visas, support services, and events from a curated knowledge store,
and teaches itself new facts from the web when its confidence is low.

Configuration is loaded from a YAML file (~/.ragcore/config.yaml by default,
override with --config) with environment variables taking precedence.
See 'ragcore --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			bootLog := logging.New()

			loaded, path, err := config.Load(configPath, bootLog)
			if err != nil {
				return err
			}
			cfg = loaded
			loadedConfigPath = path

			// Rebuild the logger from the resolved config so file-configured
			// level and format take effect (env vars still win inside Load).
			rootLog = logging.NewWith(cfg.Logging.Level, cfg.Logging.Format)

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(rootLog, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.ragcore/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewLearnCmd(),
		NewEvictCmd(),
		NewVersionCmd(),
	)

	return root
}
