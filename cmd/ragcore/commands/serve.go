package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/sistc/ragcore/internal/logging"
	"github.com/sistc/ragcore/internal/server"
	"github.com/sistc/ragcore/internal/tracing"
)

// NewServeCmd constructs the `ragcore serve` command, which starts the HTTP
// server exposing the answer pipeline.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragcore HTTP server",
		Long: `Start the ragcore HTTP server.

The server exposes POST /api/answer for student questions, plus health,
readiness, and Prometheus metrics endpoints. Qdrant, SQLite durability,
and web learning are enabled per the resolved configuration; each degrades
to disabled with a warning when its backend is unreachable.

Examples:
  ragcore serve
  ragcore serve --port 9090
  RAGCORE_API_KEY=sekrit ragcore serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := rootLog
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", cfg.Model.Provider))

			// Langfuse tracing is opt-in; a no-op unless keys are configured.
			handler, flush, ok := tracing.Setup(cfg.Tracing.Host, cfg.Tracing.PublicKey, cfg.Tracing.SecretKey)
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "no langfuse public key configured"))
			}

			a, err := buildApp(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.Close()

			if host == "" {
				host = cfg.Server.Host
			}
			if port == 0 {
				port = cfg.Server.Port
			}

			srv, err := server.New(a.engine, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: buildPingers(a),
				APIKey:  cfg.Server.APIKey,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default from config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default from config)")

	return cmd
}
