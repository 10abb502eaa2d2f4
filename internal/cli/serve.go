package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/metalhouse/fleshrecord/internal/app"
	"github.com/metalhouse/fleshrecord/internal/config"
	"github.com/metalhouse/fleshrecord/internal/logger"
)

// NewServeCommand creates the serve command: scheduler plus HTTP server.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the report scheduler and HTTP server",
		Long: `Start the tick-driven report scheduler and the HTTP surface.
Configuration comes from environment variables; see the README for the
full list.

Example:
  USER_CONFIG_DIR=./data/users FIREFLY_API_URL=http://ledger:8080/api/v1 fleshrecord serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			application, err := app.New(cfg, log)
			if err != nil {
				return err
			}
			return application.Run(context.Background())
		},
	}
}
