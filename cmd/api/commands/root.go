// Package commands implements the apmdemo command line: serve, migrate and seed.
package commands

import (
	"context"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"apmdemo/internal/config"
	"apmdemo/internal/logger"
)

var (
	cfg *config.AppConfig
	lg  zerolog.Logger
)

// Execute runs the CLI. Without a subcommand the API server is started.
func Execute() error {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		lg.Error().Err(err).Msg("command_failed")
		return err
	}
	return nil
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "apmdemo",
		Short:         "Demo CRUD API instrumented for APM",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Load()
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			lg = logger.Init(cfg)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (trace, debug, info, warn, error)")

	root.AddCommand(serveCmd(), migrateCmd(), seedCmd())
	return root
}
