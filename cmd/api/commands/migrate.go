package commands

import (
	"context"

	"github.com/spf13/cobra"

	"apmdemo/internal/database"
	"apmdemo/internal/database/migration"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context())
		},
	}
}

func runMigrate(ctx context.Context) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	return migration.EnsureMigrated(ctx, db, lg, cfg.Database.Host)
}
