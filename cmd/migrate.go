package cmd

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/autocart/internal/config"
	"github.com/xkilldash9x/autocart/internal/observability"
	"github.com/xkilldash9x/autocart/internal/store"
)

// newMigrateCmd creates the `migrate` command, applying the database
// schema. Safe to re-run; every statement is IF NOT EXISTS.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Creates or updates the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			pool, err := pgxpool.New(ctx, cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()

			repo, err := store.New(ctx, pool, logger)
			if err != nil {
				return err
			}
			if err := repo.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("Database schema is up to date.")
			return nil
		},
	}
}
