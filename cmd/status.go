package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/autocart/internal/config"
	"github.com/xkilldash9x/autocart/internal/observability"
	"github.com/xkilldash9x/autocart/internal/store"
)

// newStatusCmd creates the `status` command: a read-only snapshot of
// one purchase record.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [purchase-id]",
		Short: "Prints the current state of a purchase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			purchaseID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid purchase id: %w", err)
			}

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

			rec, err := repo.GetPurchase(ctx, purchaseID)
			if err != nil {
				return err
			}
			printSnapshot(cmd, rec.Snapshot())
			return nil
		},
	}
}
