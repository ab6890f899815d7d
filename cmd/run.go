package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autocart/api/schemas"
	"github.com/xkilldash9x/autocart/internal/browser"
	"github.com/xkilldash9x/autocart/internal/config"
	"github.com/xkilldash9x/autocart/internal/engine"
	"github.com/xkilldash9x/autocart/internal/observability"
	"github.com/xkilldash9x/autocart/internal/store"
)

// newRunCmd creates and configures the `run` command: one purchase,
// executed to a terminal state with progress printed as it lands.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [product-url]",
		Short: "Runs an automated purchase for the given product URL",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			userID, err := uuid.Parse(viper.GetString("user"))
			if err != nil {
				return fmt.Errorf("invalid --user id: %w", err)
			}

			pc, err := parseProductConfig(viper.GetInt("quantity"), viper.GetStringSlice("option"))
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

			manager, err := browser.NewManager(ctx, logger, cfg)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownGrace)
				defer cancel()
				if err := manager.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Browser shutdown reported an error.", zap.Error(err))
				}
			}()

			eng := engine.New(logger, cfg, repo, engine.ManagerFactory{Manager: manager})
			defer func() {
				// Drain in-flight runs before the browser manager tears
				// down their sessions.
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownGrace)
				defer cancel()
				if err := eng.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Engine shutdown reported an error.", zap.Error(err))
				}
			}()

			purchaseID, err := eng.Start(ctx, userID, args[0], pc)
			if err != nil {
				return fmt.Errorf("purchase could not be started: %w", err)
			}
			logger.Info("Purchase started.", zap.String("purchase_id", purchaseID.String()))

			snap, err := pollUntilTerminal(ctx, eng, purchaseID, cfg.Engine.StepPollInterval)
			if err != nil {
				return err
			}
			printSnapshot(cmd, snap)

			if snap["status"] == string(schemas.StatusFailed) {
				return fmt.Errorf("purchase failed: %v", snap["error"])
			}
			return nil
		},
	}

	runCmd.Flags().String("user", "", "UUID of the purchasing user (required)")
	runCmd.Flags().Int("quantity", 1, "product quantity")
	runCmd.Flags().StringSlice("option", nil, "product option as name=value (repeatable)")
	runCmd.Flags().Bool("headless", true, "run the browser headless")
	_ = runCmd.MarkFlagRequired("user")

	return runCmd
}

// parseProductConfig converts the flag inputs into a ProductConfig.
func parseProductConfig(quantity int, options []string) (schemas.ProductConfig, error) {
	if quantity < 1 {
		return schemas.ProductConfig{}, fmt.Errorf("--quantity must be at least 1")
	}
	pc := schemas.ProductConfig{Quantity: quantity}
	for _, opt := range options {
		parts := strings.SplitN(opt, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return schemas.ProductConfig{}, fmt.Errorf("invalid --option %q, expected name=value", opt)
		}
		if pc.Options == nil {
			pc.Options = make(map[string]string)
		}
		pc.Options[parts[0]] = parts[1]
	}
	return pc, nil
}

// pollUntilTerminal polls the snapshot until the purchase reaches a
// terminal status or ctx is canceled.
func pollUntilTerminal(ctx context.Context, eng *engine.Engine, id uuid.UUID, interval time.Duration) (map[string]any, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snap, err := eng.GetStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		status := schemas.PurchaseStatus(fmt.Sprint(snap["status"]))
		if status.Terminal() {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

// printSnapshot renders the snapshot as indented JSON on stdout.
func printSnapshot(cmd *cobra.Command, snap map[string]any) {
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		cmd.Printf("%v\n", snap)
		return
	}
	cmd.Println(string(out))
}
