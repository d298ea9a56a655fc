package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gourl/shortcode/internal/config"
	"github.com/gourl/shortcode/internal/database"
	"github.com/gourl/shortcode/pkg/logger"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the code store schema on every shard",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRouter(cmd.Context(), func(router *database.ShardRouter, log *logger.Logger) error {
					return migrateShards(cmd.Context(), router, log)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRouter(cmd.Context(), func(router *database.ShardRouter, log *logger.Logger) error {
					for i, pool := range router.GetAllShards() {
						m, err := database.NewMigrator(pool)
						if err != nil {
							return err
						}
						if err := m.Down(cmd.Context()); err != nil {
							return fmt.Errorf("shard %d: %w", i, err)
						}
						log.Info("migration rolled back", "shard", i)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the schema version and pending migrations per shard",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withRouter(cmd.Context(), func(router *database.ShardRouter, _ *logger.Logger) error {
					return printStatus(cmd.Context(), cmd.OutOrStdout(), router)
				})
			},
		},
	)
	return cmd
}

// withRouter connects to every configured shard for the duration of fn.
func withRouter(ctx context.Context, fn func(*database.ShardRouter, *logger.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.DatabaseEnabled() {
		return fmt.Errorf("database is not configured: set DB_HOST and DB_PASSWORD")
	}

	log := logger.New(os.Stderr, cfg.App.LogLevel)

	router, err := database.RouterFromConfig(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer router.Close()

	return fn(router, log)
}

func printStatus(ctx context.Context, w io.Writer, router *database.ShardRouter) error {
	for i, pool := range router.GetAllShards() {
		m, err := database.NewMigrator(pool)
		if err != nil {
			return err
		}
		if err := m.EnsureMigrationsTable(ctx); err != nil {
			return fmt.Errorf("shard %d: %w", i, err)
		}
		version, err := m.CurrentVersion(ctx)
		if err != nil {
			return fmt.Errorf("shard %d: %w", i, err)
		}
		pending, err := m.PendingMigrations(ctx)
		if err != nil {
			return fmt.Errorf("shard %d: %w", i, err)
		}
		fmt.Fprintf(w, "shard %d: version %d, %d pending\n", i, version, len(pending))
		for _, mig := range pending {
			fmt.Fprintf(w, "  %03d_%s\n", mig.Version, mig.Name)
		}
	}
	return nil
}
