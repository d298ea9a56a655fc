package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gourl/shortcode/internal/config"
	"github.com/gourl/shortcode/internal/database"
	"github.com/gourl/shortcode/internal/engine"
	"github.com/gourl/shortcode/internal/server"
	"github.com/gourl/shortcode/pkg/logger"
)

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the code generation HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending database migrations before serving")
	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(os.Stdout, cfg.App.LogLevel).With("service", "shortcoded")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	if migrate && st.router != nil {
		if err := migrateShards(ctx, st.router, log); err != nil {
			return err
		}
	}

	eng, err := engine.New(cfg.Engine, st.engineDeps(log.With("component", "engine")))
	if err != nil {
		return err
	}
	eng.Start()
	defer eng.Stop()

	srv := server.New(cfg, log)
	srv.SetEngine(eng)
	if st.router != nil {
		srv.AddReadyCheck("store", st.router.HealthCheck)
	} else {
		srv.AddReadyCheck("store", st.store.HealthCheck)
	}
	srv.AddReadyCheck("cache", st.existence.Ping)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// migrateShards applies pending migrations on every shard.
func migrateShards(ctx context.Context, router *database.ShardRouter, log *logger.Logger) error {
	for i, pool := range router.GetAllShards() {
		m, err := database.NewMigrator(pool)
		if err != nil {
			return err
		}
		n, err := m.Up(ctx)
		if err != nil {
			return fmt.Errorf("shard %d: %w", i, err)
		}
		log.Info("migrations applied", "shard", i, "count", n)
	}
	return nil
}
