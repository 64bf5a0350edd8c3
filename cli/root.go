// Package cli wires the cardmart commands: the API server and the
// database migrator.
package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/cardmart/cardmart/engine/infra/postgres"
	"github.com/cardmart/cardmart/engine/infra/server"
	"github.com/cardmart/cardmart/pkg/config"
	"github.com/cardmart/cardmart/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// RootCmd builds the cardmart command tree.
func RootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cardmart",
		Short:         "Agent transaction core for the card marketplace",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to the env file")
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			srv, err := server.NewServer(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initializing server: %w", err)
			}
			return srv.Run(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			if err := postgres.ApplyMigrations(ctx, cfg.Database.DSN); err != nil {
				return err
			}
			logger.FromContext(ctx).Info("migrations applied")
			return nil
		},
	}
}

// bootstrap loads the env file and configuration, initializes the process
// logger and returns a signal-aware context.
func bootstrap(cmd *cobra.Command) (context.Context, *config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	// A missing env file is fine; the environment may carry everything.
	_ = godotenv.Load(envFile)
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.LogLevel(cfg.Log.Level)
	logCfg.JSON = cfg.Log.JSON
	logCfg.AddSource = cfg.Log.Source
	logger.Init(logCfg)
	ctx := logger.ContextWithLogger(cmd.Context(), logger.GetDefault())
	return ctx, cfg, nil
}
