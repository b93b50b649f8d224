package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"housing-allocation-backend/internal/bootstrap"
	"housing-allocation-backend/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:           "matchctl",
		Short:         "Operate the housing allocation matching engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		runCmd(),
		approveCmd(),
		rejectCmd(),
		statsCmd(),
		migrateCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() (*logrus.Logger, error) {
	return config.NewLogger(cfg.LogLevel, cfg.LogFormat)
}

func newApp(cmd *cobra.Command) (*bootstrap.App, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	logger.SetOutput(os.Stderr)
	return bootstrap.New(cmd.Context(), cfg, logger)
}
