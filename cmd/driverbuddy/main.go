// README: Entry point; the driverbuddy CLI with the API server and operator tooling.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"driverbuddy/internal/config"
	"driverbuddy/internal/logger"
)

var (
	cfg config.Config
	log *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "driverbuddy",
		Short: "DriverBuddy - vehicle stop detection and driver SMS alerts",
		Long: `DriverBuddy ingests vehicle telemetry, detects stop/move transitions,
texts the driver when a stop begins and tracks SMS delivery and replies.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log = logger.New("driverbuddy", cfg.LogLevel)
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(driverCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(sendSMSCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
