package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/bus-tracker/internal/config"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/service/client"
	"github.com/oshokin/bus-tracker/internal/version"
)

var (
	logLevel   string
	configPath string
	envFile    string
	driverID   string
	reason     string

	rootCmd = &cobra.Command{
		Use:   "tracker-panic <vehicle-id> [server-address]",
		Short: "Raise an emergency for a vehicle.",
		Long: `Panic button for drivers.

Captures the vehicle's position on the server and broadcasts an emergency to dispatchers.
Retries every second until the alert is delivered. Works with or without an active trip.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if err := config.LoadEnvFiles(envFile); err != nil {
				return err
			}

			if err := logger.Setup(logLevel, ""); err != nil {
				return err
			}

			options := &client.Options{
				ConfigPath: configPath,
				VehicleID:  args[0],
				DriverID:   driverID,
				Reason:     reason,
			}

			if len(args) > 1 {
				options.ServerAddress = args[1]
			}

			return client.Run(ctx, options)
		},
	}
)

// Execute runs the tracker-panic CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.Flags().StringVarP(&envFile, "env-file", "e", ".env", "dotenv file with TRACKER_* overrides")
	rootCmd.Flags().StringVar(&driverID, "driver", "", "driver id, defaults to user@host")
	rootCmd.Flags().StringVarP(&reason, "reason", "r", "", "what happened")
}
