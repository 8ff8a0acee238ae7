package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/bus-tracker/internal/config"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/service/checker"
	"github.com/oshokin/bus-tracker/internal/version"
)

var (
	// logLevel sets the log level.
	logLevel string
	// configPath stores the path to the configuration YAML file.
	configPath string
	// envFile is an optional dotenv file.
	envFile string
	// interval between status polls.
	interval time.Duration

	// rootCmd represents the base command for watching a session.
	rootCmd = &cobra.Command{
		Use:   "tracker-watch <session-id> [server-address]",
		Short: "Follow a bus trip.",
		Long: `Polls a tracking session and prints where the bus is.

Every approaching alert is printed once. The command exits when the trip is stopped.`,
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

			options := &checker.Options{
				ConfigPath:   configPath,
				SessionID:    args[0],
				PollInterval: interval,
			}

			if len(args) > 1 {
				options.ServerAddress = args[1]
			}

			return checker.Run(ctx, options)
		},
	}
)

// Execute runs the tracker-watch CLI and exits with non-zero status on error.
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
	rootCmd.Flags().DurationVarP(&interval, "interval", "i", checker.DefaultPollInterval, "status poll interval")
}
