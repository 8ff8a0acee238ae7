package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/bus-tracker/internal/config"
	"github.com/oshokin/bus-tracker/internal/service/server"
	"github.com/oshokin/bus-tracker/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// envFile is an optional dotenv file loaded before the configuration.
	envFile string
	// httpAddress overrides the HTTP API listen address.
	httpAddress string
	// logLevel overrides the configured log level.
	logLevel string

	// rootCmd represents the base command for running the tracker server.
	rootCmd = &cobra.Command{
		Use:   "tracker-server [listen-address]",
		Short: "Run the school bus tracker.",
		Long: `Starts the tracker that follows vehicles during pickup and drop-off trips.

Positions arrive from the MQTT device uplink, the GTFS-Realtime feed or the API.
Approaching alerts and driver emergencies are delivered to every configured notifier.
Only the port from the configured gRPC address is used for listening (e.g., :7443).
Listen address can be provided as argument to override config (e.g., :9090, 0.0.0.0:7443).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if err := config.LoadEnvFiles(envFile); err != nil {
				return err
			}

			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &server.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				HTTPAddress:   httpAddress,
				LogLevel:      logLevel,
			}

			return server.Run(ctx, options)
		},
	}
)

// Execute runs the tracker-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&envFile, "env-file", "e", ".env", "dotenv file with TRACKER_* overrides")
	rootCmd.Flags().StringVar(&httpAddress, "http", "", "HTTP API listen address override")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level override (debug, info, warn, error)")
}
