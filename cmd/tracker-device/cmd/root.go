package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/bus-tracker/internal/config"
	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/service/device"
	"github.com/oshokin/bus-tracker/internal/version"
)

var (
	logLevel   string
	configPath string
	envFile    string
	brokerURL  string
	latitude   float64
	longitude  float64
	bearing    float64
	speed      float64
	interval   time.Duration
	count      int

	rootCmd = &cobra.Command{
		Use:   "tracker-device <vehicle-id>",
		Short: "Simulate a GPS unit on the MQTT uplink.",
		Long: `Drives a straight route from the start coordinate and publishes a fix on every tick
to /fleet/vehicle/<vehicle-id>/location. Useful for demos and load checks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			if err := config.LoadEnvFiles(envFile); err != nil {
				return err
			}

			if err := logger.Setup(logLevel, ""); err != nil {
				return err
			}

			options := &device.Options{
				ConfigPath: configPath,
				BrokerURL:  brokerURL,
				VehicleID:  args[0],
				Route: device.Route{
					Start:   tracking.Point{Latitude: latitude, Longitude: longitude},
					Bearing: bearing,
					Speed:   speed,
				},
				Interval: interval,
				Count:    count,
			}

			return device.Run(ctx, options)
		},
	}
)

// Execute runs the tracker-device CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&envFile, "env-file", "e", ".env", "dotenv file with TRACKER_* overrides")
	flags.StringVarP(&brokerURL, "broker", "b", "", "MQTT broker url override")
	flags.Float64Var(&latitude, "lat", -1.2921, "start latitude")
	flags.Float64Var(&longitude, "lng", 36.8219, "start longitude")
	flags.Float64Var(&bearing, "bearing", 90, "bearing in degrees")
	flags.Float64Var(&speed, "speed", 10, "speed in m/s")
	flags.DurationVarP(&interval, "interval", "i", device.DefaultInterval, "fix interval")
	flags.IntVarP(&count, "count", "n", 0, "stop after n fixes, 0 runs forever")
}
