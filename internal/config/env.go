package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables that override the YAML settings.
const (
	EnvGRPCAddress   = "TRACKER_GRPC_ADDR"
	EnvHTTPAddress   = "TRACKER_HTTP_ADDR"
	EnvStoreDriver   = "TRACKER_STORE_DRIVER"
	EnvStoreDSN      = "TRACKER_STORE_DSN"
	EnvAMQPURL       = "TRACKER_AMQP_URL"
	EnvNATSURL       = "TRACKER_NATS_URL"
	EnvMQTTURL       = "TRACKER_MQTT_URL"
	EnvGTFSRTURL     = "TRACKER_GTFSRT_URL"
	EnvDefaultRadius = "TRACKER_DEFAULT_RADIUS_METERS"
	EnvLogLevel      = "TRACKER_LOG_LEVEL"
	EnvLogFormat     = "TRACKER_LOG_FORMAT"
	EnvTimeout       = "TRACKER_TIMEOUT"
)

// LoadEnvFiles loads variables from .env files into the process environment.
// Missing files are ignored and variables that are already set win.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}

	return nil
}

// ApplyEnv overrides settings with TRACKER_* variables.
// A store driver from the environment replaces every configured backend.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	setString(&cfg.Server.GRPCAddress, EnvGRPCAddress)
	setString(&cfg.Server.HTTPAddress, EnvHTTPAddress)
	setString(&cfg.Notifier.AMQP.URL, EnvAMQPURL)
	setString(&cfg.Notifier.NATS.URL, EnvNATSURL)
	setString(&cfg.Uplink.BrokerURL, EnvMQTTURL)
	setString(&cfg.GTFSRT.URL, EnvGTFSRTURL)
	setString(&cfg.Logging.Level, EnvLogLevel)
	setString(&cfg.Logging.Format, EnvLogFormat)

	if driver, ok := os.LookupEnv(EnvStoreDriver); ok {
		cfg.Store.Backends = []StoreBackend{{Driver: driver, DSN: os.Getenv(EnvStoreDSN)}}
	}

	if v, ok := os.LookupEnv(EnvDefaultRadius); ok {
		radius, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvDefaultRadius, err)
		}

		cfg.Tracking.DefaultRadiusMeters = radius
	}

	if v, ok := os.LookupEnv(EnvTimeout); ok {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvTimeout, err)
		}

		cfg.Timeout = timeout
	}

	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}
