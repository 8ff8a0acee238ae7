package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/bus-tracker/internal/geocoding"
)

// TestValidate checks required fields and format validations for Settings.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing socket.
	settings := new(Config)

	err := Validate(settings)
	require.ErrorIs(t, err, errServerSocketRequired)

	// Bad socket.
	settings = &Config{
		Server: ServerConfig{GRPCAddress: "bad:address"},
	}

	err = Validate(settings)
	require.Error(t, err)

	// Unknown store driver.
	settings = &Config{
		Server: ServerConfig{GRPCAddress: "127.0.0.1:0"},
		Store:  StoreConfig{Backends: []StoreBackend{{Driver: "mongo", DSN: "x"}}},
	}

	err = Validate(settings)
	require.Error(t, err)

	// SQL backends need a DSN.
	settings = &Config{
		Server: ServerConfig{GRPCAddress: "127.0.0.1:0"},
		Store:  StoreConfig{Backends: []StoreBackend{{Driver: StorePostgres}}},
	}

	err = Validate(settings)
	require.Error(t, err)

	// Landmarks must be on the map.
	settings = &Config{
		Server:    ServerConfig{GRPCAddress: "127.0.0.1:0"},
		Geocoding: GeocodingConfig{Places: []geocoding.Place{{Name: "Gate", Latitude: 120}}},
	}

	err = Validate(settings)
	require.Error(t, err)

	// Bad log format.
	settings = &Config{
		Server:  ServerConfig{GRPCAddress: "127.0.0.1:0"},
		Logging: LoggingConfig{Format: "xml"},
	}

	err = Validate(settings)
	require.Error(t, err)

	// Okay, defaults filled in.
	settings = &Config{
		Server: ServerConfig{GRPCAddress: "127.0.0.1:0", HTTPAddress: "127.0.0.1:0"},
		GTFSRT: GTFSRTConfig{URL: "https://feeds.example.com/vehicle-positions.pb"},
	}

	err = Validate(settings)
	require.NoError(t, err)
	require.Equal(t, DefaultTimeout, settings.Timeout)
	require.Equal(t, []StoreBackend{{Driver: StoreMemory}}, settings.Store.Backends)
	require.Equal(t, DefaultUplinkTopic, settings.Uplink.Topic)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	settings := &Config{
		Server: ServerConfig{GRPCAddress: "127.0.0.1:50051", HTTPAddress: "127.0.0.1:8080"},
		Tracking: TrackingConfig{
			DefaultRadiusMeters: 650,
			RepublishInterval:   20 * time.Second,
		},
		Store: StoreConfig{Backends: []StoreBackend{
			{Driver: StoreSQLite, DSN: filepath.Join(dir, "tracker.db")},
			{Driver: StoreRedis, DSN: "redis://127.0.0.1:6379/0"},
		}},
		Geocoding: GeocodingConfig{
			Places: []geocoding.Place{
				{Name: "Parklands Gate", Latitude: -1.2921, Longitude: 36.8219},
			},
			Timeout: 1500 * time.Millisecond,
		},
	}

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings.Server, loaded.Server)
	require.Equal(t, settings.Tracking, loaded.Tracking)
	require.Equal(t, settings.Store.Backends, loaded.Store.Backends)
	require.Equal(t, settings.Geocoding.Places, loaded.Geocoding.Places)
	require.Equal(t, 1500*time.Millisecond, loaded.Geocoding.Timeout)

	// File exists.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

// TestLoad_EnvironmentOverrides checks that TRACKER_* variables win over the file.
func TestLoad_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	require.NoError(t, os.WriteFile(path, []byte(`
server:
  grpc_addr: 127.0.0.1:50051
tracking:
  default_radius_meters: 800
logging:
  level: info
`), DefaultFilePermissions))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TRACKER_LOG_FORMAT=json\n"), DefaultFilePermissions))

	t.Setenv(EnvGRPCAddress, "127.0.0.1:6000")
	t.Setenv(EnvDefaultRadius, "450")
	t.Setenv(EnvStoreDriver, StoreSQLite)
	t.Setenv(EnvStoreDSN, filepath.Join(dir, "tracker.db"))
	t.Setenv(EnvTimeout, "3s")
	// Registered so t.Setenv restores it after godotenv sets it.
	t.Setenv(EnvLogFormat, "")
	require.NoError(t, os.Unsetenv(EnvLogFormat))

	require.NoError(t, LoadEnvFiles(envFile, filepath.Join(dir, "missing.env")))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6000", cfg.Server.GRPCAddress)
	require.InDelta(t, 450, cfg.Tracking.DefaultRadiusMeters, 0)
	require.Equal(t, []StoreBackend{{Driver: StoreSQLite, DSN: filepath.Join(dir, "tracker.db")}}, cfg.Store.Backends)
	require.Equal(t, 3*time.Second, cfg.Timeout)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)

	t.Setenv(EnvTimeout, "soon")

	_, err = Load(path)
	require.Error(t, err)
}
