package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/bus-tracker/internal/geocoding"
)

// Config holds the settings of the tracker server and its clients.
type Config struct {
	// Server holds the listen addresses. Clients dial Server.GRPCAddress.
	Server ServerConfig `yaml:"server"`
	// Tracking tunes tracking sessions.
	Tracking TrackingConfig `yaml:"tracking"`
	// Emergency tunes emergency broadcasts.
	Emergency EmergencyConfig `yaml:"emergency"`
	// Store selects the location store backends.
	Store StoreConfig `yaml:"store"`
	// Notifier selects the alert transports.
	Notifier NotifierConfig `yaml:"notifier"`
	// Uplink is the MQTT device uplink.
	Uplink UplinkConfig `yaml:"uplink"`
	// GTFSRT is the GTFS-Realtime vehicle positions feed.
	GTFSRT GTFSRTConfig `yaml:"gtfsrt"`
	// Geocoding lists the landmarks used for alert addresses.
	Geocoding GeocodingConfig `yaml:"geocoding"`
	// Logging sets the log level and encoding.
	Logging LoggingConfig `yaml:"logging"`
	// Timeout is the duration for client RPC calls.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// ServerConfig holds listen addresses.
type ServerConfig struct {
	GRPCAddress string `yaml:"grpc_addr"`
	// HTTPAddress is optional; empty disables the HTTP API.
	HTTPAddress string `yaml:"http_addr"`
}

// TrackingConfig maps onto the tracker engine options.
type TrackingConfig struct {
	DefaultRadiusMeters float64       `yaml:"default_radius_meters" validate:"gte=0"`
	MinInterval         time.Duration `yaml:"min_interval"          validate:"gte=0"`
	RepublishInterval   time.Duration `yaml:"republish_interval"`
	StopWait            time.Duration `yaml:"stop_wait"             validate:"gte=0"`
	CompletedRetention  time.Duration `yaml:"completed_retention"   validate:"gte=0"`
	WriteQueueSize      int           `yaml:"write_queue_size"      validate:"gte=0"`
}

// EmergencyConfig tunes emergency broadcasts.
type EmergencyConfig struct {
	FixTimeout     time.Duration `yaml:"fix_timeout"     validate:"gte=0"`
	MaxFixAge      time.Duration `yaml:"max_fix_age"     validate:"gte=0"`
	NotifyAttempts int           `yaml:"notify_attempts" validate:"gte=0"`
}

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite3"
	StoreRedis    = "redis"
)

// StoreConfig lists the location store backends. Writes go to every backend;
// the first readable one answers position queries.
type StoreConfig struct {
	Backends      []StoreBackend `yaml:"backends"       validate:"dive"`
	WriteAttempts int            `yaml:"write_attempts" validate:"gte=0"`
	RetryBackoff  time.Duration  `yaml:"retry_backoff"  validate:"gte=0"`
	WriteTimeout  time.Duration  `yaml:"write_timeout"  validate:"gte=0"`
	// RedisKeyPrefix and RedisTTL apply to redis backends.
	RedisKeyPrefix string        `yaml:"redis_key_prefix"`
	RedisTTL       time.Duration `yaml:"redis_ttl" validate:"gte=0"`
}

// StoreBackend is one store. DSN is a database DSN, an SQLite file or a redis:// URL.
type StoreBackend struct {
	Driver string `yaml:"driver" validate:"required,oneof=memory postgres sqlite3 redis"`
	DSN    string `yaml:"dsn"    validate:"required_unless=Driver memory"`
}

// NotifierConfig selects alert transports. Every configured transport receives every alert.
type NotifierConfig struct {
	// Log writes alerts to the log. It is used when nothing else is configured.
	Log      bool           `yaml:"log"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	NATS     NATSConfig     `yaml:"nats"`
	LiveFeed LiveFeedConfig `yaml:"live_feed"`
	Attempts int            `yaml:"attempts" validate:"gte=0"`
	Backoff  time.Duration  `yaml:"backoff"  validate:"gte=0"`
	Timeout  time.Duration  `yaml:"timeout"  validate:"gte=0"`
}

// AMQPConfig is the RabbitMQ publisher.
type AMQPConfig struct {
	URL      string `yaml:"url"      validate:"omitempty,url"`
	Exchange string `yaml:"exchange"`
}

// NATSConfig is the NATS publisher.
type NATSConfig struct {
	URL           string `yaml:"url"            validate:"omitempty,url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// LiveFeedConfig is the WebSocket alert feed served on the HTTP API.
type LiveFeedConfig struct {
	Enabled bool `yaml:"enabled"`
}

// UplinkConfig is the MQTT device uplink. Empty BrokerURL disables it.
type UplinkConfig struct {
	BrokerURL string `yaml:"broker_url" validate:"omitempty,url"`
	ClientID  string `yaml:"client_id"`
	Topic     string `yaml:"topic"`
	QoS       byte   `yaml:"qos"        validate:"lte=2"`
}

// GTFSRTConfig is the vehicle positions poller. Empty URL disables it.
type GTFSRTConfig struct {
	URL      string        `yaml:"url"      validate:"omitempty,url"`
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
}

// GeocodingConfig feeds the static geocoder.
type GeocodingConfig struct {
	MaxDistanceMeters float64           `yaml:"max_distance_meters" validate:"gte=0"`
	Places            []geocoding.Place `yaml:"places"              validate:"dive"`
	// Timeout bounds one address lookup. Zero uses the engine default.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// LoggingConfig sets up the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"  validate:"omitempty,oneof=debug info warn warning error dpanic panic fatal"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
	// Components overrides the level of named loggers, e.g. mqtt: warn.
	Components map[string]string `yaml:"components" validate:"dive,oneof=debug info warn warning error dpanic panic fatal"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "bus-tracker.yaml"

	// DefaultTimeout is the default duration for client RPC calls.
	DefaultTimeout = 5 * time.Second

	// DefaultUplinkTopic is the MQTT topic filter for device fixes.
	DefaultUplinkTopic = "/fleet/vehicle/+/location"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errServerSocketRequired is returned when server address is missing.
	errServerSocketRequired = errors.New("server address must be provided")
)

//nolint:gochecknoglobals // validator caches struct metadata and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from the provided path, applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes Settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills defaults for empty optional fields.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.Server.GRPCAddress == "" {
		return errServerSocketRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.Server.GRPCAddress); err != nil {
		return fmt.Errorf("invalid server socket: %w", err)
	}

	if settings.Server.HTTPAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", settings.Server.HTTPAddress); err != nil {
			return fmt.Errorf("invalid http socket: %w", err)
		}
	}

	if err := validate.Struct(settings); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	// Set default timeout if not specified
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if len(settings.Store.Backends) == 0 {
		settings.Store.Backends = []StoreBackend{{Driver: StoreMemory}}
	}

	if settings.Uplink.Topic == "" {
		settings.Uplink.Topic = DefaultUplinkTopic
	}

	return nil
}
