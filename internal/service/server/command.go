package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/oshokin/bus-tracker/internal/config"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/version"
)

// Options controls the tracker-server process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// HTTPAddress provides an optional listen address override for the HTTP API.
	HTTPAddress string
	// LogLevel overrides logging.level from config.
	LogLevel string
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// Run loads the configuration, binds the listeners and serves until the context is canceled.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "tracker-server")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}

	if err := logger.Setup(level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}

	if err := logger.SetComponentLevels(cfg.Logging.Components); err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}

	logger.InfoKV(ctx, "Starting tracker server", "version", version.Full())

	grpcAddress, err := resolveListenAddress(cfg.Server.GRPCAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	lc := net.ListenConfig{}

	grpcListener, err := lc.Listen(ctx, "tcp", grpcAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", grpcAddress, err)
	}

	var httpListener net.Listener

	httpAddress := opts.HTTPAddress
	if httpAddress == "" && cfg.Server.HTTPAddress != "" {
		if httpAddress, err = resolveListenAddress(cfg.Server.HTTPAddress, ""); err != nil {
			_ = grpcListener.Close()

			return fmt.Errorf("resolve http address: %w", err)
		}
	}

	if httpAddress != "" {
		if httpListener, err = lc.Listen(ctx, "tcp", httpAddress); err != nil {
			_ = grpcListener.Close()

			return fmt.Errorf("listen on %s: %w", httpAddress, err)
		}
	}

	srv, err := New(ctx, cfg)
	if err != nil {
		_ = grpcListener.Close()

		if httpListener != nil {
			_ = httpListener.Close()
		}

		return fmt.Errorf("initialise server: %w", err)
	}

	return srv.Serve(ctx, grpcListener, httpListener)
}

// resolveListenAddress determines the listen address for a server.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	// Bind on all interfaces.
	return ":" + port, nil
}
