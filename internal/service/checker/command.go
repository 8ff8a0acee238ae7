package checker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/oshokin/bus-tracker/internal/api/wire"
	"github.com/oshokin/bus-tracker/internal/config"
	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/service/common"
)

// Options controls the watcher polling behavior and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional gRPC server address override.
	ServerAddress string
	// SessionID is the watched session.
	SessionID string
	// PollInterval defines the interval between status checks.
	PollInterval time.Duration
}

// DefaultPollInterval defines the polling interval for status checks.
const DefaultPollInterval = 5 * time.Second

var (
	// errSessionCompleted indicates that the watched session is over.
	errSessionCompleted = errors.New("session completed")
	// errSessionRequired is returned when no session id is given.
	errSessionRequired = errors.New("session id must be provided")
)

// Run polls the session status until the session completes or the context is canceled.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "tracker-watch")

	if opts.SessionID == "" {
		return errSessionRequired
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	serverAddress := cfg.Server.GRPCAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	defer func() {
		_ = client.Close()
	}()

	logger.InfoKV(ctx, "Watching session",
		"server_address", serverAddress,
		"session_id", opts.SessionID,
		"interval", opts.PollInterval.String(),
	)

	w := &watcher{seen: make(map[string]struct{})}

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		status, err := client.GetSessionStatus(ctx, opts.SessionID)
		if err == nil {
			err = w.observe(ctx, status)
		}

		switch {
		case errors.Is(err, errSessionCompleted):
			logger.Info(ctx, "Session completed, exiting")

			return nil
		case err != nil:
			logger.ErrorKV(ctx, "Check status failed", "error", err)
		}

		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")

			return nil
		case <-ticker.C:
		}
	}
}

// watcher remembers which alerts were already reported.
type watcher struct {
	seen map[string]struct{}
}

// observe logs the status and any target alerted since the previous poll.
// It returns errSessionCompleted once the session is over.
func (w *watcher) observe(ctx context.Context, status *wire.StatusView) error {
	for _, id := range w.fresh(status.AlertedTargetIDs) {
		logger.InfoKV(ctx, "Vehicle is approaching", "vehicle_id", status.VehicleID, "target_id", id)
	}

	if p := status.LastPosition; p != nil {
		logger.Infof(ctx, "Session %s: vehicle %s at %.5f,%.5f (%s)",
			status.Status, status.VehicleID, p.Latitude, p.Longitude, p.Timestamp.Format(time.RFC3339))
	} else {
		logger.Infof(ctx, "Session %s: vehicle %s has no position yet", status.Status, status.VehicleID)
	}

	if status.Status == string(tracking.StatusCompleted) {
		return errSessionCompleted
	}

	return nil
}

// fresh returns the ids not reported before, in server order.
func (w *watcher) fresh(ids []string) []string {
	var out []string

	for _, id := range ids {
		if _, ok := w.seen[id]; ok {
			continue
		}

		w.seen[id] = struct{}{}
		out = append(out, id)
	}

	return slices.Clip(out)
}
