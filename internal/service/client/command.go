package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/bus-tracker/internal/api/wire"
	"github.com/oshokin/bus-tracker/internal/config"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/service/common"
)

// Options configures the panic button.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string

	// ServerAddress overrides server address from config when specified.
	ServerAddress string

	// VehicleID is the vehicle in distress.
	VehicleID string

	// DriverID defaults to user@host.
	DriverID string

	// Reason is an optional free-text cause.
	Reason string
}

// defaultPushInterval defines retry delay when the emergency could not be delivered.
const defaultPushInterval = 1 * time.Second

var errVehicleRequired = errors.New("vehicle id must be provided")

// Run triggers the emergency with retry logic until it is delivered or the context is canceled.
// Every attempt is a separate emergency, receivers may see more than one.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "tracker-panic")

	if opts.VehicleID == "" {
		return errVehicleRequired
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	serverAddress := cfg.Server.GRPCAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	driverID := opts.DriverID
	if driverID == "" {
		if driverID, err = common.DetectDriver(); err != nil {
			return err
		}
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	logger.InfoKV(ctx, "Triggering emergency", "server_address", serverAddress, "vehicle_id", opts.VehicleID)

	req := &wire.EmergencyRequest{
		VehicleID: opts.VehicleID,
		DriverID:  driverID,
		Reason:    opts.Reason,
	}

	attempt := func() bool {
		resp, err := client.TriggerEmergency(ctx, req)
		if err != nil {
			// Transient failures are retried.
			logger.ErrorKV(ctx, "TriggerEmergency failed", "error", err)

			return false
		}

		if !resp.Delivered {
			return false
		}

		logger.Infof(ctx, "Emergency delivered: %s", formatEvent(resp))

		return true
	}

	if attempt() {
		return nil
	}

	ticker := time.NewTicker(defaultPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if attempt() {
				return nil
			}
		}
	}
}

// formatEvent converts the emergency response to a readable log message.
func formatEvent(resp *wire.EmergencyResponse) string {
	if resp == nil || resp.Event == nil {
		return "<nil event>"
	}

	event := resp.Event

	where := fmt.Sprintf("%.5f,%.5f", event.Position.Latitude, event.Position.Longitude)
	if event.Address != "" {
		where = event.Address + " (" + where + ")"
	}

	driver := event.DriverID
	if driver == "" {
		driver = "<unknown>"
	}

	return fmt.Sprintf("%s for %s by %s at %s (%s)",
		event.ID, event.VehicleID, driver, where, event.EmittedAt.Format(time.RFC3339))
}
