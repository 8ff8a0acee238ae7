package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/notifier"
	"github.com/oshokin/bus-tracker/internal/repository/location"
)

// Broadcaster raises emergency alerts. It works with or without an active session.
type Broadcaster struct {
	registry   *Registry
	reader     location.Reader
	dispatcher *dispatcher
	opts       Options
}

// NewBroadcaster creates a broadcaster over the registry's locator and notifier.
// reader is an optional last resort for the vehicle's position.
func NewBroadcaster(registry *Registry, reader location.Reader) *Broadcaster {
	return &Broadcaster{
		registry:   registry,
		reader:     reader,
		dispatcher: registry.dispatcher,
		opts:       registry.opts,
	}
}

// TriggerEmergency captures the vehicle's position and notifies every administrator.
// When delivery fails the event is returned together with ErrDeliveryFailed.
func (b *Broadcaster) TriggerEmergency(
	ctx context.Context,
	vehicleID, driverID, reason string,
) (*tracking.AlertEvent, error) {
	if vehicleID == "" {
		return nil, fmt.Errorf("%w: vehicle id is required", tracking.ErrInvalidArgument)
	}

	ctx = logger.WithFields(ctx, "vehicle_id", vehicleID, "driver_id", driverID)

	p, err := b.capture(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	event := &tracking.AlertEvent{
		ID:        uuid.NewString(),
		SessionID: b.registry.ActiveSessionID(vehicleID),
		VehicleID: vehicleID,
		DriverID:  driverID,
		Kind:      tracking.AlertEmergency,
		Position:  p,
		Reason:    reason,
		EmittedAt: time.Now().UTC(),
	}

	b.dispatcher.annotate(ctx, event)

	logger.WarnKV(ctx, "Emergency triggered",
		"event_id", event.ID,
		"session_id", event.SessionID,
		"reason", reason,
	)

	err = retry(ctx, b.opts.EmergencyNotifyAttempts, b.opts.NotifyBackoff,
		withTimeout(b.opts.NotifyTimeout, func(ctx context.Context) error {
			_, err := b.dispatcher.notifier.Notify(ctx, notifier.ForEmergency(), event)

			return err
		}),
	)
	if err != nil {
		logger.ErrorKV(ctx, "Emergency was not delivered", "event_id", event.ID, "error", err)

		return event, fmt.Errorf("%w: %w", tracking.ErrDeliveryFailed, err)
	}

	return event, nil
}

// capture asks the source for a fresh fix and falls back to the newest known one.
func (b *Broadcaster) capture(ctx context.Context, vehicleID string) (tracking.Position, error) {
	p, err := b.freshFix(ctx, vehicleID)
	if err == nil {
		return p, nil
	}

	if last, ok := b.registry.LastKnownPosition(vehicleID); ok {
		logger.WarnKV(ctx, "Using last known position for emergency", "error", err, "fix_time", last.Timestamp)

		return last, nil
	}

	if b.reader != nil {
		stored, readErr := b.reader.Latest(ctx, vehicleID)
		if readErr == nil {
			logger.WarnKV(ctx, "Using stored position for emergency", "error", err, "fix_time", stored.Timestamp)

			return stored, nil
		}

		if !errors.Is(readErr, location.ErrNotFound) {
			logger.WarnKV(ctx, "Failed to read stored position", "error", readErr)
		}
	}

	return tracking.Position{}, fmt.Errorf("%w: %w", tracking.ErrNoPositionAvailable, err)
}

func (b *Broadcaster) freshFix(ctx context.Context, vehicleID string) (tracking.Position, error) {
	source, err := b.registry.locator.Source(vehicleID)
	if err != nil {
		return tracking.Position{}, err
	}

	return source.GetOnce(ctx, b.opts.EmergencyFixTimeout, b.opts.EmergencyMaxFixAge)
}
