package notifier

import (
	"context"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/logger"
)

// Log writes alerts to the context logger instead of delivering them.
type Log struct{}

// Notify logs the event. Emergencies are logged at warning level.
func (Log) Notify(ctx context.Context, to Recipients, event *tracking.AlertEvent) (*Receipt, error) {
	if event == nil {
		return nil, ErrNoEvent
	}

	kvs := []any{
		"event_id", event.ID,
		"kind", event.Kind,
		"vehicle_id", event.VehicleID,
		"session_id", event.SessionID,
		"target_id", event.TargetID,
		"distance_meters", event.DistanceMeters,
		"audience", to.Audience,
	}

	if event.Kind == tracking.AlertEmergency {
		logger.WarnKV(ctx, "Emergency alert", append(kvs, "reason", event.Reason, "address", event.Address)...)
	} else {
		logger.InfoKV(ctx, "Approaching alert", kvs...)
	}

	return NewReceipt("log"), nil
}
