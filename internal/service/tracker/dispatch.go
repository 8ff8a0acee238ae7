package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/geo"
	"github.com/oshokin/bus-tracker/internal/geocoding"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/notifier"
)

// dispatcher decides which targets a fix alerts and hands events to the notifier.
type dispatcher struct {
	notifier notifier.Notifier
	geocoder geocoding.Geocoder
	opts     Options
}

// evaluate returns an approaching event for every target entered for the first time.
// It marks those targets as alerted, so the caller must hold the session lock.
func (d *dispatcher) evaluate(s *tracking.Session, alerted map[string]struct{}, p tracking.Position) []*tracking.AlertEvent {
	var events []*tracking.AlertEvent

	for _, target := range s.Targets {
		if _, ok := alerted[target.ID]; ok {
			continue
		}

		distance := geo.Distance(p.Latitude, p.Longitude, target.Location.Latitude, target.Location.Longitude)
		if distance > target.Radius(s.DefaultRadiusMeters) {
			continue
		}

		alerted[target.ID] = struct{}{}
		s.AlertedTargetIDs = append(s.AlertedTargetIDs, target.ID)

		events = append(events, &tracking.AlertEvent{
			ID:             uuid.NewString(),
			SessionID:      s.ID,
			VehicleID:      s.VehicleID,
			DriverID:       s.DriverID,
			TargetID:       target.ID,
			Kind:           tracking.AlertApproaching,
			DistanceMeters: distance,
			Position:       p,
			EmittedAt:      time.Now().UTC(),
		})
	}

	return events
}

// emitApproaching delivers the event with retries. Failures are logged only:
// the target stays alerted and is not retried on later fixes.
func (d *dispatcher) emitApproaching(ctx context.Context, event *tracking.AlertEvent) {
	ctx = context.WithoutCancel(ctx)

	d.annotate(ctx, event)

	err := retry(ctx, d.opts.NotifyAttempts, d.opts.NotifyBackoff,
		withTimeout(d.opts.NotifyTimeout, func(ctx context.Context) error {
			_, err := d.notifier.Notify(ctx, notifier.ForApproaching(event), event)

			return err
		}),
	)
	if err != nil {
		logger.WarnKV(ctx, "Approaching alert was not delivered",
			"event_id", event.ID,
			"target_id", event.TargetID,
			"error", err,
		)

		return
	}

	logger.InfoKV(ctx, "Approaching alert sent",
		"event_id", event.ID,
		"target_id", event.TargetID,
		"distance_meters", event.DistanceMeters,
	)
}

// annotate fills the display address. Lookup failures leave it empty.
func (d *dispatcher) annotate(ctx context.Context, event *tracking.AlertEvent) {
	lookupCtx, cancel := context.WithTimeout(ctx, d.opts.GeocodeTimeout)
	defer cancel()

	address, err := d.geocoder.ReverseGeocode(lookupCtx, event.Position.Latitude, event.Position.Longitude)
	if err != nil {
		logger.DebugKV(ctx, "Reverse geocoding failed", "event_id", event.ID, "error", err)

		return
	}

	event.Address = address
}
