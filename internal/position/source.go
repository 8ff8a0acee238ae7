// Package position abstracts where vehicle location fixes come from.
//
// A Source yields single fixes (GetOnce) or a cancellable stream of fixes
// (Subscribe). Hub is the in-process implementation: feeders such as the MQTT
// uplink or the GTFS-Realtime poller publish fixes into it and sessions
// subscribe to the vehicles they track.
package position

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
)

var (
	// ErrTimeout is returned when no acceptable fix arrives in time.
	ErrTimeout = errors.New("position timeout")
	// ErrPermissionDenied is returned when the vehicle's location provider refuses access.
	ErrPermissionDenied = errors.New("position permission denied")
	// ErrUnavailable is returned when the location provider cannot serve requests.
	ErrUnavailable = errors.New("position unavailable")
	// ErrInvalidFix is returned when a feeder publishes a malformed fix.
	ErrInvalidFix = errors.New("invalid position fix")
)

// Source is a single vehicle's location provider.
type Source interface {
	// GetOnce returns a fix no older than maxAge, waiting up to timeout for one.
	GetOnce(ctx context.Context, timeout, maxAge time.Duration) (tracking.Position, error)
	// Subscribe opens a stream of fixes spaced at least minInterval apart.
	// The context bounds only the subscribe call itself.
	Subscribe(ctx context.Context, minInterval time.Duration) (Subscription, error)
}

// Subscription is a stream of fixes owned by one consumer.
type Subscription interface {
	// Positions yields fixes until Cancel is called. The channel is closed on cancel.
	Positions() <-chan tracking.Position
	// Cancel stops delivery immediately. Calling it again is a no-op.
	Cancel()
}

// Locator resolves the Source for a vehicle.
type Locator interface {
	Source(vehicleID string) (Source, error)
}
