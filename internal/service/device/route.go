package device

import (
	"time"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/geo"
)

// Route is a straight drive at constant speed.
type Route struct {
	Start tracking.Point
	// Bearing in degrees from true north.
	Bearing float64
	// Speed in meters per second.
	Speed float64
	// Accuracy reported with every fix.
	Accuracy float64
}

// At returns the fix after driving for elapsed.
func (r Route) At(elapsed time.Duration, now time.Time) tracking.Position {
	lat, lng := geo.Offset(r.Start.Latitude, r.Start.Longitude, r.Bearing, r.Speed*elapsed.Seconds())

	return tracking.Position{
		Latitude:  lat,
		Longitude: lng,
		Accuracy:  r.Accuracy,
		Speed:     r.Speed,
		Heading:   r.Bearing,
		Timestamp: now.UTC(),
	}
}
