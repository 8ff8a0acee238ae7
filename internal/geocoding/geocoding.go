// Package geocoding turns coordinates into display addresses for alerts.
//
// Addresses are metadata only; alert decisions never depend on them.
package geocoding

import (
	"context"
	"fmt"
	"math"

	"github.com/oshokin/bus-tracker/internal/geo"
)

// Geocoder resolves a coordinate to a human-readable address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// Nop never resolves anything.
type Nop struct{}

// ReverseGeocode returns an empty address.
func (Nop) ReverseGeocode(context.Context, float64, float64) (string, error) {
	return "", nil
}

// Place is a named landmark known to the static geocoder.
type Place struct {
	Name      string  `yaml:"name"      validate:"required"`
	Latitude  float64 `yaml:"latitude"  validate:"latitude"`
	Longitude float64 `yaml:"longitude" validate:"longitude"`
}

// Static resolves coordinates to the nearest configured place.
type Static struct {
	places      []Place
	maxDistance float64
}

// NewStatic creates a geocoder over a fixed list of places.
// Places farther than maxDistance meters are ignored; zero disables the limit.
func NewStatic(places []Place, maxDistance float64) *Static {
	return &Static{
		places:      append([]Place(nil), places...),
		maxDistance: maxDistance,
	}
}

// ReverseGeocode returns "near <place>" for the closest place, or "" when none qualifies.
func (s *Static) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	best, bestDistance := -1, math.Inf(1)

	for i, p := range s.places {
		d := geo.Distance(lat, lng, p.Latitude, p.Longitude)
		if d < bestDistance {
			best, bestDistance = i, d
		}
	}

	if best < 0 || (s.maxDistance > 0 && bestDistance > s.maxDistance) {
		return "", nil
	}

	return fmt.Sprintf("near %s (%.0f m)", s.places[best].Name, bestDistance), nil
}
