package tracking

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Point is a WGS84 coordinate pair.
type Point struct {
	// Latitude in decimal degrees.
	Latitude float64 `json:"latitude"`
	// Longitude in decimal degrees.
	Longitude float64 `json:"longitude"`
}

// Position is a single location fix reported for a vehicle.
type Position struct {
	// Latitude in decimal degrees.
	Latitude float64 `json:"latitude"`
	// Longitude in decimal degrees.
	Longitude float64 `json:"longitude"`
	// Accuracy is the horizontal accuracy radius in meters.
	Accuracy float64 `json:"accuracy"`
	// Speed is the ground speed in meters per second.
	Speed float64 `json:"speed"`
	// Heading is the course over ground in degrees from true north.
	Heading float64 `json:"heading"`
	// Timestamp is when the fix was taken by the device.
	Timestamp time.Time `json:"timestamp"`
}

// Point returns the coordinates of the fix.
func (p Position) Point() Point {
	return Point{Latitude: p.Latitude, Longitude: p.Longitude}
}

// Clone returns a copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}

	cloned := *p

	return &cloned
}

// TripType tells whether a trip collects or delivers students.
type TripType string

const (
	// TripPickup collects students from their stops.
	TripPickup TripType = "pickup"
	// TripDropoff delivers students to their stops.
	TripDropoff TripType = "dropoff"
)

// ParseTripType converts user input into a TripType.
func ParseTripType(s string) (TripType, error) {
	switch TripType(strings.ToLower(strings.TrimSpace(s))) {
	case TripPickup:
		return TripPickup, nil
	case TripDropoff:
		return TripDropoff, nil
	default:
		return "", fmt.Errorf("%w: unknown trip type %q", ErrInvalidArgument, s)
	}
}

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusIdle is a session that has been created but not started.
	// A session is idle only while it is being started, so readers never see it.
	StatusIdle Status = "idle"
	// StatusActive is a session that accepts positions and emits alerts.
	StatusActive Status = "active"
	// StatusCompleted is a stopped session. It is terminal and read-only.
	StatusCompleted Status = "completed"
)

// Target is a waypoint watched for proximity during a session.
type Target struct {
	// ID identifies the waypoint, usually the student id.
	ID string `json:"id"`
	// Location is the waypoint coordinate.
	Location Point `json:"location"`
	// RadiusMeters overrides the session default radius when set.
	RadiusMeters *float64 `json:"radius_meters,omitempty"`
}

// Radius returns the alert radius for the target.
func (t Target) Radius(defaultRadius float64) float64 {
	if t.RadiusMeters != nil && *t.RadiusMeters > 0 {
		return *t.RadiusMeters
	}

	return defaultRadius
}

// Clone returns a deep copy of the target.
func (t Target) Clone() Target {
	if t.RadiusMeters != nil {
		radius := *t.RadiusMeters
		t.RadiusMeters = &radius
	}

	return t
}

// Session is a snapshot of one vehicle's trip.
type Session struct {
	// ID is the unique session identifier.
	ID string
	// VehicleID identifies the tracked vehicle.
	VehicleID string
	// DriverID identifies the driver operating the vehicle.
	DriverID string
	// TripType is pickup or dropoff.
	TripType TripType
	// Targets are the waypoints watched during the session.
	Targets []Target
	// AlertedTargetIDs lists targets already alerted, in alert order.
	AlertedTargetIDs []string
	// DefaultRadiusMeters applies to targets without their own radius.
	DefaultRadiusMeters float64
	// Status is the lifecycle state.
	Status Status
	// StartedAt is when the session became active.
	StartedAt time.Time
	// CompletedAt is set once the session is stopped.
	CompletedAt *time.Time
	// LastPosition is the newest accepted fix.
	LastPosition *Position
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	cloned := *s

	cloned.Targets = make([]Target, len(s.Targets))
	for i, t := range s.Targets {
		cloned.Targets[i] = t.Clone()
	}

	cloned.AlertedTargetIDs = slices.Clone(s.AlertedTargetIDs)
	cloned.LastPosition = s.LastPosition.Clone()

	if s.CompletedAt != nil {
		completedAt := *s.CompletedAt
		cloned.CompletedAt = &completedAt
	}

	return &cloned
}

// SessionStatus is the read model returned to polling clients.
type SessionStatus struct {
	SessionID        string
	VehicleID        string
	Status           Status
	LastPosition     *Position
	AlertedTargetIDs []string
}

// StatusOf projects a session into its status view.
func StatusOf(s *Session) *SessionStatus {
	return &SessionStatus{
		SessionID:        s.ID,
		VehicleID:        s.VehicleID,
		Status:           s.Status,
		LastPosition:     s.LastPosition.Clone(),
		AlertedTargetIDs: slices.Clone(s.AlertedTargetIDs),
	}
}

// AlertKind distinguishes proximity alerts from emergencies.
type AlertKind string

const (
	// AlertApproaching is raised once per target when the vehicle first enters its radius.
	AlertApproaching AlertKind = "approaching"
	// AlertEmergency is raised by the driver and is never deduplicated.
	AlertEmergency AlertKind = "emergency"
)

// AlertEvent is an immutable notification produced by the tracker.
type AlertEvent struct {
	// ID is the unique event identifier.
	ID string `json:"id"`
	// SessionID is the session the event belongs to. Empty for emergencies without an active session.
	SessionID string `json:"session_id,omitempty"`
	// VehicleID identifies the vehicle.
	VehicleID string `json:"vehicle_id"`
	// DriverID identifies the driver.
	DriverID string `json:"driver_id,omitempty"`
	// TargetID is the approached waypoint. Empty for emergencies.
	TargetID string `json:"target_id,omitempty"`
	// Kind is approaching or emergency.
	Kind AlertKind `json:"kind"`
	// DistanceMeters is the distance to the target when the alert fired.
	DistanceMeters float64 `json:"distance_meters"`
	// Position is the fix that produced the event.
	Position Position `json:"position"`
	// Reason is the driver-provided cause of an emergency.
	Reason string `json:"reason,omitempty"`
	// Address is human-readable display metadata for Position.
	Address string `json:"address,omitempty"`
	// EmittedAt is when the event was created.
	EmittedAt time.Time `json:"emitted_at"`
}

// Clone returns a copy of the event.
func (e *AlertEvent) Clone() *AlertEvent {
	if e == nil {
		return nil
	}

	cloned := *e

	return &cloned
}
