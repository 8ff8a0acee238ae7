// Package wire holds the request and response shapes shared by the gRPC and HTTP APIs.
//
// Field rules use the `binding` tag so gin validates HTTP bodies with the
// same rules that Validate applies to gRPC payloads.
package wire

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/service/tracker"
)

//nolint:gochecknoglobals // validator caches struct metadata and is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")

	return v
}

// Validate applies the binding rules of v.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", tracking.ErrInvalidArgument, err)
	}

	return nil
}

// TargetSpec is a waypoint in a start request.
type TargetSpec struct {
	ID           string   `json:"id"                      binding:"required"`
	Latitude     float64  `json:"latitude"                binding:"latitude"`
	Longitude    float64  `json:"longitude"               binding:"longitude"`
	RadiusMeters *float64 `json:"radius_meters,omitempty" binding:"omitempty,gt=0"`
}

// StartSessionRequest starts tracking a vehicle.
type StartSessionRequest struct {
	VehicleID    string       `json:"vehicle_id"              binding:"required"`
	DriverID     string       `json:"driver_id"`
	TripType     string       `json:"trip_type"               binding:"required"`
	RadiusMeters float64      `json:"radius_meters,omitempty" binding:"gte=0"`
	Targets      []TargetSpec `json:"targets"                 binding:"dive"`
}

// ToDomain converts the request for the tracker.
func (r *StartSessionRequest) ToDomain() (tracker.StartRequest, error) {
	tripType, err := tracking.ParseTripType(r.TripType)
	if err != nil {
		return tracker.StartRequest{}, err
	}

	targets := make([]tracking.Target, len(r.Targets))
	for i, t := range r.Targets {
		targets[i] = tracking.Target{
			ID:           t.ID,
			Location:     tracking.Point{Latitude: t.Latitude, Longitude: t.Longitude},
			RadiusMeters: t.RadiusMeters,
		}
	}

	return tracker.StartRequest{
		VehicleID:    r.VehicleID,
		DriverID:     r.DriverID,
		TripType:     tripType,
		Targets:      targets,
		RadiusMeters: r.RadiusMeters,
	}, nil
}

// SessionRequest addresses an existing session.
type SessionRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// ReportPositionRequest feeds a fix into a session.
type ReportPositionRequest struct {
	SessionID string            `json:"session_id" binding:"required"`
	Position  tracking.Position `json:"position"`
}

// ReportPositionResponse tells whether the fix was newer than the last one.
type ReportPositionResponse struct {
	Accepted bool `json:"accepted"`
}

// EmergencyRequest raises an emergency for a vehicle.
type EmergencyRequest struct {
	VehicleID string `json:"vehicle_id" binding:"required"`
	DriverID  string `json:"driver_id"`
	Reason    string `json:"reason,omitempty"`
}

// EmergencyResponse carries the emitted event.
type EmergencyResponse struct {
	Event     *tracking.AlertEvent `json:"event"`
	Delivered bool                 `json:"delivered"`
}

// SessionView is the full session representation.
type SessionView struct {
	SessionID           string             `json:"session_id"`
	VehicleID           string             `json:"vehicle_id"`
	DriverID            string             `json:"driver_id,omitempty"`
	TripType            string             `json:"trip_type"`
	Status              string             `json:"status"`
	DefaultRadiusMeters float64            `json:"default_radius_meters"`
	Targets             []TargetSpec       `json:"targets"`
	AlertedTargetIDs    []string           `json:"alerted_target_ids"`
	StartedAt           time.Time          `json:"started_at"`
	CompletedAt         *time.Time         `json:"completed_at,omitempty"`
	LastPosition        *tracking.Position `json:"last_position,omitempty"`
}

// NewSessionView projects a session snapshot.
func NewSessionView(s *tracking.Session) *SessionView {
	targets := make([]TargetSpec, len(s.Targets))
	for i, t := range s.Targets {
		targets[i] = TargetSpec{
			ID:           t.ID,
			Latitude:     t.Location.Latitude,
			Longitude:    t.Location.Longitude,
			RadiusMeters: t.Clone().RadiusMeters,
		}
	}

	alerted := s.AlertedTargetIDs
	if alerted == nil {
		alerted = []string{}
	}

	return &SessionView{
		SessionID:           s.ID,
		VehicleID:           s.VehicleID,
		DriverID:            s.DriverID,
		TripType:            string(s.TripType),
		Status:              string(s.Status),
		DefaultRadiusMeters: s.DefaultRadiusMeters,
		Targets:             targets,
		AlertedTargetIDs:    alerted,
		StartedAt:           s.StartedAt,
		CompletedAt:         s.CompletedAt,
		LastPosition:        s.LastPosition,
	}
}

// StatusView is the polling representation of a session.
type StatusView struct {
	SessionID        string             `json:"session_id"`
	VehicleID        string             `json:"vehicle_id"`
	Status           string             `json:"status"`
	LastPosition     *tracking.Position `json:"last_position,omitempty"`
	AlertedTargetIDs []string           `json:"alerted_target_ids"`
}

// NewStatusView projects a session status.
func NewStatusView(s *tracking.SessionStatus) *StatusView {
	alerted := s.AlertedTargetIDs
	if alerted == nil {
		alerted = []string{}
	}

	return &StatusView{
		SessionID:        s.SessionID,
		VehicleID:        s.VehicleID,
		Status:           string(s.Status),
		LastPosition:     s.LastPosition,
		AlertedTargetIDs: alerted,
	}
}
