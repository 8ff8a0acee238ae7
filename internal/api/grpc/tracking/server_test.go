package tracking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/bus-tracker/internal/api/wire"
	domain "github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/position"
	"github.com/oshokin/bus-tracker/internal/service/tracker"
)

// fakeService implements Service for unit testing the transport.
type fakeService struct {
	started   tracker.StartRequest
	reported  domain.Position
	startErr  error
	reportErr error
	event     *domain.AlertEvent
	eventErr  error
}

func (f *fakeService) StartSession(_ context.Context, req tracker.StartRequest) (*domain.Session, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}

	f.started = req

	return &domain.Session{
		ID:                  "sess-1",
		VehicleID:           req.VehicleID,
		DriverID:            req.DriverID,
		TripType:            req.TripType,
		Targets:             req.Targets,
		DefaultRadiusMeters: 800,
		Status:              domain.StatusActive,
		StartedAt:           time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC),
	}, nil
}

func (f *fakeService) StopSession(context.Context, string) error { return nil }

func (f *fakeService) ReportPosition(_ context.Context, _ string, p domain.Position) (bool, error) {
	f.reported = p

	return f.reportErr == nil, f.reportErr
}

func (f *fakeService) TriggerEmergency(context.Context, string, string, string) (*domain.AlertEvent, error) {
	return f.event, f.eventErr
}

func (f *fakeService) GetSessionStatus(id string) (*domain.SessionStatus, error) {
	if id != "sess-1" {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	return &domain.SessionStatus{SessionID: id, VehicleID: "KBX-101", Status: domain.StatusActive}, nil
}

func (f *fakeService) Get(id string) (*domain.Session, error) {
	return &domain.Session{ID: id, VehicleID: "KBX-101", Status: domain.StatusCompleted}, nil
}

func mustStruct(t *testing.T, v any) *structpb.Struct {
	t.Helper()

	s, err := ToStruct(v)
	require.NoError(t, err)

	return s
}

// TestServer_Validation ensures invalid requests return InvalidArgument errors.
func TestServer_Validation(t *testing.T) {
	t.Parallel()

	s := NewServer(new(fakeService))

	_, err := s.StartSession(context.Background(), nil)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.StartSession(context.Background(), mustStruct(t, map[string]any{"trip_type": "pickup"}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.StartSession(context.Background(), mustStruct(t, map[string]any{
		"vehicle_id": "KBX-101",
		"trip_type":  "field-trip",
	}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.GetSessionStatus(context.Background(), new(structpb.Struct))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

// TestServer_StartSession decodes targets and encodes the session view.
func TestServer_StartSession(t *testing.T) {
	t.Parallel()

	service := new(fakeService)
	s := NewServer(service)

	resp, err := s.StartSession(context.Background(), mustStruct(t, map[string]any{
		"vehicle_id": "KBX-101",
		"driver_id":  "drv-7",
		"trip_type":  "pickup",
		"targets": []any{
			map[string]any{"id": "s-1", "latitude": -1.2921, "longitude": 36.8219, "radius_meters": 300},
		},
	}))
	require.NoError(t, err)
	require.Equal(t, "KBX-101", service.started.VehicleID)
	require.Equal(t, domain.TripPickup, service.started.TripType)
	require.InDelta(t, 300, service.started.Targets[0].Radius(800), 0)

	var view wire.SessionView
	require.NoError(t, FromStruct(resp, &view))
	require.Equal(t, "sess-1", view.SessionID)
	require.Equal(t, "active", view.Status)
	require.Equal(t, "s-1", view.Targets[0].ID)
	require.True(t, view.StartedAt.Equal(time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)))
}

// TestServer_ReportPosition passes the fix through unchanged.
func TestServer_ReportPosition(t *testing.T) {
	t.Parallel()

	service := new(fakeService)
	s := NewServer(service)
	ts := time.Date(2026, 3, 2, 7, 31, 0, 0, time.UTC)

	resp, err := s.ReportPosition(context.Background(), mustStruct(t, &wire.ReportPositionRequest{
		SessionID: "sess-1",
		Position:  domain.Position{Latitude: -1.29, Longitude: 36.82, Speed: 7.5, Timestamp: ts},
	}))
	require.NoError(t, err)
	require.True(t, resp.GetFields()["accepted"].GetBoolValue())
	require.True(t, service.reported.Timestamp.Equal(ts))
	require.InDelta(t, 7.5, service.reported.Speed, 0)
}

// TestToStatus maps every sentinel to its gRPC code.
func TestToStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		code codes.Code
	}{
		{domain.ErrInvalidArgument, codes.InvalidArgument},
		{domain.ErrAlreadyTracking, codes.AlreadyExists},
		{domain.ErrNotFound, codes.NotFound},
		{domain.ErrSessionNotActive, codes.FailedPrecondition},
		{domain.ErrDeliveryFailed, codes.Unavailable},
		{fmt.Errorf("%w: %w", domain.ErrNoPositionAvailable, position.ErrTimeout), codes.Unavailable},
		{position.ErrPermissionDenied, codes.PermissionDenied},
		{position.ErrTimeout, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}

	for _, tt := range tests {
		require.Equal(t, tt.code, status.Code(toStatus(fmt.Errorf("wrapped: %w", tt.err))), tt.err.Error())
	}
}

// TestServer_TriggerEmergencyDeliveryFailure reports Unavailable.
func TestServer_TriggerEmergencyDeliveryFailure(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeService{
		event:    &domain.AlertEvent{ID: "evt-1", Kind: domain.AlertEmergency},
		eventErr: domain.ErrDeliveryFailed,
	})

	_, err := s.TriggerEmergency(context.Background(), mustStruct(t, &wire.EmergencyRequest{VehicleID: "KBX-101"}))
	require.Equal(t, codes.Unavailable, status.Code(err))
}
