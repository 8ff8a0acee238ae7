package tracking

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/bus-tracker/internal/api/wire"
	domain "github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/position"
	"github.com/oshokin/bus-tracker/internal/service/tracker"
)

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	StartSession(ctx context.Context, req tracker.StartRequest) (*domain.Session, error)
	StopSession(ctx context.Context, sessionID string) error
	ReportPosition(ctx context.Context, sessionID string, p domain.Position) (bool, error)
	TriggerEmergency(ctx context.Context, vehicleID, driverID, reason string) (*domain.AlertEvent, error)
	GetSessionStatus(sessionID string) (*domain.SessionStatus, error)
	Get(sessionID string) (*domain.Session, error)
}

// Server implements tracker.v1.TrackingService.
type Server struct {
	// service provides the business logic for tracking operations.
	service Service
}

var _ TrackingServiceServer = (*Server)(nil)

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// StartSession starts tracking a vehicle and returns the new session.
func (s *Server) StartSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in wire.StartSessionRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}

	start, err := in.ToDomain()
	if err != nil {
		return nil, toStatus(err)
	}

	session, err := s.service.StartSession(ctx, start)
	if err != nil {
		return nil, toStatus(err)
	}

	return encode(wire.NewSessionView(session))
}

// StopSession completes a session and returns its final view.
func (s *Server) StopSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in wire.SessionRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}

	if err := s.service.StopSession(ctx, in.SessionID); err != nil {
		return nil, toStatus(err)
	}

	session, err := s.service.Get(in.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}

	return encode(wire.NewSessionView(session))
}

// ReportPosition feeds a fix into a session.
func (s *Server) ReportPosition(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in wire.ReportPositionRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}

	accepted, err := s.service.ReportPosition(ctx, in.SessionID, in.Position)
	if err != nil {
		return nil, toStatus(err)
	}

	return encode(&wire.ReportPositionResponse{Accepted: accepted})
}

// TriggerEmergency raises an emergency. A delivery failure is reported as Unavailable.
func (s *Server) TriggerEmergency(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in wire.EmergencyRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}

	event, err := s.service.TriggerEmergency(ctx, in.VehicleID, in.DriverID, in.Reason)
	if err != nil {
		if event != nil {
			logger.WarnKV(ctx, "Emergency created but not delivered", "event_id", event.ID, "error", err)
		}

		return nil, toStatus(err)
	}

	return encode(&wire.EmergencyResponse{Event: event, Delivered: true})
}

// GetSessionStatus returns the polling view of a session.
func (s *Server) GetSessionStatus(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in wire.SessionRequest
	if err := decode(req, &in); err != nil {
		return nil, err
	}

	st, err := s.service.GetSessionStatus(in.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}

	return encode(wire.NewStatusView(st))
}

func decode(req *structpb.Struct, v any) error {
	if req == nil {
		return status.Error(codes.InvalidArgument, "request is required")
	}

	if err := FromStruct(req, v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	if err := wire.Validate(v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	return nil
}

func encode(v any) (*structpb.Struct, error) {
	out, err := ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode response")
	}

	return out, nil
}

// toStatus maps domain and source errors to gRPC status codes.
func toStatus(err error) error {
	code := codes.Internal

	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, position.ErrInvalidFix):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrAlreadyTracking):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrSessionNotActive):
		code = codes.FailedPrecondition
	case errors.Is(err, position.ErrPermissionDenied):
		code = codes.PermissionDenied
	case errors.Is(err, domain.ErrNoPositionAvailable),
		errors.Is(err, domain.ErrDeliveryFailed),
		errors.Is(err, domain.ErrShuttingDown),
		errors.Is(err, position.ErrUnavailable):
		code = codes.Unavailable
	case errors.Is(err, position.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}

	return status.Error(code, err.Error())
}
