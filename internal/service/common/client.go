//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	trackingapi "github.com/oshokin/bus-tracker/internal/api/grpc/tracking"
	"github.com/oshokin/bus-tracker/internal/api/wire"
	"github.com/oshokin/bus-tracker/internal/config"
	"github.com/oshokin/bus-tracker/internal/domain/tracking"
)

// Client wraps the TrackingService gRPC client with typed helpers.
type Client struct {
	// conn is the underlying gRPC connection to the tracker server.
	conn *grpc.ClientConn
	// api invokes TrackingService methods.
	api *trackingapi.TrackingServiceClient

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errRequestRequired is returned when a nil request is passed.
	errRequestRequired = errors.New("request must be provided")
)

// Dial establishes a gRPC connection to the tracker server.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy until native TLS is added.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial tracker server: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         trackingapi.NewTrackingServiceClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// StartSession starts tracking a vehicle.
func (c *Client) StartSession(ctx context.Context, req *wire.StartSessionRequest) (*wire.SessionView, error) {
	if req == nil {
		return nil, errRequestRequired
	}

	return invoke[wire.SessionView](ctx, c, trackingapi.MethodStartSession, req)
}

// StopSession completes a session.
func (c *Client) StopSession(ctx context.Context, sessionID string) (*wire.SessionView, error) {
	return invoke[wire.SessionView](ctx, c, trackingapi.MethodStopSession, &wire.SessionRequest{SessionID: sessionID})
}

// ReportPosition sends a fix for a session.
func (c *Client) ReportPosition(ctx context.Context, sessionID string, p tracking.Position) (bool, error) {
	resp, err := invoke[wire.ReportPositionResponse](ctx, c, trackingapi.MethodReportPosition,
		&wire.ReportPositionRequest{SessionID: sessionID, Position: p},
	)
	if err != nil {
		return false, err
	}

	return resp.Accepted, nil
}

// TriggerEmergency raises an emergency for a vehicle.
func (c *Client) TriggerEmergency(ctx context.Context, req *wire.EmergencyRequest) (*wire.EmergencyResponse, error) {
	if req == nil {
		return nil, errRequestRequired
	}

	return invoke[wire.EmergencyResponse](ctx, c, trackingapi.MethodTriggerEmergency, req)
}

// GetSessionStatus polls a session.
func (c *Client) GetSessionStatus(ctx context.Context, sessionID string) (*wire.StatusView, error) {
	return invoke[wire.StatusView](ctx, c, trackingapi.MethodGetSessionStatus, &wire.SessionRequest{SessionID: sessionID})
}

func invoke[T any](ctx context.Context, c *Client, method string, req any) (*T, error) {
	in, err := trackingapi.ToStruct(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	out, err := c.api.Invoke(callCtx, method, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	resp := new(T)
	if err := trackingapi.FromStruct(out, resp); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	return resp, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
