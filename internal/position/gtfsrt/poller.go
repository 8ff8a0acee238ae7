// Package gtfsrt feeds vehicle positions from a GTFS-Realtime VehiclePositions
// endpoint into the position hub.
package gtfsrt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/position"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = 15 * time.Second

// maxFeedSize caps the response body read from the feed.
const maxFeedSize = 16 << 20

var errUnexpectedStatus = errors.New("unexpected HTTP status")

// Publisher accepts fixes decoded from the feed.
type Publisher interface {
	Publish(vehicleID string, p tracking.Position) error
}

// Poller periodically downloads a VehiclePositions feed.
type Poller struct {
	// url is the feed endpoint.
	url string
	// interval is the time between polls.
	interval time.Duration
	// httpClient performs the requests.
	httpClient *http.Client
	// publisher receives decoded fixes.
	publisher Publisher
	// now supplies the fallback timestamp for entities without one.
	now func() time.Time
}

// Option configures a Poller.
type Option func(*Poller)

// WithHTTPClient sets the HTTP client used to fetch the feed.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Poller) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithInterval sets the polling period.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// NewPoller creates a poller for the given feed URL.
func NewPoller(url string, publisher Publisher, opts ...Option) *Poller {
	p := &Poller{
		url:        url,
		interval:   DefaultInterval,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		publisher:  publisher,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run polls the feed until the context is canceled.
// Errors from a single poll are logged and do not stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "gtfsrt")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		published, err := p.Poll(ctx)
		switch {
		case errors.Is(err, position.ErrUnavailable):
			return nil
		case err != nil:
			logger.WarnKV(ctx, "GTFS-RT poll failed", "url", p.url, "error", err)
		default:
			logger.DebugKV(ctx, "GTFS-RT feed processed", "published", published)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll fetches the feed once and publishes every usable vehicle position.
// It returns the number of fixes accepted by the publisher.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	feed, err := p.fetch(ctx)
	if err != nil {
		return 0, err
	}

	var headerTimestamp uint64
	if feed.GetHeader() != nil {
		headerTimestamp = feed.GetHeader().GetTimestamp()
	}

	published := 0

	for _, entity := range feed.GetEntity() {
		vehicleID, fix, ok := p.toFix(entity, headerTimestamp)
		if !ok {
			continue
		}

		err := p.publisher.Publish(vehicleID, fix)
		switch {
		case err == nil:
			published++
		case errors.Is(err, position.ErrInvalidFix):
			logger.DebugKV(ctx, "Skipped invalid GTFS-RT entity", "entity_id", entity.GetId(), "error", err)
		default:
			return published, fmt.Errorf("publish %s: %w", vehicleID, err)
		}
	}

	return published, nil
}

func (p *Poller) fetch(ctx context.Context) (*gtfsrtpb.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", p.url, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w %d from %s", errUnexpectedStatus, resp.StatusCode, p.url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	var feed gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	return &feed, nil
}

// toFix extracts the vehicle id and position of an entity.
// The vehicle descriptor id wins over its label, then over the entity id.
func (p *Poller) toFix(entity *gtfsrtpb.FeedEntity, headerTimestamp uint64) (string, tracking.Position, bool) {
	vp := entity.GetVehicle()
	if vp == nil || vp.GetPosition() == nil {
		return "", tracking.Position{}, false
	}

	vehicleID := vp.GetVehicle().GetId()
	if vehicleID == "" {
		vehicleID = vp.GetVehicle().GetLabel()
	}

	if vehicleID == "" {
		vehicleID = entity.GetId()
	}

	if vehicleID == "" {
		return "", tracking.Position{}, false
	}

	ts := vp.GetTimestamp()
	if ts == 0 {
		ts = headerTimestamp
	}

	timestamp := p.now().UTC()
	if ts > 0 {
		timestamp = time.Unix(int64(ts), 0).UTC() //nolint:gosec // POSIX seconds fit in int64.
	}

	pos := vp.GetPosition()

	return vehicleID, tracking.Position{
		Latitude:  float64(pos.GetLatitude()),
		Longitude: float64(pos.GetLongitude()),
		Speed:     float64(pos.GetSpeed()),
		Heading:   float64(pos.GetBearing()),
		Timestamp: timestamp,
	}, true
}
