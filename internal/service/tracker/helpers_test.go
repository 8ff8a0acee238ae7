package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/geo"
	"github.com/oshokin/bus-tracker/internal/notifier"
	"github.com/oshokin/bus-tracker/internal/position"
	"github.com/oshokin/bus-tracker/internal/repository/location"
)

const vehicle = "KBX-101"

// school is the first pickup stop, on the outskirts of Nairobi.
var school = tracking.Point{Latitude: -1.2921, Longitude: 36.8219}

// east returns a fix the given distance due east of the stop.
func east(meters float64, ts time.Time) tracking.Position {
	lat, lng := geo.Offset(school.Latitude, school.Longitude, 90, meters)

	return tracking.Position{Latitude: lat, Longitude: lng, Speed: 8, Timestamp: ts}
}

func pickup(targets ...tracking.Target) StartRequest {
	if len(targets) == 0 {
		targets = []tracking.Target{{ID: "s-1", Location: school}}
	}

	return StartRequest{
		VehicleID: vehicle,
		DriverID:  "drv-7",
		TripType:  tracking.TripPickup,
		Targets:   targets,
	}
}

// recorder is a notifier that remembers what it was asked to deliver.
type recorder struct {
	err        error
	calls      int
	events     []*tracking.AlertEvent
	recipients []notifier.Recipients
	mu         sync.Mutex
}

func (r *recorder) Notify(_ context.Context, to notifier.Recipients, event *tracking.AlertEvent) (*notifier.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++

	if r.err != nil {
		return nil, r.err
	}

	r.events = append(r.events, event.Clone())
	r.recipients = append(r.recipients, to)

	return notifier.NewReceipt("recorder"), nil
}

func (r *recorder) Events() []*tracking.AlertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*tracking.AlertEvent(nil), r.events...)
}

func (r *recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls
}

// gate is a notifier that records the event and then holds the call until release is closed.
type gate struct {
	recorder

	release chan struct{}
}

func newGate() *gate {
	return &gate{release: make(chan struct{})}
}

func (g *gate) Notify(ctx context.Context, to notifier.Recipients, event *tracking.AlertEvent) (*notifier.Receipt, error) {
	receipt, err := g.recorder.Notify(ctx, to, event)

	<-g.release

	return receipt, err
}

// countingStore counts calls and can hold AppendPosition until the write is cancelled.
type countingStore struct {
	*location.MemoryStore

	blockAppend bool
	appends     int
	latest      int
	completes   int
	mu          sync.Mutex
}

func (s *countingStore) AppendPosition(ctx context.Context, vehicleID, sessionID string, p tracking.Position) error {
	s.mu.Lock()
	s.appends++
	block := s.blockAppend
	s.mu.Unlock()

	if block {
		<-ctx.Done()

		return ctx.Err()
	}

	return s.MemoryStore.AppendPosition(ctx, vehicleID, sessionID, p)
}

func (s *countingStore) SetLatest(ctx context.Context, vehicleID string, p tracking.Position) error {
	s.mu.Lock()
	s.latest++
	s.mu.Unlock()

	return s.MemoryStore.SetLatest(ctx, vehicleID, p)
}

func (s *countingStore) RecordSessionComplete(ctx context.Context, sessionID string, completedAt time.Time) error {
	s.mu.Lock()
	s.completes++
	s.mu.Unlock()

	return s.MemoryStore.RecordSessionComplete(ctx, sessionID, completedAt)
}

func (s *countingStore) counts() (appends, latest, completes int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appends, s.latest, s.completes
}

// newEngine builds an engine over hub with the ticker disabled unless opts say otherwise.
func newEngine(t *testing.T, hub *position.Hub, n notifier.Notifier, store location.Store, opts Options) *Engine {
	t.Helper()

	if opts.RepublishInterval == 0 {
		opts.RepublishInterval = -1
	}

	engine, err := New(Dependencies{Locator: hub, Store: store, Notifier: n}, opts)
	require.NoError(t, err)

	return engine
}
