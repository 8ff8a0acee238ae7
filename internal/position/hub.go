package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/geo"
)

// DefaultBufferSize is the per-subscription channel capacity.
const DefaultBufferSize = 16

// Hub is an in-process broker of fixes keyed by vehicle id.
// It remembers the newest fix of every vehicle and fans fixes out to subscribers.
type Hub struct {
	// vehicles holds per-vehicle state, created lazily.
	vehicles map[string]*vehicleFeed
	// denied lists vehicles whose provider refuses access.
	denied map[string]struct{}
	// now is the clock used for fix age checks.
	now func() time.Time
	// bufferSize is the capacity of every subscription channel.
	bufferSize int
	// closed is set once the hub stops serving.
	closed bool
	// mu protects all fields above.
	mu sync.Mutex
}

// vehicleFeed is the hub's state for one vehicle.
type vehicleFeed struct {
	// latest is the newest fix by timestamp.
	latest *tracking.Position
	// fresh is closed and replaced on every publish to wake GetOnce waiters.
	fresh chan struct{}
	// subs are the open subscriptions.
	subs map[*subscription]struct{}
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithBufferSize sets the subscription channel capacity.
func WithBufferSize(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.bufferSize = size
		}
	}
}

// WithClock overrides the clock used for fix age checks.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		vehicles:   make(map[string]*vehicleFeed),
		denied:     make(map[string]struct{}),
		now:        time.Now,
		bufferSize: DefaultBufferSize,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Source returns the vehicle's view of the hub.
//
//nolint:ireturn // Locator contract.
func (h *Hub) Source(vehicleID string) (Source, error) {
	if vehicleID == "" {
		return nil, fmt.Errorf("%w: vehicle id is required", tracking.ErrInvalidArgument)
	}

	return &vehicleSource{hub: h, vehicleID: vehicleID}, nil
}

// Publish records a fix for the vehicle and delivers it to subscribers.
// Fixes older than the newest known one are still delivered; consumers discard them.
func (h *Hub) Publish(vehicleID string, p tracking.Position) error {
	if vehicleID == "" || !geo.Valid(p.Latitude, p.Longitude) || p.Timestamp.IsZero() {
		return fmt.Errorf("%w: vehicle %q at (%f, %f)", ErrInvalidFix, vehicleID, p.Latitude, p.Longitude)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrUnavailable
	}

	feed := h.feedLocked(vehicleID)
	if feed.latest == nil || p.Timestamp.After(feed.latest.Timestamp) {
		fix := p
		feed.latest = &fix

		close(feed.fresh)
		feed.fresh = make(chan struct{})
	}

	for sub := range feed.subs {
		sub.offer(p)
	}

	return nil
}

// Latest returns the newest fix known for the vehicle.
func (h *Hub) Latest(vehicleID string) (tracking.Position, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	feed, ok := h.vehicles[vehicleID]
	if !ok || feed.latest == nil {
		return tracking.Position{}, false
	}

	return *feed.latest, true
}

// Deny makes the vehicle's provider refuse access.
func (h *Hub) Deny(vehicleID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.denied[vehicleID] = struct{}{}
}

// Allow restores access to the vehicle's provider.
func (h *Hub) Allow(vehicleID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.denied, vehicleID)
}

// Close stops the hub and closes every subscription.
func (h *Hub) Close() {
	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()

		return
	}

	h.closed = true

	var subs []*subscription

	for _, feed := range h.vehicles {
		for sub := range feed.subs {
			subs = append(subs, sub)
		}

		close(feed.fresh)
		feed.fresh = make(chan struct{})
	}

	h.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

// feedLocked returns the vehicle feed, creating it when missing. Caller holds h.mu.
func (h *Hub) feedLocked(vehicleID string) *vehicleFeed {
	feed, ok := h.vehicles[vehicleID]
	if !ok {
		feed = &vehicleFeed{
			fresh: make(chan struct{}),
			subs:  make(map[*subscription]struct{}),
		}
		h.vehicles[vehicleID] = feed
	}

	return feed
}

// checkLocked reports why the vehicle cannot be served. Caller holds h.mu.
func (h *Hub) checkLocked(vehicleID string) error {
	if h.closed {
		return ErrUnavailable
	}

	if _, ok := h.denied[vehicleID]; ok {
		return fmt.Errorf("%w: vehicle %s", ErrPermissionDenied, vehicleID)
	}

	return nil
}

func (h *Hub) remove(vehicleID string, sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if feed, ok := h.vehicles[vehicleID]; ok {
		delete(feed.subs, sub)
	}
}

// vehicleSource is a Source bound to one vehicle of a Hub.
type vehicleSource struct {
	hub       *Hub
	vehicleID string
}

// GetOnce returns the newest fix if it is younger than maxAge, otherwise waits for a fresh one.
func (s *vehicleSource) GetOnce(ctx context.Context, timeout, maxAge time.Duration) (tracking.Position, error) {
	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		s.hub.mu.Lock()

		if err := s.hub.checkLocked(s.vehicleID); err != nil {
			s.hub.mu.Unlock()

			return tracking.Position{}, err
		}

		feed := s.hub.feedLocked(s.vehicleID)
		latest, wait := feed.latest, feed.fresh
		now := s.hub.now()

		s.hub.mu.Unlock()

		if latest != nil && (maxAge <= 0 || now.Sub(latest.Timestamp) <= maxAge) {
			return *latest, nil
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return tracking.Position{}, fmt.Errorf("%w: vehicle %s: %w", ErrTimeout, s.vehicleID, ctx.Err())
		}
	}
}

// Subscribe registers a new subscription for the vehicle.
//
//nolint:ireturn // Source contract.
func (s *vehicleSource) Subscribe(ctx context.Context, minInterval time.Duration) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	if err := s.hub.checkLocked(s.vehicleID); err != nil {
		return nil, err
	}

	sub := &subscription{
		hub:         s.hub,
		vehicleID:   s.vehicleID,
		ch:          make(chan tracking.Position, s.hub.bufferSize),
		minInterval: minInterval,
	}

	s.hub.feedLocked(s.vehicleID).subs[sub] = struct{}{}

	return sub, nil
}

// subscription is a buffered per-consumer stream.
type subscription struct {
	hub       *Hub
	vehicleID string
	// ch carries fixes to the consumer.
	ch chan tracking.Position
	// minInterval is the minimal fix-time spacing between deliveries.
	minInterval time.Duration
	// lastSent is the timestamp of the last delivered fix.
	lastSent time.Time
	// closed is set once ch is closed.
	closed bool
	// mu serializes offer and Cancel.
	mu   sync.Mutex
	once sync.Once
}

// Positions returns the delivery channel.
func (s *subscription) Positions() <-chan tracking.Position {
	return s.ch
}

// Cancel detaches the subscription from the hub and closes its channel.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.hub.remove(s.vehicleID, s)

		s.mu.Lock()
		defer s.mu.Unlock()

		s.closed = true
		close(s.ch)
	})
}

// offer delivers p without blocking, dropping the oldest queued fix when the buffer is full.
func (s *subscription) offer(p tracking.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if s.minInterval > 0 && !s.lastSent.IsZero() && p.Timestamp.Sub(s.lastSent) < s.minInterval {
		return
	}

	select {
	case s.ch <- p:
	default:
		select {
		case <-s.ch:
		default:
		}

		select {
		case s.ch <- p:
		default:
		}
	}

	s.lastSent = p.Timestamp
}
