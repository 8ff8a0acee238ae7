package tracker

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/geo"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/position"
	"github.com/oshokin/bus-tracker/internal/repository/location"
)

// StartRequest describes a session to start.
type StartRequest struct {
	VehicleID string
	DriverID  string
	TripType  tracking.TripType
	Targets   []tracking.Target
	// RadiusMeters is the session default radius. Zero uses the engine default.
	RadiusMeters float64
}

func (r *StartRequest) validate() error {
	switch {
	case r.VehicleID == "":
		return fmt.Errorf("%w: vehicle id is required", tracking.ErrInvalidArgument)
	case r.TripType != tracking.TripPickup && r.TripType != tracking.TripDropoff:
		return fmt.Errorf("%w: unknown trip type %q", tracking.ErrInvalidArgument, r.TripType)
	case r.RadiusMeters < 0 || math.IsNaN(r.RadiusMeters) || math.IsInf(r.RadiusMeters, 0):
		return fmt.Errorf("%w: radius must be a positive number", tracking.ErrInvalidArgument)
	}

	seen := make(map[string]struct{}, len(r.Targets))

	for _, t := range r.Targets {
		if t.ID == "" {
			return fmt.Errorf("%w: target id is required", tracking.ErrInvalidArgument)
		}

		if _, ok := seen[t.ID]; ok {
			return fmt.Errorf("%w: duplicate target %q", tracking.ErrInvalidArgument, t.ID)
		}

		seen[t.ID] = struct{}{}

		if !geo.Valid(t.Location.Latitude, t.Location.Longitude) {
			return fmt.Errorf("%w: target %q has invalid coordinates", tracking.ErrInvalidArgument, t.ID)
		}

		if t.RadiusMeters != nil && (*t.RadiusMeters < 0 || math.IsNaN(*t.RadiusMeters)) {
			return fmt.Errorf("%w: target %q has an invalid radius", tracking.ErrInvalidArgument, t.ID)
		}
	}

	return nil
}

// validatePosition rejects fixes that cannot be placed on the map.
func validatePosition(p tracking.Position) error {
	if !geo.Valid(p.Latitude, p.Longitude) {
		return fmt.Errorf("%w: coordinates out of range", tracking.ErrInvalidArgument)
	}

	if p.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", tracking.ErrInvalidArgument)
	}

	return nil
}

// Registry owns every tracking session and guarantees
// at most one active session per vehicle.
type Registry struct {
	locator    position.Locator
	store      location.Store
	dispatcher *dispatcher
	opts       Options

	// sessions holds active and retained completed sessions by id.
	sessions map[string]*session
	// active maps a vehicle to its active session id. An empty id reserves
	// the vehicle while a start is in progress.
	active map[string]string
	// lastSeen is the newest accepted fix per vehicle, kept across sessions.
	lastSeen map[string]tracking.Position
	// closed is set by Close.
	closed bool
	// mu protects the maps and closed.
	mu sync.Mutex
}

// NewRegistry creates a registry. deps.Locator is required.
func NewRegistry(deps Dependencies, opts Options) (*Registry, error) {
	if deps.Locator == nil {
		return nil, errors.New("position locator is required")
	}

	deps = deps.withDefaults()
	opts = opts.withDefaults()

	return &Registry{
		locator: deps.Locator,
		store:   deps.Store,
		dispatcher: &dispatcher{
			notifier: deps.Notifier,
			geocoder: deps.Geocoder,
			opts:     opts,
		},
		opts:     opts,
		sessions: make(map[string]*session),
		active:   make(map[string]string),
		lastSeen: make(map[string]tracking.Position),
	}, nil
}

// StartSession subscribes to the vehicle's positions and activates a new session.
// Either every step succeeds or nothing is registered.
func (r *Registry) StartSession(ctx context.Context, req StartRequest) (*tracking.Session, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if err := r.reserve(req.VehicleID); err != nil {
		return nil, err
	}

	committed := false

	defer func() {
		if !committed {
			r.release(req.VehicleID, "")
		}
	}()

	source, err := r.locator.Source(req.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("resolve position source: %w", err)
	}

	sub, err := source.Subscribe(ctx, r.opts.MinInterval)
	if err != nil {
		return nil, fmt.Errorf("subscribe to positions: %w", err)
	}

	radius := req.RadiusMeters
	if radius <= 0 {
		radius = r.opts.DefaultRadiusMeters
	}

	id := uuid.NewString()
	s := &session{
		data: tracking.Session{
			ID:                  id,
			VehicleID:           req.VehicleID,
			DriverID:            req.DriverID,
			TripType:            req.TripType,
			DefaultRadiusMeters: radius,
			Status:              tracking.StatusIdle,
			StartedAt:           time.Now().UTC(),
		},
		alerted: make(map[string]struct{}, len(req.Targets)),
		sub:     sub,
		store:   r.store,
		stopCh:  make(chan struct{}),
		ctx: logger.WithFields(
			context.WithoutCancel(ctx),
			"session_id", id,
			"vehicle_id", req.VehicleID,
		),
	}

	s.data.Targets = make([]tracking.Target, len(req.Targets))
	for i, t := range req.Targets {
		s.data.Targets[i] = t.Clone()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		sub.Cancel()

		return nil, tracking.ErrShuttingDown
	}

	s.activate()

	// The start record is queued before the session becomes visible,
	// so a concurrent stop always finds it ahead of the completion.
	record := s.data.Clone()
	s.writer = newWriter(s.ctx, r.opts)
	s.writer.enqueue("record_session_start", func(ctx context.Context) error {
		return r.store.RecordSessionStart(ctx, record)
	})
	s.alerts = newEmitter(len(s.data.Targets), r.deliver(s))

	r.sessions[id] = s
	r.active[req.VehicleID] = id
	committed = true
	r.mu.Unlock()

	go s.run(r.handle(s), r.opts.RepublishInterval)

	logger.InfoKV(s.ctx, "Tracking session started",
		"driver_id", req.DriverID,
		"trip_type", req.TripType,
		"targets", len(req.Targets),
		"radius_meters", radius,
	)

	return s.snapshot(), nil
}

// reserve claims the vehicle for a start in progress.
func (r *Registry) reserve(vehicleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return tracking.ErrShuttingDown
	}

	if _, ok := r.active[vehicleID]; ok {
		return fmt.Errorf("%w: %s", tracking.ErrAlreadyTracking, vehicleID)
	}

	r.active[vehicleID] = ""

	return nil
}

// release frees the vehicle if it is still held by sessionID.
func (r *Registry) release(vehicleID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.active[vehicleID]; ok && id == sessionID {
		delete(r.active, vehicleID)
	}
}

// handle returns the callback the worker runs for every subscribed fix.
func (r *Registry) handle(s *session) func(context.Context, tracking.Position) {
	return func(ctx context.Context, p tracking.Position) {
		if _, err := r.process(s, p); err != nil && !errors.Is(err, tracking.ErrSessionNotActive) {
			logger.WarnKV(ctx, "Failed to process position", "error", err)
		}
	}
}

// process runs one fix through the session. Alerts are delivered by the session emitter.
func (r *Registry) process(s *session, p tracking.Position) (bool, error) {
	accepted, err := s.accept(r.dispatcher, p)
	if err != nil || !accepted {
		return false, err
	}

	r.remember(s.data.VehicleID, p)

	return true, nil
}

// deliver returns the emitter callback of the session.
func (r *Registry) deliver(s *session) func(*tracking.AlertEvent) {
	return func(event *tracking.AlertEvent) {
		// A stop that lands while alerts are pending suppresses them.
		if !s.active() {
			logger.InfoKV(s.ctx, "Session stopped, alert suppressed", "target_id", event.TargetID)

			return
		}

		r.dispatcher.emitApproaching(s.ctx, event)
	}
}

func (r *Registry) remember(vehicleID string, p tracking.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if last, ok := r.lastSeen[vehicleID]; !ok || p.Timestamp.After(last.Timestamp) {
		r.lastSeen[vehicleID] = p
	}
}

// ReportPosition feeds a fix into the session directly, bypassing the subscription.
// It reports false when the fix is not newer than the last accepted one.
func (r *Registry) ReportPosition(ctx context.Context, sessionID string, p tracking.Position) (bool, error) {
	if err := validatePosition(p); err != nil {
		return false, err
	}

	s, err := r.lookup(sessionID)
	if err != nil {
		return false, err
	}

	return r.process(s, p)
}

// StopSession completes the session. Stopping a completed session is a no-op.
// Queued store writes get up to Options.StopWait to finish.
func (r *Registry) StopSession(ctx context.Context, sessionID string) error {
	s, err := r.lookup(sessionID)
	if err != nil {
		return err
	}

	completedAt, stopped := s.complete(time.Now().UTC())
	if !stopped {
		return nil
	}

	r.release(s.data.VehicleID, sessionID)
	r.scheduleEviction(sessionID)

	if !s.writer.drain(r.opts.StopWait) {
		logger.WarnKV(s.ctx, "Pending store writes abandoned on stop", "wait", r.opts.StopWait)
	}

	err = retry(context.WithoutCancel(ctx), r.opts.StoreAttempts, r.opts.StoreBackoff,
		withTimeout(r.opts.StoreTimeout, func(ctx context.Context) error {
			return r.store.RecordSessionComplete(ctx, sessionID, completedAt)
		}),
	)
	if err != nil {
		logger.WarnKV(s.ctx, "Failed to record session completion", "error", err)
	}

	logger.Info(s.ctx, "Tracking session stopped")

	return nil
}

func (r *Registry) scheduleEviction(sessionID string) {
	if r.opts.CompletedRetention <= 0 {
		return
	}

	time.AfterFunc(r.opts.CompletedRetention, func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		delete(r.sessions, sessionID)
	})
}

func (r *Registry) lookup(sessionID string) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", tracking.ErrNotFound, sessionID)
	}

	return s, nil
}

// Get returns a snapshot of the session.
func (r *Registry) Get(sessionID string) (*tracking.Session, error) {
	s, err := r.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	return s.snapshot(), nil
}

// GetSessionStatus returns the polling view of the session.
func (r *Registry) GetSessionStatus(sessionID string) (*tracking.SessionStatus, error) {
	snapshot, err := r.Get(sessionID)
	if err != nil {
		return nil, err
	}

	return tracking.StatusOf(snapshot), nil
}

// ActiveSessions returns snapshots of the active sessions ordered by start time.
func (r *Registry) ActiveSessions() []*tracking.Session {
	r.mu.Lock()
	sessions := make([]*session, 0, len(r.active))

	for _, id := range r.active {
		if s, ok := r.sessions[id]; ok {
			sessions = append(sessions, s)
		}
	}
	r.mu.Unlock()

	result := make([]*tracking.Session, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, s.snapshot())
	}

	slices.SortFunc(result, func(a, b *tracking.Session) int {
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})

	return result
}

// ActiveSessionID returns the vehicle's active session id or an empty string.
func (r *Registry) ActiveSessionID(vehicleID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.active[vehicleID]
}

// LastKnownPosition returns the newest fix accepted for the vehicle by any session.
func (r *Registry) LastKnownPosition(vehicleID string) (tracking.Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.lastSeen[vehicleID]

	return p, ok
}

// Close stops every active session and rejects new ones.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true

	ids := make([]string, 0, len(r.active))
	for _, id := range r.active {
		if id != "" {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	var g errgroup.Group

	for _, id := range ids {
		g.Go(func() error {
			return r.StopSession(ctx, id)
		})
	}

	return g.Wait()
}
