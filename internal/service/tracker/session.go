package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/position"
	"github.com/oshokin/bus-tracker/internal/repository/location"
)

// session is the mutable state of one tracking session.
type session struct {
	// data is the snapshot served to readers.
	data tracking.Session
	// alerted is the dedup set of target ids.
	alerted map[string]struct{}
	// sub is the position subscription consumed by the worker.
	sub position.Subscription
	// writer serializes store writes.
	writer *writer
	// alerts delivers approaching alerts off the fix path.
	alerts *emitter
	// store receives the writes queued by the session.
	store location.Store
	// stopCh is closed when the session completes.
	stopCh chan struct{}
	// ctx carries the session logger.
	ctx context.Context //nolint:containedctx // Logging context of the worker.
	// mu protects data and alerted.
	mu sync.Mutex
}

// snapshot returns a deep copy of the session.
func (s *session) snapshot() *tracking.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.data.Clone()
}

// activate moves an idle session to Active.
func (s *session) activate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.Status == tracking.StatusIdle {
		s.data.Status = tracking.StatusActive
	}
}

func (s *session) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.data.Status == tracking.StatusActive
}

// accept records p as the newest fix, queues its store writes and the alerts of
// the targets it enters. A fix not newer than the last one is reported as not
// accepted and changes nothing.
func (s *session) accept(d *dispatcher, p tracking.Position) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.Status != tracking.StatusActive {
		return false, tracking.ErrSessionNotActive
	}

	if last := s.data.LastPosition; last != nil && !p.Timestamp.After(last.Timestamp) {
		return false, nil
	}

	s.data.LastPosition = &p

	vehicleID, sessionID := s.data.VehicleID, s.data.ID

	s.writer.enqueue("append_position", func(ctx context.Context) error {
		return s.store.AppendPosition(ctx, vehicleID, sessionID, p)
	})
	s.writer.enqueue("set_latest", func(ctx context.Context) error {
		return s.store.SetLatest(ctx, vehicleID, p)
	})

	for _, event := range d.evaluate(&s.data, s.alerted, p) {
		if !s.alerts.enqueue(event) {
			logger.WarnKV(s.ctx, "Alert queue rejected event", "target_id", event.TargetID)
		}
	}

	return true, nil
}

// republish rewrites the last fix as the vehicle's latest position.
func (s *session) republish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.Status != tracking.StatusActive || s.data.LastPosition == nil {
		return
	}

	vehicleID, p := s.data.VehicleID, *s.data.LastPosition

	s.writer.enqueue("republish_latest", func(ctx context.Context) error {
		return s.store.SetLatest(ctx, vehicleID, p)
	})
}

// complete marks the session completed and stops its subscription.
// Alerts still queued are suppressed by the emitter.
// It reports false when the session was already completed.
func (s *session) complete(now time.Time) (time.Time, bool) {
	s.mu.Lock()

	if s.data.Status != tracking.StatusActive {
		s.mu.Unlock()

		return time.Time{}, false
	}

	s.data.Status = tracking.StatusCompleted
	s.data.CompletedAt = &now
	s.mu.Unlock()

	s.alerts.close()
	s.sub.Cancel()
	close(s.stopCh)

	return now, true
}

// run consumes the subscription until the session completes.
func (s *session) run(handle func(context.Context, tracking.Position), republishEvery time.Duration) {
	var tick <-chan time.Time

	if republishEvery > 0 {
		ticker := time.NewTicker(republishEvery)
		defer ticker.Stop()

		tick = ticker.C
	}

	positions := s.sub.Positions()

	for {
		select {
		case <-s.stopCh:
			return
		case p, ok := <-positions:
			if !ok {
				logger.Debug(s.ctx, "Position subscription closed")

				positions = nil

				continue
			}

			handle(s.ctx, p)
		case <-tick:
			s.republish()
		}
	}
}
