package location

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
)

// SessionRecord is the stored form of a session.
type SessionRecord struct {
	Session     *tracking.Session
	CompletedAt *time.Time
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	latest   map[string]tracking.Position
	trails   map[string][]tracking.Position
	sessions map[string]*SessionRecord
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		latest:   make(map[string]tracking.Position),
		trails:   make(map[string][]tracking.Position),
		sessions: make(map[string]*SessionRecord),
	}
}

// AppendPosition inserts the fix into the trail ordered by timestamp, ignoring duplicates.
func (m *MemoryStore) AppendPosition(_ context.Context, _, sessionID string, p tracking.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	trail := m.trails[sessionID]

	idx, found := slices.BinarySearchFunc(trail, p.Timestamp, func(e tracking.Position, ts time.Time) int {
		return e.Timestamp.Compare(ts)
	})
	if found {
		return nil
	}

	m.trails[sessionID] = slices.Insert(trail, idx, p)

	return nil
}

// SetLatest keeps the fix with the greatest timestamp.
func (m *MemoryStore) SetLatest(_ context.Context, vehicleID string, p tracking.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.latest[vehicleID]; ok && !p.Timestamp.After(cur.Timestamp) {
		return nil
	}

	m.latest[vehicleID] = p

	return nil
}

// RecordSessionStart stores a copy of the session if it is not known yet.
func (m *MemoryStore) RecordSessionStart(_ context.Context, s *tracking.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("%w: session is required", ErrStoreWriteFailed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; !ok {
		m.sessions[s.ID] = &SessionRecord{Session: s.Clone()}
	}

	return nil
}

// RecordSessionComplete sets the completion time unless already set.
func (m *MemoryStore) RecordSessionComplete(_ context.Context, sessionID string, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sessions[sessionID]
	if !ok {
		rec = new(SessionRecord)
		m.sessions[sessionID] = rec
	}

	if rec.CompletedAt == nil {
		rec.CompletedAt = &completedAt
	}

	return nil
}

// Latest returns the newest fix of the vehicle.
func (m *MemoryStore) Latest(_ context.Context, vehicleID string) (tracking.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.latest[vehicleID]
	if !ok {
		return tracking.Position{}, ErrNotFound
	}

	return p, nil
}

// Trail returns the session fixes in timestamp order.
func (m *MemoryStore) Trail(_ context.Context, sessionID string) ([]tracking.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.trails[sessionID]), nil
}

// Session returns the stored record of a session.
func (m *MemoryStore) Session(sessionID string) (*SessionRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}

	cloned := &SessionRecord{Session: rec.Session.Clone()}
	if rec.CompletedAt != nil {
		completedAt := *rec.CompletedAt
		cloned.CompletedAt = &completedAt
	}

	return cloned, true
}
