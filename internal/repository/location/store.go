// Package location persists vehicle positions and session lifecycle records.
//
// Every write is idempotent under retry: appends are keyed by session and fix
// timestamp, the latest fix per vehicle is last-write-wins by timestamp, and
// session records are upserted.
package location

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
)

var (
	// ErrStoreWriteFailed wraps every failed write.
	ErrStoreWriteFailed = errors.New("location store write failed")
	// ErrNotFound is returned when nothing is stored for the requested key.
	ErrNotFound = errors.New("location not found")
)

// Store is the write side used by the tracker.
type Store interface {
	// AppendPosition adds a fix to the session trail.
	AppendPosition(ctx context.Context, vehicleID, sessionID string, p tracking.Position) error
	// SetLatest stores the fix as the vehicle's newest one unless a newer fix is already stored.
	SetLatest(ctx context.Context, vehicleID string, p tracking.Position) error
	// RecordSessionStart stores the session metadata.
	RecordSessionStart(ctx context.Context, s *tracking.Session) error
	// RecordSessionComplete stamps the completion time once.
	RecordSessionComplete(ctx context.Context, sessionID string, completedAt time.Time) error
}

// Reader serves the "last seen" and trail queries of polling clients.
type Reader interface {
	Latest(ctx context.Context, vehicleID string) (tracking.Position, error)
	Trail(ctx context.Context, sessionID string) ([]tracking.Position, error)
}

// ReadWriter is a store that can also be queried.
type ReadWriter interface {
	Store
	Reader
}
