package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
)

// Multi writes to several stores. A write fails when any store fails;
// stores that succeeded are not rolled back since every write is idempotent.
type Multi []Store

// AppendPosition appends to every store.
func (m Multi) AppendPosition(ctx context.Context, vehicleID, sessionID string, p tracking.Position) error {
	return m.each(func(s Store) error { return s.AppendPosition(ctx, vehicleID, sessionID, p) })
}

// SetLatest updates every store.
func (m Multi) SetLatest(ctx context.Context, vehicleID string, p tracking.Position) error {
	return m.each(func(s Store) error { return s.SetLatest(ctx, vehicleID, p) })
}

// RecordSessionStart records the session in every store.
func (m Multi) RecordSessionStart(ctx context.Context, session *tracking.Session) error {
	return m.each(func(s Store) error { return s.RecordSessionStart(ctx, session) })
}

// RecordSessionComplete records the completion in every store.
func (m Multi) RecordSessionComplete(ctx context.Context, sessionID string, completedAt time.Time) error {
	return m.each(func(s Store) error { return s.RecordSessionComplete(ctx, sessionID, completedAt) })
}

func (m Multi) each(fn func(Store) error) error {
	var errs []error

	for _, s := range m {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}

	joined := errors.Join(errs...)
	if errors.Is(joined, ErrStoreWriteFailed) {
		return joined
	}

	return fmt.Errorf("%w: %w", ErrStoreWriteFailed, joined)
}
