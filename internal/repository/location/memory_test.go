package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
)

var base = time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)

func fix(offset time.Duration, lat float64) tracking.Position {
	return tracking.Position{Latitude: lat, Longitude: 36.8219, Speed: 9, Timestamp: base.Add(offset)}
}

// TestMemoryStore_SetLatestIsLastWriteWinsByTimestamp ensures an older fix never replaces a newer one.
func TestMemoryStore_SetLatestIsLastWriteWinsByTimestamp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Latest(ctx, "KBX-101")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetLatest(ctx, "KBX-101", fix(10*time.Second, -1.1)))
	require.NoError(t, s.SetLatest(ctx, "KBX-101", fix(5*time.Second, -1.2)))

	latest, err := s.Latest(ctx, "KBX-101")
	require.NoError(t, err)
	require.InDelta(t, -1.1, latest.Latitude, 0)
}

// TestMemoryStore_AppendIsIdempotentAndOrdered verifies retries do not duplicate trail entries.
func TestMemoryStore_AppendIsIdempotentAndOrdered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.AppendPosition(ctx, "KBX-101", "sess-1", fix(2*time.Second, -1.2)))
	require.NoError(t, s.AppendPosition(ctx, "KBX-101", "sess-1", fix(time.Second, -1.1)))
	require.NoError(t, s.AppendPosition(ctx, "KBX-101", "sess-1", fix(2*time.Second, -1.2)))

	trail, err := s.Trail(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	require.InDelta(t, -1.1, trail[0].Latitude, 0)
	require.InDelta(t, -1.2, trail[1].Latitude, 0)
}

// TestMemoryStore_SessionRecords checks start and completion are recorded once.
func TestMemoryStore_SessionRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	session := &tracking.Session{ID: "sess-1", VehicleID: "KBX-101", Status: tracking.StatusActive, StartedAt: base}
	require.NoError(t, s.RecordSessionStart(ctx, session))
	require.NoError(t, s.RecordSessionComplete(ctx, "sess-1", base.Add(time.Hour)))
	require.NoError(t, s.RecordSessionComplete(ctx, "sess-1", base.Add(2*time.Hour)))

	rec, ok := s.Session("sess-1")
	require.True(t, ok)
	require.Equal(t, "KBX-101", rec.Session.VehicleID)
	require.True(t, rec.CompletedAt.Equal(base.Add(time.Hour)))

	require.ErrorIs(t, s.RecordSessionStart(ctx, nil), ErrStoreWriteFailed)
}

// failingStore fails on SetLatest.
type failingStore struct{ *MemoryStore }

var errBroken = errors.New("broken")

func (*failingStore) SetLatest(context.Context, string, tracking.Position) error { return errBroken }

// TestMulti_WritesEverywhereAndWrapsFailures verifies fan-out and error wrapping.
func TestMulti_WritesEverywhereAndWrapsFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	first, second := NewMemoryStore(), NewMemoryStore()

	require.NoError(t, Multi{first, second}.SetLatest(ctx, "KBX-101", fix(0, -1.1)))

	for _, s := range []*MemoryStore{first, second} {
		_, err := s.Latest(ctx, "KBX-101")
		require.NoError(t, err)
	}

	broken := &failingStore{MemoryStore: NewMemoryStore()}
	healthy := NewMemoryStore()

	err := Multi{broken, healthy}.SetLatest(ctx, "KBX-101", fix(0, -1.1))
	require.ErrorIs(t, err, ErrStoreWriteFailed)
	require.ErrorIs(t, err, errBroken)

	_, err = healthy.Latest(ctx, "KBX-101")
	require.NoError(t, err)
}
