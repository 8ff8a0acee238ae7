package location

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return NewSQLStore(db, DialectPostgres), mock
}

// TestSQLStore_AppendPosition checks the insert statement and its arguments.
func TestSQLStore_AppendPosition(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	p := fix(0, -1.2921)

	mock.ExpectExec(regexp.QuoteMeta(insertPositionQuery)).
		WithArgs("sess-1", "KBX-101", p.Latitude, p.Longitude, p.Accuracy, p.Speed, p.Heading, p.Timestamp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.AppendPosition(context.Background(), "KBX-101", "sess-1", p))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestSQLStore_SetLatestError wraps driver failures in ErrStoreWriteFailed.
func TestSQLStore_SetLatestError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(upsertLatestQuery)).
		WillReturnError(sqlmock.ErrCancelled)

	err := store.SetLatest(context.Background(), "KBX-101", fix(0, -1.2921))
	require.ErrorIs(t, err, ErrStoreWriteFailed)
	require.ErrorIs(t, err, sqlmock.ErrCancelled)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestSQLStore_SessionLifecycle checks the start insert and the guarded completion update.
func TestSQLStore_SessionLifecycle(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	session := &tracking.Session{
		ID:                  "sess-1",
		VehicleID:           "KBX-101",
		DriverID:            "drv-7",
		TripType:            tracking.TripPickup,
		DefaultRadiusMeters: 800,
		Targets:             []tracking.Target{{ID: "s-1", Location: tracking.Point{Latitude: -1.29, Longitude: 36.82}}},
		StartedAt:           base,
	}

	mock.ExpectExec(regexp.QuoteMeta(insertSessionQuery)).
		WithArgs("sess-1", "KBX-101", "drv-7", "pickup", 800.0, sqlmock.AnyArg(), base).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(completeSessionQuery)).
		WithArgs(base.Add(time.Hour), "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.RecordSessionStart(context.Background(), session))
	require.NoError(t, store.RecordSessionComplete(context.Background(), "sess-1", base.Add(time.Hour)))
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestSQLStore_LatestNotFound maps empty results to ErrNotFound.
func TestSQLStore_LatestNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectLatestQuery)).
		WithArgs("UNKNOWN").
		WillReturnRows(sqlmock.NewRows([]string{"latitude", "longitude", "accuracy", "speed", "heading", "recorded_at"}))

	_, err := store.Latest(context.Background(), "UNKNOWN")
	require.ErrorIs(t, err, ErrNotFound)
}

// TestSQLStore_SQLiteRoundTrip runs every statement against an embedded SQLite database.
func TestSQLStore_SQLiteRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store, err := OpenSQL(ctx, DialectSQLite, filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))

	// Retried and out-of-order writes.
	require.NoError(t, store.AppendPosition(ctx, "KBX-101", "sess-1", fix(2*time.Second, -1.2)))
	require.NoError(t, store.AppendPosition(ctx, "KBX-101", "sess-1", fix(time.Second, -1.1)))
	require.NoError(t, store.AppendPosition(ctx, "KBX-101", "sess-1", fix(2*time.Second, -1.2)))

	require.NoError(t, store.SetLatest(ctx, "KBX-101", fix(10*time.Second, -1.3)))
	require.NoError(t, store.SetLatest(ctx, "KBX-101", fix(5*time.Second, -1.4)))

	trail, err := store.Trail(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	require.True(t, trail[0].Timestamp.Equal(base.Add(time.Second)))

	latest, err := store.Latest(ctx, "KBX-101")
	require.NoError(t, err)
	require.InDelta(t, -1.3, latest.Latitude, 0)
	require.True(t, latest.Timestamp.Equal(base.Add(10*time.Second)))

	session := &tracking.Session{ID: "sess-1", VehicleID: "KBX-101", TripType: tracking.TripDropoff, StartedAt: base}
	require.NoError(t, store.RecordSessionStart(ctx, session))
	require.NoError(t, store.RecordSessionStart(ctx, session))
	require.NoError(t, store.RecordSessionComplete(ctx, "sess-1", base.Add(time.Hour)))
	require.NoError(t, store.RecordSessionComplete(ctx, "sess-1", base.Add(2*time.Hour)))

	var completedAt time.Time

	row := store.db.QueryRowContext(ctx, `SELECT completed_at FROM tracking_sessions WHERE id = $1`, "sess-1")
	require.NoError(t, row.Scan(&completedAt))
	require.True(t, completedAt.Equal(base.Add(time.Hour)))
}

// TestOpenSQL_UnknownDialect rejects unsupported drivers.
func TestOpenSQL_UnknownDialect(t *testing.T) {
	t.Parallel()

	_, err := OpenSQL(context.Background(), Dialect("oracle"), "")
	require.ErrorIs(t, err, errUnknownDialect)
}
