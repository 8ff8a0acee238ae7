package location

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
)

// exerciseStore runs the shared idempotency scenario against a real backend.
func exerciseStore(t *testing.T, store ReadWriter) {
	t.Helper()

	ctx := context.Background()

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

	_, err = store.Latest(ctx, "UNKNOWN")
	require.ErrorIs(t, err, ErrNotFound)

	session := &tracking.Session{ID: "sess-1", VehicleID: "KBX-101", TripType: tracking.TripPickup, StartedAt: base}
	require.NoError(t, store.RecordSessionStart(ctx, session))
	require.NoError(t, store.RecordSessionStart(ctx, session))
	require.NoError(t, store.RecordSessionComplete(ctx, "sess-1", base.Add(time.Hour)))
	require.NoError(t, store.RecordSessionComplete(ctx, "sess-1", base.Add(2*time.Hour)))
}

// TestRedisStore_Integration runs the store scenario against a Redis container.
func TestRedisStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections"),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	store, err := OpenRedis(ctx, url, WithKeyPrefix("test"), WithTTL(time.Hour))
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)

	completedAt, err := store.client.HGet(ctx, "test:session:sess-1", "completed_at").Result()
	require.NoError(t, err)
	require.Equal(t, base.Add(time.Hour).Format(time.RFC3339Nano), completedAt)
}

// TestPostgresStore_Integration runs the store scenario against a Postgres container.
func TestPostgresStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("tracker"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := OpenSQL(ctx, DialectPostgres, dsn)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(ctx))

	exerciseStore(t, store)
}
