package tracker

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/notifier"
	"github.com/oshokin/bus-tracker/internal/position"
	"github.com/oshokin/bus-tracker/internal/repository/location"
)

// TestTriggerEmergency_AnySessionState raises emergencies before, during and after a session.
func TestTriggerEmergency_AnySessionState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hub := position.NewHub()
	rec := &recorder{}
	engine := newEngine(t, hub, rec, nil, Options{})

	t.Cleanup(func() { _ = engine.Close(ctx) })

	require.NoError(t, hub.Publish(vehicle, east(1200, time.Now())))

	event, err := engine.TriggerEmergency(ctx, vehicle, "drv-7", "flat tyre")
	require.NoError(t, err)
	require.Equal(t, tracking.AlertEmergency, event.Kind)
	require.Empty(t, event.SessionID)
	require.Equal(t, "flat tyre", event.Reason)
	require.InDelta(t, east(1200, time.Now()).Longitude, event.Position.Longitude, 1e-9)

	session, err := engine.StartSession(ctx, pickup())
	require.NoError(t, err)

	event, err = engine.TriggerEmergency(ctx, vehicle, "drv-7", "medical")
	require.NoError(t, err)
	require.Equal(t, session.ID, event.SessionID)

	require.NoError(t, engine.StopSession(ctx, session.ID))

	event, err = engine.TriggerEmergency(ctx, vehicle, "drv-7", "")
	require.NoError(t, err)
	require.Equal(t, tracking.AlertEmergency, event.Kind)
	require.Empty(t, event.SessionID)

	require.Len(t, rec.Events(), 3)

	for _, to := range rec.recipients {
		require.Equal(t, notifier.ForEmergency(), to)
	}
}

// TestTriggerEmergency_NeverDeduplicated sends every trigger.
func TestTriggerEmergency_NeverDeduplicated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hub := position.NewHub()
	rec := &recorder{}
	engine := newEngine(t, hub, rec, nil, Options{})

	require.NoError(t, hub.Publish(vehicle, east(10, time.Now())))

	first, err := engine.TriggerEmergency(ctx, vehicle, "drv-7", "smoke")
	require.NoError(t, err)

	second, err := engine.TriggerEmergency(ctx, vehicle, "drv-7", "smoke")
	require.NoError(t, err)

	require.NotEqual(t, first.ID, second.ID)
	require.Len(t, rec.Events(), 2)
}

// TestTriggerEmergency_FallsBackToLastKnownPosition uses the session's last fix when the source is silent.
func TestTriggerEmergency_FallsBackToLastKnownPosition(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		rec := &recorder{}
		engine := newEngine(t, position.NewHub(), rec, nil, Options{EmergencyFixTimeout: 5 * time.Second})

		session, err := engine.StartSession(ctx, pickup())
		require.NoError(t, err)

		reported := east(2500, time.Now())

		_, err = engine.ReportPosition(ctx, session.ID, reported)
		require.NoError(t, err)

		started := time.Now()

		event, err := engine.TriggerEmergency(ctx, vehicle, "drv-7", "breakdown")
		require.NoError(t, err)
		require.Equal(t, 5*time.Second, time.Since(started))
		require.Equal(t, reported, event.Position)
		require.Equal(t, session.ID, event.SessionID)

		require.NoError(t, engine.Close(ctx))
	})
}

// TestTriggerEmergency_FallsBackToStoredPosition reads the store when nothing is remembered in memory.
func TestTriggerEmergency_FallsBackToStoredPosition(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		store := location.NewMemoryStore()
		stored := east(900, time.Now().Add(-time.Hour))
		require.NoError(t, store.SetLatest(ctx, vehicle, stored))

		engine := newEngine(t, position.NewHub(), &recorder{}, store, Options{})

		event, err := engine.TriggerEmergency(ctx, vehicle, "drv-7", "")
		require.NoError(t, err)
		require.Equal(t, stored, event.Position)
	})
}

// TestTriggerEmergency_NoPosition fails when no fix exists anywhere.
func TestTriggerEmergency_NoPosition(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		rec := &recorder{}
		engine := newEngine(t, position.NewHub(), rec, nil, Options{})

		event, err := engine.TriggerEmergency(context.Background(), vehicle, "drv-7", "")
		require.ErrorIs(t, err, tracking.ErrNoPositionAvailable)
		require.ErrorIs(t, err, position.ErrTimeout)
		require.Nil(t, event)
		require.Zero(t, rec.Calls())
	})
}

// TestTriggerEmergency_DeliveryFailure returns the event with ErrDeliveryFailed after every attempt fails.
func TestTriggerEmergency_DeliveryFailure(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		hub := position.NewHub()
		rec := &recorder{err: errors.New("broker down")}
		engine := newEngine(t, hub, rec, nil, Options{EmergencyNotifyAttempts: 4})

		require.NoError(t, hub.Publish(vehicle, east(10, time.Now())))

		event, err := engine.TriggerEmergency(ctx, vehicle, "drv-7", "fire")
		require.ErrorIs(t, err, tracking.ErrDeliveryFailed)
		require.NotNil(t, event)
		require.Equal(t, tracking.AlertEmergency, event.Kind)
		require.Equal(t, 4, rec.Calls())
	})
}

// TestTriggerEmergency_RequiresVehicle validates input.
func TestTriggerEmergency_RequiresVehicle(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, position.NewHub(), nil, nil, Options{})

	_, err := engine.TriggerEmergency(context.Background(), "", "drv-7", "")
	require.ErrorIs(t, err, tracking.ErrInvalidArgument)
}

// TestTriggerEmergency_BestEffortOnlyIsNotDelivered fails when the broker is down even if the live feed took the event.
func TestTriggerEmergency_BestEffortOnlyIsNotDelivered(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx := context.Background()
		hub := position.NewHub()
		broker := &recorder{err: errors.New("broker down")}
		feed := &recorder{}
		engine := newEngine(t, hub, notifier.NewFanout(
			notifier.Named{Name: "amqp", Notifier: broker},
			notifier.Named{Name: "live_feed", Notifier: feed, BestEffort: true},
		), nil, Options{EmergencyNotifyAttempts: 2})

		require.NoError(t, hub.Publish(vehicle, east(10, time.Now())))

		event, err := engine.TriggerEmergency(ctx, vehicle, "drv-7", "smoke")
		require.ErrorIs(t, err, tracking.ErrDeliveryFailed)
		require.NotNil(t, event)
		require.Equal(t, 2, broker.Calls())
		require.Len(t, feed.Events(), 2)
	})
}
