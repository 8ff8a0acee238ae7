package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/bus-tracker/internal/api/wire"
	"github.com/oshokin/bus-tracker/internal/domain/tracking"
)

// TestFormatEvent renders addresses when known and falls back to coordinates.
func TestFormatEvent(t *testing.T) {
	t.Parallel()

	event := &tracking.AlertEvent{
		ID:        "evt-1",
		VehicleID: "KBX-101",
		DriverID:  "amina@bus-7",
		Kind:      tracking.AlertEmergency,
		Position:  tracking.Position{Latitude: -1.2921, Longitude: 36.8219},
		EmittedAt: time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC),
	}

	require.Equal(t,
		"evt-1 for KBX-101 by amina@bus-7 at -1.29210,36.82190 (2026-03-02T07:30:00Z)",
		formatEvent(&wire.EmergencyResponse{Event: event, Delivered: true}),
	)

	event.Address = "Parklands Gate"
	event.DriverID = ""

	require.Equal(t,
		"evt-1 for KBX-101 by <unknown> at Parklands Gate (-1.29210,36.82190) (2026-03-02T07:30:00Z)",
		formatEvent(&wire.EmergencyResponse{Event: event}),
	)

	require.Equal(t, "<nil event>", formatEvent(nil))
}

// TestRun_RequiresVehicle fails before touching configuration.
func TestRun_RequiresVehicle(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{ConfigPath: "does-not-exist.yaml"})
	require.ErrorIs(t, err, errVehicleRequired)
}
