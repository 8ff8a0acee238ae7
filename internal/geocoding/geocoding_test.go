package geocoding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNop always returns an empty address.
func TestNop(t *testing.T) {
	t.Parallel()

	address, err := Nop{}.ReverseGeocode(context.Background(), -1.2921, 36.8219)
	require.NoError(t, err)
	require.Empty(t, address)
}

// TestStatic_NearestPlace picks the closest place and honours the distance limit.
func TestStatic_NearestPlace(t *testing.T) {
	t.Parallel()

	g := NewStatic([]Place{
		{Name: "Kenyatta Avenue", Latitude: -1.2841, Longitude: 36.8155},
		{Name: "Westlands Depot", Latitude: -1.2676, Longitude: 36.8108},
	}, 2000)

	address, err := g.ReverseGeocode(context.Background(), -1.2845, 36.8160)
	require.NoError(t, err)
	require.Contains(t, address, "Kenyatta Avenue")

	address, err = g.ReverseGeocode(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Empty(t, address)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = g.ReverseGeocode(ctx, -1.2845, 36.8160)
	require.ErrorIs(t, err, context.Canceled)
}
