//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/bus-tracker/internal/config"
)

// TestDial_ValidatesAddress verifies that Dial rejects empty addresses.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.ErrorIs(t, err, errAddressRequired)
	require.Nil(t, c)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestClient_NilRequests asserts that nil requests are rejected before any call.
func TestClient_NilRequests(t *testing.T) {
	t.Parallel()

	c := new(Client)

	_, err := c.StartSession(context.Background(), nil)
	require.ErrorIs(t, err, errRequestRequired)

	_, err = c.TriggerEmergency(context.Background(), nil)
	require.ErrorIs(t, err, errRequestRequired)
}

// TestDial_AppliesOptions checks the default and overridden call timeouts.
func TestDial_AppliesOptions(t *testing.T) {
	t.Parallel()

	// grpc.NewClient connects lazily, so no server is needed.
	c, err := Dial(context.Background(), "127.0.0.1:1")
	require.NoError(t, err)
	require.Equal(t, config.DefaultTimeout, c.callTimeout)
	require.NoError(t, c.Close())

	c, err = Dial(context.Background(), "127.0.0.1:1", WithCallTimeout(time.Second), WithCallTimeout(0))
	require.NoError(t, err)
	require.Equal(t, time.Second, c.callTimeout)
	require.NoError(t, c.Close())

	var closed *Client
	require.NoError(t, closed.Close())
}
