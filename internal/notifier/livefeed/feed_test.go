package livefeed

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/notifier"
)

// TestFeed_BroadcastsToClients connects a WebSocket client and reads a broadcast alert.
func TestFeed_BroadcastsToClients(t *testing.T) {
	t.Parallel()

	feed := New()
	srv := httptest.NewServer(feed)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return feed.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	event := &tracking.AlertEvent{ID: "evt-1", VehicleID: "KBX-101", TargetID: "s-1", Kind: tracking.AlertApproaching}

	receipt, err := feed.Notify(context.Background(), notifier.ForApproaching(event), event)
	require.NoError(t, err)
	require.Equal(t, "livefeed", receipt.Notifier)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg notifier.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "evt-1", msg.Event.ID)
	require.Equal(t, notifier.AudienceTargetGuardians, msg.Recipients.Audience)

	require.NoError(t, feed.Close())
	require.Zero(t, feed.Clients())
}

// TestFeed_NotifyWithoutClients reports that nobody received the event.
func TestFeed_NotifyWithoutClients(t *testing.T) {
	t.Parallel()

	event := &tracking.AlertEvent{ID: "evt-1", Kind: tracking.AlertEmergency}

	receipt, err := New().Notify(context.Background(), notifier.ForEmergency(), event)
	require.ErrorIs(t, err, ErrNoListeners)
	require.Nil(t, receipt)
}
