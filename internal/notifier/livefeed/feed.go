// Package livefeed streams alert events to dashboard clients over WebSocket.
package livefeed

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/notifier"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a client may stay silent.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = pongWait * 9 / 10
	// sendBuffer is the per-client queue length.
	sendBuffer = 32
)

// ErrNoListeners is returned by Notify when no client received the event.
var ErrNoListeners = errors.New("no live feed clients connected")

// Feed is both an http.Handler accepting WebSocket clients and a notifier.Notifier
// broadcasting every event to them. Slow clients whose queue is full are disconnected.
type Feed struct {
	upgrader websocket.Upgrader
	clients  map[*client]struct{}
	mu       sync.Mutex
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// New creates a feed with no clients.
func New() *Feed {
	return &Feed{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards are served from other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it disconnects.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithName(r.Context(), "livefeed")

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnKV(ctx, "WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)

		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()

	logger.DebugKV(ctx, "WebSocket client connected", "remote_addr", r.RemoteAddr)

	go f.writeLoop(c)

	f.readLoop(c)

	logger.DebugKV(ctx, "WebSocket client disconnected", "remote_addr", r.RemoteAddr)
}

// Clients returns the number of connected clients.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.clients)
}

// Notify queues the event for every connected client.
// It fails with ErrNoListeners when no client could take the event.
func (f *Feed) Notify(_ context.Context, to notifier.Recipients, event *tracking.AlertEvent) (*notifier.Receipt, error) {
	body, err := notifier.Encode(to, event)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	queued := 0

	for c := range f.clients {
		select {
		case c.send <- body:
			queued++
		default:
			f.dropLocked(c)
		}
	}

	if queued == 0 {
		return nil, ErrNoListeners
	}

	return notifier.NewReceipt("livefeed"), nil
}

// Close disconnects every client.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for c := range f.clients {
		f.dropLocked(c)
	}

	return nil
}

// readLoop consumes control frames until the connection fails.
func (f *Feed) readLoop(c *client) {
	defer f.drop(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the only writer of the connection.
func (f *Feed) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case body, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				f.drop(c)

				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.drop(c)

				return
			}
		}
	}
}

func (f *Feed) drop(c *client) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dropLocked(c)
}

// dropLocked unregisters the client and closes its queue once. Caller holds f.mu.
func (f *Feed) dropLocked(c *client) {
	delete(f.clients, c)
	c.once.Do(func() { close(c.send) })
}
