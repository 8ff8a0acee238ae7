// Package nats publishes alert events on NATS subjects.
package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/notifier"
)

// DefaultSubjectPrefix is prepended to every alert subject.
const DefaultSubjectPrefix = "tracker.alerts"

// Publisher is a notifier.Notifier over a NATS connection.
// Subjects follow <prefix>.<kind>.<vehicle>.
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

// Connect dials the NATS server.
func Connect(url, prefix string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("bus-tracker"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return New(conn, prefix), nil
}

// New wraps an existing connection.
func New(conn *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	return &Publisher{
		conn:   conn,
		prefix: prefix,
	}
}

// Subject returns the subject an event is published on.
func (p *Publisher) Subject(event *tracking.AlertEvent) string {
	return p.prefix + "." + string(event.Kind) + "." + token(event.VehicleID)
}

// Notify publishes the event. Escalated events are flushed so that a broken
// connection is reported to the caller instead of sitting in the write buffer.
func (p *Publisher) Notify(ctx context.Context, to notifier.Recipients, event *tracking.AlertEvent) (*notifier.Receipt, error) {
	body, err := notifier.Encode(to, event)
	if err != nil {
		return nil, err
	}

	msg := nats.NewMsg(p.Subject(event))
	msg.Data = body
	msg.Header.Set(nats.MsgIdHdr, event.ID)
	msg.Header.Set("Alert-Audience", string(to.Audience))

	if err := p.conn.PublishMsg(msg); err != nil {
		return nil, fmt.Errorf("failed to publish alert: %w", err)
	}

	if to.Escalate {
		if err := p.conn.FlushWithContext(ctx); err != nil {
			return nil, fmt.Errorf("failed to flush alert: %w", err)
		}
	}

	return notifier.NewReceipt("nats"), nil
}

// Ping reports whether the connection is usable.
func (p *Publisher) Ping(context.Context) error {
	if !p.conn.IsConnected() {
		return nats.ErrConnectionClosed
	}

	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}

// token turns a vehicle id into a single subject token.
func token(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}
