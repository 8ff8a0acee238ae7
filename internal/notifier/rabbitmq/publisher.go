// Package rabbitmq publishes alert events to a RabbitMQ topic exchange.
//
// Routing keys follow alert.<kind>.<vehicle>, so consumers can bind to
// alert.emergency.# or alert.*.KBX-101. Emergencies carry the highest
// message priority and every publish waits for the broker confirmation.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/notifier"
)

const (
	// DefaultExchange is the topic exchange alerts are published to.
	DefaultExchange = "fleet.alerts"
	// emergencyPriority is the AMQP priority of emergency messages.
	emergencyPriority = 9
)

// ErrNacked is returned when the broker refuses a message.
var ErrNacked = errors.New("message nacked by broker")

// channel is the part of *amqp.Channel used for publishing.
type channel interface {
	PublishWithDeferredConfirmWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) (*amqp.DeferredConfirmation, error)
	Close() error
}

// Publisher is a notifier.Notifier backed by an AMQP channel.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	// mu serializes publishes; AMQP channels are not safe for concurrent use.
	mu sync.Mutex
}

// Dial connects to the broker, declares the exchange and enables publisher confirms.
func Dial(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	p := newPublisher(ch, exchange)
	p.conn = conn

	return p, nil
}

func newPublisher(ch channel, exchange string) *Publisher {
	return &Publisher{
		ch:       ch,
		exchange: exchange,
	}
}

// Notify publishes the event and waits for the broker to confirm it.
func (p *Publisher) Notify(ctx context.Context, to notifier.Recipients, event *tracking.AlertEvent) (*notifier.Receipt, error) {
	body, err := notifier.Encode(to, event)
	if err != nil {
		return nil, err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.EmittedAt,
		Type:         string(event.Kind),
		Headers: amqp.Table{
			"audience": string(to.Audience),
			"escalate": to.Escalate,
		},
		Body: body,
	}

	if event.Kind == tracking.AlertEmergency {
		msg.Priority = emergencyPriority
	}

	p.mu.Lock()
	confirmation, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, RoutingKey(event), false, false, msg)
	p.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("publish alert: %w", err)
	}

	// Channels without confirm mode return no confirmation.
	if confirmation != nil {
		acked, err := confirmation.WaitContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("wait for confirmation: %w", err)
		}

		if !acked {
			return nil, ErrNacked
		}
	}

	return notifier.NewReceipt("rabbitmq"), nil
}

// Ping reports whether the connection is still open.
func (p *Publisher) Ping(context.Context) error {
	if p.conn != nil && p.conn.IsClosed() {
		return amqp.ErrClosed
	}

	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	err := p.ch.Close()

	if p.conn != nil {
		err = errors.Join(err, p.conn.Close())
	}

	return err
}

// RoutingKey returns alert.<kind>.<vehicle> with AMQP wildcard characters escaped.
func RoutingKey(event *tracking.AlertEvent) string {
	return "alert." + string(event.Kind) + "." + sanitize(event.VehicleID)
}

// sanitize keeps the vehicle id a single routing-key word.
func sanitize(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", "#", "_", " ", "_").Replace(s)
}
