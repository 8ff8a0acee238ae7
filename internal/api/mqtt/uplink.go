// Package mqtt receives device position fixes over MQTT and publishes them into the position hub.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/geo"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/position"
)

// DefaultTopic is the topic filter devices publish to. The wildcard is the vehicle id.
const DefaultTopic = "/fleet/vehicle/+/location"

// connectTimeout bounds the broker handshake.
const connectTimeout = 10 * time.Second

var (
	errNoVehicle       = errors.New("vehicle id is missing")
	errVehicleMismatch = errors.New("vehicle id does not match the topic")
	errTimestamp       = errors.New("timestamp must be positive")
	errCoordinates     = errors.New("coordinates out of range")
)

// Publisher accepts fixes. position.Hub implements it.
type Publisher interface {
	Publish(vehicleID string, p tracking.Position) error
}

// LocationMessage is the JSON payload published by devices.
type LocationMessage struct {
	VehicleID string  `json:"vehicle_id,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Heading   float64 `json:"heading,omitempty"`
	// Timestamp is unix time in seconds.
	Timestamp int64 `json:"timestamp"`
}

// Topic returns the topic a device publishes its fixes to.
func Topic(vehicleID string) string {
	return "/fleet/vehicle/" + vehicleID + "/location"
}

// Uplink subscribes to device fixes.
type Uplink struct {
	client    paho.Client
	publisher Publisher
	topic     string
	qos       byte
	ctx       context.Context //nolint:containedctx // Logging context of the paho callbacks.
}

// Connect dials the broker and returns a client ready to subscribe.
//
//nolint:ireturn // paho exposes the client as an interface.
func Connect(brokerURL, clientID string) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false)

	client := paho.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out", brokerURL)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", brokerURL, err)
	}

	return client, nil
}

// NewUplink creates an uplink. An empty topic uses DefaultTopic.
func NewUplink(ctx context.Context, client paho.Client, publisher Publisher, topic string, qos byte) *Uplink {
	if topic == "" {
		topic = DefaultTopic
	}

	return &Uplink{
		client:    client,
		publisher: publisher,
		topic:     topic,
		qos:       qos,
		ctx:       logger.WithName(ctx, "mqtt"),
	}
}

// Start subscribes to the topic.
func (u *Uplink) Start() error {
	token := u.client.Subscribe(u.topic, u.qos, u.handleMessage)
	token.Wait()

	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", u.topic, err)
	}

	logger.InfoKV(u.ctx, "Subscribed to device uplink", "topic", u.topic)

	return nil
}

// Stop unsubscribes and disconnects.
func (u *Uplink) Stop() {
	u.client.Unsubscribe(u.topic).WaitTimeout(connectTimeout)
	u.client.Disconnect(250)
}

// Ping reports whether the broker connection is up.
func (u *Uplink) Ping(context.Context) error {
	if !u.client.IsConnectionOpen() {
		return errors.New("mqtt is not connected")
	}

	return nil
}

func (u *Uplink) handleMessage(_ paho.Client, msg paho.Message) {
	vehicleID, p, err := parseMessage(msg.Topic(), msg.Payload())
	if err != nil {
		logger.WarnKV(u.ctx, "Invalid location message", "topic", msg.Topic(), "error", err)

		return
	}

	if err := u.publisher.Publish(vehicleID, p); err != nil {
		logger.WarnKV(u.ctx, "Failed to publish fix", "vehicle_id", vehicleID, "error", err)
	}
}

// parseMessage validates a device payload. The vehicle id is taken from the topic.
func parseMessage(topic string, payload []byte) (string, tracking.Position, error) {
	var msg LocationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return "", tracking.Position{}, fmt.Errorf("decode payload: %w", err)
	}

	vehicleID := vehicleFromTopic(topic)
	if vehicleID == "" {
		vehicleID = msg.VehicleID
	}

	switch {
	case vehicleID == "":
		return "", tracking.Position{}, errNoVehicle
	case msg.VehicleID != "" && msg.VehicleID != vehicleID:
		return "", tracking.Position{}, fmt.Errorf("%w: %q", errVehicleMismatch, msg.VehicleID)
	case msg.Timestamp <= 0:
		return "", tracking.Position{}, errTimestamp
	case !geo.Valid(msg.Latitude, msg.Longitude):
		return "", tracking.Position{}, errCoordinates
	}

	return vehicleID, tracking.Position{
		Latitude:  msg.Latitude,
		Longitude: msg.Longitude,
		Accuracy:  msg.Accuracy,
		Speed:     msg.Speed,
		Heading:   msg.Heading,
		Timestamp: time.Unix(msg.Timestamp, 0).UTC(),
	}, nil
}

// vehicleFromTopic extracts the id from /fleet/vehicle/<id>/location.
func vehicleFromTopic(topic string) string {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) != 4 || parts[0] != "fleet" || parts[1] != "vehicle" || parts[3] != "location" {
		return ""
	}

	return parts[2]
}

var _ Publisher = (*position.Hub)(nil)
