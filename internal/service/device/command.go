package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/bus-tracker/internal/api/mqtt"
	"github.com/oshokin/bus-tracker/internal/config"
	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/logger"
)

// Options configures the simulator.
type Options struct {
	// ConfigPath to YAML settings file.
	ConfigPath string
	// BrokerURL overrides the uplink broker from config.
	BrokerURL string
	// VehicleID is the simulated vehicle.
	VehicleID string
	// Route is the simulated drive.
	Route Route
	// Interval between fixes.
	Interval time.Duration
	// Count stops the simulator after that many fixes. Zero runs until canceled.
	Count int
}

// DefaultInterval is the fix period of the simulator.
const DefaultInterval = 2 * time.Second

// publishTimeout bounds a single MQTT publish.
const publishTimeout = 5 * time.Second

var (
	errVehicleRequired = errors.New("vehicle id must be provided")
	errBrokerRequired  = errors.New("uplink broker url must be provided")
)

// Run publishes fixes along the route until the count is reached or the context is canceled.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "tracker-device")

	if opts.VehicleID == "" {
		return errVehicleRequired
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	brokerURL := cfg.Uplink.BrokerURL
	if opts.BrokerURL != "" {
		brokerURL = opts.BrokerURL
	}

	if brokerURL == "" {
		return errBrokerRequired
	}

	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	client, err := mqtt.Connect(brokerURL, "device-"+opts.VehicleID)
	if err != nil {
		return err
	}

	defer client.Disconnect(250)

	sim := &simulator{
		client:    client,
		topic:     mqtt.Topic(opts.VehicleID),
		qos:       cfg.Uplink.QoS,
		vehicleID: opts.VehicleID,
	}

	logger.InfoKV(ctx, "Simulating device", "broker_url", brokerURL, "topic", sim.topic, "interval", opts.Interval.String())

	return sim.drive(ctx, opts.Route, opts.Interval, opts.Count)
}

// simulator publishes fixes for one vehicle.
type simulator struct {
	client    paho.Client
	topic     string
	qos       byte
	vehicleID string
}

func (s *simulator) drive(ctx context.Context, route Route, interval time.Duration, count int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	started := time.Now()

	for sent := 0; count <= 0 || sent < count; sent++ {
		now := time.Now()
		if err := s.publish(route.At(now.Sub(started), now)); err != nil {
			logger.WarnKV(ctx, "Failed to publish fix", "error", err)
		}

		if count > 0 && sent+1 == count {
			break
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}

	return nil
}

func (s *simulator) publish(p tracking.Position) error {
	payload, err := json.Marshal(Message(s.vehicleID, p))
	if err != nil {
		return fmt.Errorf("encode fix: %w", err)
	}

	token := s.client.Publish(s.topic, s.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timed out", s.topic)
	}

	return token.Error()
}

// Message converts a fix into the uplink payload. Timestamps are truncated to seconds.
func Message(vehicleID string, p tracking.Position) mqtt.LocationMessage {
	return mqtt.LocationMessage{
		VehicleID: vehicleID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Accuracy:  p.Accuracy,
		Speed:     p.Speed,
		Heading:   p.Heading,
		Timestamp: p.Timestamp.Unix(),
	}
}
