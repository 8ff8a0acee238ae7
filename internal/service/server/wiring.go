package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/bus-tracker/internal/config"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/notifier"
	"github.com/oshokin/bus-tracker/internal/notifier/livefeed"
	natsnotifier "github.com/oshokin/bus-tracker/internal/notifier/nats"
	"github.com/oshokin/bus-tracker/internal/notifier/rabbitmq"
	"github.com/oshokin/bus-tracker/internal/repository/location"
	"github.com/oshokin/bus-tracker/internal/service/tracker"
)

var errUnknownDriver = errors.New("unknown store driver")

// pinger is implemented by every component with a health check.
type pinger interface {
	Ping(ctx context.Context) error
}

// closer is a resource released on shutdown.
type closer struct {
	name  string
	close func() error
}

// readWriterStore joins the write fan-out with the backend answering reads.
type readWriterStore struct {
	location.Store
	location.Reader
}

// engineOptions maps the configuration onto the tracker engine.
func engineOptions(cfg *config.Config) tracker.Options {
	return tracker.Options{
		DefaultRadiusMeters:     cfg.Tracking.DefaultRadiusMeters,
		MinInterval:             cfg.Tracking.MinInterval,
		RepublishInterval:       cfg.Tracking.RepublishInterval,
		StopWait:                cfg.Tracking.StopWait,
		CompletedRetention:      cfg.Tracking.CompletedRetention,
		WriteQueueSize:          cfg.Tracking.WriteQueueSize,
		StoreAttempts:           cfg.Store.WriteAttempts,
		StoreBackoff:            cfg.Store.RetryBackoff,
		StoreTimeout:            cfg.Store.WriteTimeout,
		NotifyAttempts:          cfg.Notifier.Attempts,
		NotifyBackoff:           cfg.Notifier.Backoff,
		NotifyTimeout:           cfg.Notifier.Timeout,
		GeocodeTimeout:          cfg.Geocoding.Timeout,
		EmergencyFixTimeout:     cfg.Emergency.FixTimeout,
		EmergencyMaxFixAge:      cfg.Emergency.MaxFixAge,
		EmergencyNotifyAttempts: cfg.Emergency.NotifyAttempts,
	}
}

// openStores opens every configured backend. Writes fan out to all of them,
// the first one that can be read answers queries.
func (s *Server) openStores(ctx context.Context, cfg *config.StoreConfig) (location.ReadWriter, error) {
	var (
		stores []location.Store
		reader location.Reader
	)

	for _, backend := range cfg.Backends {
		store, err := openStore(ctx, backend, cfg)
		if err != nil {
			return nil, err
		}

		stores = append(stores, store)
		name := "store:" + backend.Driver

		if c, ok := store.(interface{ Close() error }); ok {
			s.closers = append(s.closers, closer{name: name, close: c.Close})
		}

		if p, ok := store.(pinger); ok {
			s.health.Add(name, p.Ping)
		}

		if r, ok := store.(location.Reader); ok && reader == nil {
			reader = r
		}

		logger.InfoKV(ctx, "Location store opened", "driver", backend.Driver)
	}

	if len(stores) == 0 {
		stores = append(stores, location.NewMemoryStore())
	}

	if reader == nil {
		reader = location.NewMemoryStore()
	}

	if len(stores) == 1 {
		if rw, ok := stores[0].(location.ReadWriter); ok {
			return rw, nil
		}
	}

	return readWriterStore{Store: location.Multi(stores), Reader: reader}, nil
}

//nolint:ireturn // Backends differ by driver.
func openStore(ctx context.Context, backend config.StoreBackend, cfg *config.StoreConfig) (location.Store, error) {
	switch backend.Driver {
	case config.StoreMemory:
		return location.NewMemoryStore(), nil
	case config.StorePostgres, config.StoreSQLite:
		store, err := location.OpenSQL(ctx, location.Dialect(backend.Driver), backend.DSN)
		if err != nil {
			return nil, err
		}

		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()

			return nil, err
		}

		return store, nil
	case config.StoreRedis:
		store, err := location.OpenRedis(ctx, backend.DSN,
			location.WithKeyPrefix(cfg.RedisKeyPrefix),
			location.WithTTL(cfg.RedisTTL),
		)
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownDriver, backend.Driver)
	}
}

// openNotifiers connects every configured transport. The log notifier is used
// when asked for or when nothing else is configured. The live feed and the log
// are best-effort: only AMQP or NATS can confirm a delivery when configured.
func (s *Server) openNotifiers(ctx context.Context, cfg *config.NotifierConfig) (*notifier.Fanout, error) {
	var named []notifier.Named

	if cfg.AMQP.URL != "" {
		publisher, err := rabbitmq.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, fmt.Errorf("connect amqp: %w", err)
		}

		named = append(named, notifier.Named{Name: "amqp", Notifier: publisher})
		s.closers = append(s.closers, closer{name: "notifier:amqp", close: publisher.Close})
		s.health.Add("notifier:amqp", publisher.Ping)
	}

	if cfg.NATS.URL != "" {
		publisher, err := natsnotifier.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}

		named = append(named, notifier.Named{Name: "nats", Notifier: publisher})
		s.closers = append(s.closers, closer{name: "notifier:nats", close: publisher.Close})
		s.health.Add("notifier:nats", publisher.Ping)
	}

	if cfg.LiveFeed.Enabled {
		s.feed = livefeed.New()
		named = append(named, notifier.Named{Name: "live_feed", Notifier: s.feed, BestEffort: true})
	}

	if cfg.Log || len(named) == 0 {
		named = append(named, notifier.Named{Name: "log", Notifier: notifier.Log{}, BestEffort: true})
	}

	for _, n := range named {
		logger.InfoKV(ctx, "Alert notifier configured", "notifier", n.Name)
	}

	return notifier.NewFanout(named...), nil
}
