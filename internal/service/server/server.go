package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/oshokin/bus-tracker/internal/api/grpc/tracking"
	httpapi "github.com/oshokin/bus-tracker/internal/api/http"
	"github.com/oshokin/bus-tracker/internal/api/mqtt"
	"github.com/oshokin/bus-tracker/internal/config"
	"github.com/oshokin/bus-tracker/internal/geocoding"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/notifier/livefeed"
	"github.com/oshokin/bus-tracker/internal/position"
	"github.com/oshokin/bus-tracker/internal/position/gtfsrt"
	"github.com/oshokin/bus-tracker/internal/service/tracker"
)

const (
	// shutdownTimeout bounds the whole graceful shutdown.
	shutdownTimeout = 15 * time.Second
	// readHeaderTimeout protects the HTTP API from slow clients.
	readHeaderTimeout = 5 * time.Second
)

// Server is a fully wired tracker process.
type Server struct {
	hub     *position.Hub
	engine  *tracker.Engine
	health  *httpapi.HealthChecker
	feed    *livefeed.Feed
	grpc    *grpc.Server
	http    *http.Server
	uplink  *mqtt.Uplink
	poller  *gtfsrt.Poller
	closers []closer
}

// New opens every configured backend and builds the engine.
// Resources opened before a failure are released.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{
		hub:    position.NewHub(),
		health: httpapi.NewHealthChecker(),
	}

	if err := s.init(ctx, cfg); err != nil {
		s.release(ctx)

		return nil, err
	}

	return s, nil
}

func (s *Server) init(ctx context.Context, cfg *config.Config) error {
	store, err := s.openStores(ctx, &cfg.Store)
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}

	fanout, err := s.openNotifiers(ctx, &cfg.Notifier)
	if err != nil {
		return fmt.Errorf("open notifiers: %w", err)
	}

	var geocoder geocoding.Geocoder = geocoding.Nop{}
	if len(cfg.Geocoding.Places) > 0 {
		geocoder = geocoding.NewStatic(cfg.Geocoding.Places, cfg.Geocoding.MaxDistanceMeters)
	}

	s.engine, err = tracker.New(tracker.Dependencies{
		Locator:  s.hub,
		Store:    store,
		Notifier: fanout,
		Geocoder: geocoder,
	}, engineOptions(cfg))
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	if cfg.Uplink.BrokerURL != "" {
		clientID := cfg.Uplink.ClientID
		if clientID == "" {
			clientID = "tracker-server"
		}

		client, err := mqtt.Connect(cfg.Uplink.BrokerURL, clientID)
		if err != nil {
			return fmt.Errorf("connect uplink: %w", err)
		}

		s.uplink = mqtt.NewUplink(ctx, client, s.hub, cfg.Uplink.Topic, cfg.Uplink.QoS)
		s.health.Add("uplink", s.uplink.Ping)
	}

	if cfg.GTFSRT.URL != "" {
		s.poller = gtfsrt.NewPoller(cfg.GTFSRT.URL, s.hub, gtfsrt.WithInterval(cfg.GTFSRT.Interval))
	}

	s.grpc = grpc.NewServer()
	tracking.RegisterTrackingServiceServer(s.grpc, tracking.NewServer(s.engine))

	routerConfig := httpapi.RouterConfig{
		Service:   s.engine,
		Positions: store,
		Health:    s.health,
	}

	if s.feed != nil {
		routerConfig.LiveFeed = s.feed
	}

	s.http = &http.Server{
		Handler:           httpapi.NewRouter(routerConfig),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return nil
}

// Hub is where position sources publish fixes.
func (s *Server) Hub() *position.Hub {
	return s.hub
}

// Engine returns the tracking engine.
func (s *Server) Engine() *tracker.Engine {
	return s.engine
}

// Serve blocks until the context is canceled or a listener fails, then shuts down gracefully.
// httpListener may be nil to disable the HTTP API.
func (s *Server) Serve(ctx context.Context, grpcListener, httpListener net.Listener) error {
	if s.uplink != nil {
		if err := s.uplink.Start(); err != nil {
			s.release(ctx)

			return fmt.Errorf("start uplink: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.InfoKV(ctx, "Tracker gRPC server listening", "listen_address", grpcListener.Addr().String())

		if err := s.grpc.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}

		return nil
	})

	if httpListener != nil {
		g.Go(func() error {
			logger.InfoKV(ctx, "Tracker HTTP API listening", "listen_address", httpListener.Addr().String())

			if err := s.http.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve HTTP: %w", err)
			}

			return nil
		})
	}

	if s.poller != nil {
		g.Go(func() error {
			return s.poller.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.shutdown(ctx, httpListener != nil)

		return nil
	})

	return g.Wait()
}

// shutdown stops intake first, then completes sessions and releases backends.
func (s *Server) shutdown(ctx context.Context, httpStarted bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	logger.Info(ctx, "Shutting down tracker server")

	if s.uplink != nil {
		s.uplink.Stop()
	}

	s.grpc.GracefulStop()

	if httpStarted {
		if err := s.http.Shutdown(ctx); err != nil {
			logger.WarnKV(ctx, "HTTP shutdown failed", "error", err)
		}
	}

	s.release(ctx)
	logger.Info(ctx, "Tracker server stopped")
}

// release stops every session and closes the backends.
func (s *Server) release(ctx context.Context) {
	if s.engine != nil {
		if err := s.engine.Close(ctx); err != nil {
			logger.WarnKV(ctx, "Failed to stop sessions", "error", err)
		}
	}

	s.hub.Close()

	if s.feed != nil {
		_ = s.feed.Close()
	}

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].close(); err != nil {
			logger.WarnKV(ctx, "Failed to close backend", "backend", s.closers[i].name, "error", err)
		}
	}

	s.closers = nil
}
