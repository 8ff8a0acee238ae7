package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/repository/location"
	"github.com/oshokin/bus-tracker/internal/service/tracker"
)

// Service is the tracker API used by the handlers.
type Service interface {
	StartSession(ctx context.Context, req tracker.StartRequest) (*tracking.Session, error)
	StopSession(ctx context.Context, sessionID string) error
	ReportPosition(ctx context.Context, sessionID string, p tracking.Position) (bool, error)
	TriggerEmergency(ctx context.Context, vehicleID, driverID, reason string) (*tracking.AlertEvent, error)
	GetSessionStatus(sessionID string) (*tracking.SessionStatus, error)
	Get(sessionID string) (*tracking.Session, error)
	ActiveSessions() []*tracking.Session
}

// RouterConfig lists what the router serves. Only Service is required.
type RouterConfig struct {
	Service Service
	// Positions answers last-seen and trail queries.
	Positions location.Reader
	// Health is served on /healthz.
	Health *HealthChecker
	// LiveFeed is served on /ws/alerts.
	LiveFeed http.Handler
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	if cfg.Health == nil {
		cfg.Health = NewHealthChecker()
	}

	cfg.Health.Register(r)

	if cfg.LiveFeed != nil {
		r.GET("/ws/alerts", gin.WrapH(cfg.LiveFeed))
	}

	api := r.Group("/api/v1")
	NewSessionHandler(cfg.Service, cfg.Positions).Register(api)

	return r
}

// requestLogger logs every request at debug level and failures at warn level.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()

		c.Next()

		ctx := c.Request.Context()
		kvs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(started),
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.WarnKV(ctx, "HTTP request failed", kvs...)

			return
		}

		logger.DebugKV(ctx, "HTTP request served", kvs...)
	}
}
