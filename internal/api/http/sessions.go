package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oshokin/bus-tracker/internal/api/wire"
	"github.com/oshokin/bus-tracker/internal/domain/tracking"
	"github.com/oshokin/bus-tracker/internal/logger"
	"github.com/oshokin/bus-tracker/internal/position"
	"github.com/oshokin/bus-tracker/internal/repository/location"
)

// SessionHandler serves the session, emergency and vehicle endpoints.
type SessionHandler struct {
	service   Service
	positions location.Reader
}

// NewSessionHandler creates the handler. positions may be nil.
func NewSessionHandler(service Service, positions location.Reader) *SessionHandler {
	return &SessionHandler{service: service, positions: positions}
}

// Register mounts the routes on r.
func (h *SessionHandler) Register(r *gin.RouterGroup) {
	r.GET("/sessions", h.ListActive)
	r.POST("/sessions", h.Start)
	r.GET("/sessions/:id", h.Status)
	r.POST("/sessions/:id/stop", h.Stop)
	r.POST("/sessions/:id/positions", h.ReportPosition)
	r.GET("/sessions/:id/trail", h.Trail)
	r.POST("/vehicles/:vehicle_id/emergency", h.Emergency)
	r.GET("/vehicles/:vehicle_id/location", h.LatestLocation)
}

// ListActive returns every active session.
func (h *SessionHandler) ListActive(c *gin.Context) {
	sessions := h.service.ActiveSessions()

	views := make([]*wire.SessionView, len(sessions))
	for i, s := range sessions {
		views[i] = wire.NewSessionView(s)
	}

	c.JSON(http.StatusOK, views)
}

// Start starts a session.
func (h *SessionHandler) Start(c *gin.Context) {
	var req wire.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	start, err := req.ToDomain()
	if err != nil {
		writeError(c, err)

		return
	}

	session, err := h.service.StartSession(c.Request.Context(), start)
	if err != nil {
		writeError(c, err)

		return
	}

	c.JSON(http.StatusCreated, wire.NewSessionView(session))
}

// Status returns the polling view of a session.
func (h *SessionHandler) Status(c *gin.Context) {
	st, err := h.service.GetSessionStatus(c.Param("id"))
	if err != nil {
		writeError(c, err)

		return
	}

	c.JSON(http.StatusOK, wire.NewStatusView(st))
}

// Stop completes a session.
func (h *SessionHandler) Stop(c *gin.Context) {
	id := c.Param("id")

	if err := h.service.StopSession(c.Request.Context(), id); err != nil {
		writeError(c, err)

		return
	}

	session, err := h.service.Get(id)
	if err != nil {
		writeError(c, err)

		return
	}

	c.JSON(http.StatusOK, wire.NewSessionView(session))
}

// ReportPosition feeds a fix into a session.
func (h *SessionHandler) ReportPosition(c *gin.Context) {
	var p tracking.Position
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	accepted, err := h.service.ReportPosition(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		writeError(c, err)

		return
	}

	c.JSON(http.StatusOK, wire.ReportPositionResponse{Accepted: accepted})
}

// Trail returns the stored fixes of a session.
func (h *SessionHandler) Trail(c *gin.Context) {
	if h.positions == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "position history is not available"})

		return
	}

	trail, err := h.positions.Trail(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)

		return
	}

	if trail == nil {
		trail = []tracking.Position{}
	}

	c.JSON(http.StatusOK, trail)
}

// LatestLocation returns the vehicle's last stored fix.
func (h *SessionHandler) LatestLocation(c *gin.Context) {
	if h.positions == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "position history is not available"})

		return
	}

	p, err := h.positions.Latest(c.Request.Context(), c.Param("vehicle_id"))
	if err != nil {
		writeError(c, err)

		return
	}

	c.JSON(http.StatusOK, p)
}

// emergencyBody is the optional body of an emergency request. The vehicle comes from the path.
type emergencyBody struct {
	DriverID string `json:"driver_id"`
	Reason   string `json:"reason"`
}

// Emergency raises an emergency. A delivery failure still returns the event, with 502.
func (h *SessionHandler) Emergency(c *gin.Context) {
	var body emergencyBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

			return
		}
	}

	event, err := h.service.TriggerEmergency(c.Request.Context(), c.Param("vehicle_id"), body.DriverID, body.Reason)

	switch {
	case err == nil:
		c.JSON(http.StatusCreated, wire.EmergencyResponse{Event: event, Delivered: true})
	case event != nil && errors.Is(err, tracking.ErrDeliveryFailed):
		logger.WarnKV(c.Request.Context(), "Emergency created but not delivered", "event_id", event.ID, "error", err)
		c.JSON(http.StatusBadGateway, wire.EmergencyResponse{Event: event, Delivered: false})
	default:
		writeError(c, err)
	}
}

// writeError maps domain errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError

	switch {
	case errors.Is(err, tracking.ErrInvalidArgument), errors.Is(err, position.ErrInvalidFix):
		code = http.StatusBadRequest
	case errors.Is(err, tracking.ErrAlreadyTracking):
		code = http.StatusConflict
	case errors.Is(err, tracking.ErrNotFound), errors.Is(err, location.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, tracking.ErrSessionNotActive):
		code = http.StatusConflict
	case errors.Is(err, position.ErrPermissionDenied):
		code = http.StatusForbidden
	case errors.Is(err, tracking.ErrNoPositionAvailable),
		errors.Is(err, tracking.ErrShuttingDown),
		errors.Is(err, position.ErrUnavailable):
		code = http.StatusServiceUnavailable
	case errors.Is(err, position.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}

	if code == http.StatusInternalServerError {
		logger.ErrorKV(c.Request.Context(), "Request failed", "path", c.FullPath(), "error", err)
	}

	c.JSON(code, gin.H{"error": err.Error()})
}
