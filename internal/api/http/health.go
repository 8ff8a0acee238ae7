package http

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
)

// healthTimeout bounds every dependency check.
const healthTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// HealthChecker aggregates named dependency checks.
type HealthChecker struct {
	checks map[string]HealthCheck
}

// NewHealthChecker creates a checker without dependencies.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]HealthCheck)}
}

// Add registers a named check.
func (h *HealthChecker) Add(name string, check HealthCheck) {
	h.checks[name] = check
}

// Register mounts /healthz.
func (h *HealthChecker) Register(r gin.IRoutes) {
	r.GET("/healthz", h.Handle)
}

// Handle reports 200 when every dependency is up and 503 otherwise.
func (h *HealthChecker) Handle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}

	slices.Sort(names)

	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			deps[name] = gin.H{"status": "down", "error": err.Error()}
			status = http.StatusServiceUnavailable

			continue
		}

		deps[name] = gin.H{"status": "up"}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":       overall,
		"dependencies": deps,
	})
}
