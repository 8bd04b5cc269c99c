// README: Liveness and dependency health endpoints.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const Version = "1.0.0"

// Check pings one dependency.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks  map[string]Check
	workers func() map[string]bool
}

func NewHealthHandler(checks map[string]Check, workers func() map[string]bool) *HealthHandler {
	return &HealthHandler{checks: checks, workers: workers}
}

func (h *HealthHandler) Root(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"status":  "ok",
		"message": "DriverBuddy API is running",
		"version": Version,
	})
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	healthy := true
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			deps[name] = "error: " + err.Error()
			healthy = false
			continue
		}
		deps[name] = "connected"
	}

	workers := map[string]string{}
	if h.workers != nil {
		for name, running := range h.workers() {
			workers[name] = "stopped"
			if running {
				workers[name] = "running"
			}
		}
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(c, code, gin.H{
		"status":       status,
		"dependencies": deps,
		"workers":      workers,
	})
}
