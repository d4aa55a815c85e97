package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Checker probes a dependency.
type Checker func(ctx context.Context) error

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	backend Checker
	timeout time.Duration
	h       *Handler
}

// NewHealthHandler creates a health handler probing the backend with check.
func NewHealthHandler(base *Handler, check Checker, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{backend: check, timeout: timeout, h: base}
}

// Health returns the health status of the API and its dependencies.
func (hh *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), hh.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status":   "healthy",
		"checks":   checks,
		"sessions": hh.h.sessions.Len(),
	}
	statusCode := http.StatusOK

	if hh.backend == nil {
		checks["backend"] = "unchecked"
	} else if err := hh.backend(ctx); err != nil {
		hh.h.logger.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["backend"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["backend"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (hh *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", hh.Health)
}
