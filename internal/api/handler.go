// Package api provides HTTP handlers for the acbuy front desk.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/acbuy/internal/classify"
	"github.com/ashureev/acbuy/internal/domain"
	"github.com/ashureev/acbuy/internal/identity"
	"github.com/ashureev/acbuy/internal/query"
	"github.com/ashureev/acbuy/internal/session"
	"github.com/go-chi/chi/v5"
)

// Handler provides common handler utilities.
type Handler struct {
	sessions      *session.Registry
	schema        domain.Schema
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(sessions *session.Registry, schema domain.Schema, allowedOrigin string, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions:      sessions,
		schema:        schema,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        logger,
	}
}

// RegisterRoutes registers every front desk route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Get("/pricing/estimate", h.GetEstimate)
		r.Post("/submissions", h.Submit)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/", h.GetAuth)
			r.Post("/login", h.Login)
			r.Post("/complete", h.CompleteLogin)
			r.Post("/cancel", h.CancelLogin)
			r.Post("/logout", h.Logout)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/open", h.OpenAdmin)
			r.Group(func(r chi.Router) {
				r.Use(h.requireAdmin)
				r.Get("/submissions", h.ListSubmissions)
				r.Get("/submissions/{id}", h.GetSubmission)
				r.Get("/contacts", h.ListContacts)
				r.Get("/queries", h.QueryStatus)
				r.Post("/refresh", h.Refresh)
			})
		})
	})
	r.Get("/ws/events", h.Events)
}

// session returns the caller's session, creating it on first use.
func (h *Handler) session(r *http.Request) *session.Session {
	return h.sessions.Get(identity.DeviceIDFromContext(r.Context()))
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// QueryError writes the response for a failed query. Remote failures are
// already classified by the query pipeline.
func QueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrNotReady):
		JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error": "Backend connection not ready. Please try again.",
			"retry": true,
		})
		return
	case errors.Is(err, query.ErrNoID), errors.Is(err, query.ErrUnknownKey):
		Error(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		Error(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}

	res := classify.Of(err)
	status := http.StatusBadGateway
	switch res.Category {
	case classify.Authentication:
		status = http.StatusUnauthorized
	case classify.Timeout:
		status = http.StatusGatewayTimeout
	case classify.ServiceUnavailable:
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, map[string]interface{}{
		"error":    res.Message,
		"category": res.Category,
		"retry":    res.Category.Retryable(),
	})
}
