package api

import (
	"net/http"
	"sort"

	"github.com/ashureev/acbuy/internal/domain"
	"github.com/ashureev/acbuy/internal/query"
	"github.com/go-chi/chi/v5"
)

// requireAdmin rejects callers whose session is not authenticated.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := h.session(r)
		if !s.Auth().Authenticated {
			Error(w, http.StatusUnauthorized, "authentication required")
			return
		}
		s.EnsureConnected(r.Context())
		next.ServeHTTP(w, r)
	})
}

// ListSubmissions returns every submission, newest first.
func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.session(r).Queries.FetchAll(r.Context())
	if err != nil {
		QueryError(w, err)
		return
	}

	// The cached slice is shared; sort a copy.
	sorted := make([]domain.Submission, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp > sorted[j].Timestamp
	})
	JSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(sorted),
		"submissions": sorted,
	})
}

// GetSubmission returns one submission.
func (h *Handler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.session(r).Queries.FetchOne(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		QueryError(w, err)
		return
	}
	if sub == nil {
		Error(w, http.StatusNotFound, "submission not found")
		return
	}
	JSON(w, http.StatusOK, sub)
}

// ListContacts returns the customers' contact details.
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.session(r).Queries.FetchContacts(r.Context())
	if err != nil {
		QueryError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(contacts),
		"contacts": contacts,
	})
}

// Refresh re-runs the query named by ?key= (default "all") regardless of
// cache freshness. It is the manual retry after a terminal error.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		key = query.KeyAll
	}
	s := h.session(r)
	if _, err := s.Queries.Refetch(r.Context(), key); err != nil {
		QueryError(w, err)
		return
	}
	JSON(w, http.StatusOK, s.Queries.Snapshot(key))
}

// QueryStatus reports the retry state of the list queries.
func (h *Handler) QueryStatus(w http.ResponseWriter, r *http.Request) {
	q := h.session(r).Queries
	JSON(w, http.StatusOK, map[string]interface{}{
		"ready":    q.Ready(),
		"all":      q.Snapshot(query.KeyAll),
		"contacts": q.Snapshot(query.KeyContacts),
	})
}
