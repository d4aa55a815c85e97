package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/acbuy/internal/domain"
	"github.com/ashureev/acbuy/internal/events"
	"github.com/ashureev/acbuy/internal/form"
	"github.com/ashureev/acbuy/internal/pricing"
)

// SuccessPath is where the browser goes after an accepted submission.
const SuccessPath = "/submission-success"

// GetConfig returns what the frontend needs to render the submission form.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	levels := make([]string, len(domain.ConditionLevels))
	for i, l := range domain.ConditionLevels {
		levels[i] = string(l)
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"schema":           h.schema,
		"condition_levels": levels,
		"max_age":          domain.MaxAge,
		"estimates":        pricing.All(),
	})
}

// GetEstimate returns the quick price estimate for ?range=.
func (h *Handler) GetEstimate(w http.ResponseWriter, r *http.Request) {
	e, err := pricing.Lookup(pricing.AgeRange(r.URL.Query().Get("range")))
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	JSON(w, http.StatusOK, e)
}

// Submit validates the posted form and runs one submission through the
// session's pipeline. The response body is always a single outcome.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)

	var f form.SubmissionForm
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&f); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	release, ok := s.BeginSubmit()
	if !ok {
		h.logger.Warn("Submission already in progress", "device_id", s.DeviceID)
		Error(w, http.StatusConflict, "submission_in_progress")
		return
	}
	defer release()

	if !s.AllowSubmit() {
		h.logger.Warn("Submission rate limited", "device_id", s.DeviceID)
		Error(w, http.StatusTooManyRequests, "Too many submissions. Please wait a moment and try again.")
		return
	}

	req, err := form.Parse(f, h.schema)
	if err != nil {
		var verr *form.ValidationError
		if errors.As(err, &verr) {
			JSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":  verr.Error(),
				"fields": verr.Fields,
			})
			return
		}
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	s.EnsureConnected(r.Context())
	out := s.Submissions.Submit(r.Context(), req)
	s.Events.Publish(events.Event{Type: events.KindSubmission, Data: out})

	resp := map[string]interface{}{"outcome": out}
	if out.OK() {
		resp["redirect"] = SuccessPath
	}
	JSON(w, http.StatusOK, resp)
}
