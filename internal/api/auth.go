package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/acbuy/internal/identity"
	"github.com/ashureev/acbuy/internal/navigation"
)

// GetAuth returns the session's auth state.
func (h *Handler) GetAuth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.session(r).Auth())
}

// Login starts a login flow without a pending admin navigation.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	s.Identity.Login()
	JSON(w, http.StatusAccepted, s.Auth())
}

// CompleteLogin answers the running login prompt with an admin token.
func (h *Handler) CompleteLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s := h.session(r)
	if err := s.Prompt.Complete(body.Token); err != nil {
		h.promptError(w, err)
		return
	}
	// The outcome arrives on the event stream once the token is verified.
	JSON(w, http.StatusAccepted, map[string]string{"status": "verifying"})
}

// CancelLogin aborts the running login prompt.
func (h *Handler) CancelLogin(w http.ResponseWriter, r *http.Request) {
	if err := h.session(r).Prompt.Cancel(); err != nil {
		h.promptError(w, err)
		return
	}
	JSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (h *Handler) promptError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrNoPrompt):
		Error(w, http.StatusConflict, "no_login_in_progress")
	case errors.Is(err, identity.ErrEmptyToken):
		Error(w, http.StatusBadRequest, "token is required")
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}

// Logout clears the identity and sends the browser home.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	s.Logout()
	JSON(w, http.StatusOK, map[string]string{
		"status":   "logged_out",
		"navigate": navigation.HomePath,
	})
}

// OpenAdmin asks for the admin view. It navigates at once when already
// authenticated and otherwise defers until the login resolves.
func (h *Handler) OpenAdmin(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	s.Nav.Request()

	resp := map[string]interface{}{
		"navigation": s.Nav.State(),
		"pending":    s.Nav.Pending(),
		"auth":       s.Auth(),
	}
	if s.Nav.State() == navigation.Done {
		resp["navigate"] = navigation.AdminPath
		JSON(w, http.StatusOK, resp)
		return
	}
	JSON(w, http.StatusAccepted, resp)
}
