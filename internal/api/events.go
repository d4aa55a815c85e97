package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ashureev/acbuy/internal/events"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Events streams the session's notices, navigation and auth changes over a
// WebSocket until the client goes away.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	s := h.session(r)
	tabID := r.URL.Query().Get("tab")
	if tabID == "" {
		tabID = uuid.NewString()
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "device_id", s.DeviceID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "device_id", s.DeviceID)
		}
	}()

	ch := s.Events.Register(tabID)
	defer s.Events.Unregister(tabID, ch)

	// Clients never send; CloseRead ends ctx when the peer closes.
	ctx := ws.CloseRead(r.Context())

	if err := writeEvent(ctx, ws, events.Event{Type: events.KindAuth, Data: s.Auth()}); err != nil {
		h.logger.Debug("Failed to send initial auth event", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("Event stream closed by client", "device_id", s.DeviceID, "tab_id", tabID)
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(ctx, ws, e); err != nil {
				h.logger.Debug("WebSocket write error", "error", err, "device_id", s.DeviceID)
				return
			}
			s.Touch()
		}
	}
}

func writeEvent(ctx context.Context, ws *websocket.Conn, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if strings.TrimRight(origin, "/") == strings.TrimRight(h.allowedOrigin, "/") {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
