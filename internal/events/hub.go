// Package events fans session events out to connected browser tabs.
package events

import (
	"log/slog"
	"sync"
)

// Kind names an event type.
type Kind string

const (
	KindNotice     Kind = "notice"
	KindNavigate   Kind = "navigate"
	KindAuth       Kind = "auth"
	KindSubmission Kind = "submission"
)

// Event is one message pushed to subscribers.
type Event struct {
	Type Kind `json:"type"`
	Data any  `json:"data,omitempty"`
}

const subscriberBuffer = 16

// Hub keeps the event subscribers of one device, keyed by tab id.
type Hub struct {
	deviceID string
	logger   *slog.Logger

	mu     sync.RWMutex
	active map[string]chan Event
	closed bool
}

// NewHub creates a hub for deviceID.
func NewHub(deviceID string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		deviceID: deviceID,
		logger:   logger,
		active:   make(map[string]chan Event),
	}
}

// Register adds a subscriber for tabID. A previous subscriber of the same tab
// is replaced and its channel closed.
func (h *Hub) Register(tabID string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch
	}
	if existing, ok := h.active[tabID]; ok {
		close(existing)
	}
	h.active[tabID] = ch
	h.logger.Info("Event subscriber registered", "device_id", h.deviceID, "tab_id", tabID)
	return ch
}

// Unregister removes tabID if ch is still its current subscriber.
func (h *Hub) Unregister(tabID string, ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.active[tabID]; ok && (<-chan Event)(current) == ch {
		close(current)
		delete(h.active, tabID)
		h.logger.Info("Event subscriber unregistered", "device_id", h.deviceID, "tab_id", tabID)
	}
}

// Publish delivers e to every subscriber. Slow subscribers miss events
// rather than block the publisher.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for tabID, ch := range h.active {
		select {
		case ch <- e:
		default:
			h.logger.Warn("Dropping event for slow subscriber",
				"device_id", h.deviceID,
				"tab_id", tabID,
				"type", e.Type)
		}
	}
}

// Count returns the number of subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for tabID, ch := range h.active {
		close(ch)
		delete(h.active, tabID)
	}
}
