package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/acbuy/internal/connection"
	"github.com/ashureev/acbuy/internal/identity"
)

// Registry maps device ids to sessions, creating them on first use.
type Registry struct {
	cfg      Config
	dial     connection.DialFunc
	verifier identity.Verifier
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, dial connection.DialFunc, verifier identity.Verifier, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:      cfg,
		dial:     dial,
		verifier: verifier,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for deviceID, creating it if needed.
func (r *Registry) Get(deviceID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[deviceID]; ok {
		s.Touch()
		return s
	}
	s := newSession(deviceID, r.cfg, r.dial, r.verifier, r.logger)
	r.sessions[deviceID] = s
	r.logger.Info("Session created", "device_id", deviceID, "active", len(r.sessions))
	return s
}

// Lookup returns the session for deviceID without creating one.
func (r *Registry) Lookup(deviceID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[deviceID]
	return s, ok
}

// Remove closes and forgets the session for deviceID.
func (r *Registry) Remove(deviceID string) {
	r.mu.Lock()
	s, ok := r.sessions[deviceID]
	delete(r.sessions, deviceID)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Expired returns the device ids idle for longer than ttl at now.
func (r *Registry) Expired(now time.Time, ttl time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, s := range r.sessions {
		if now.Sub(s.LastSeen()) > ttl {
			ids = append(ids, id)
		}
	}
	return ids
}

// CleanupCallback is called when the sweeper closes a session.
type CleanupCallback func(deviceID string)

// StartSweeper runs a background goroutine that periodically closes
// sessions idle for longer than ttl.
func (r *Registry) StartSweeper(ctx context.Context, interval, ttl time.Duration, onCleanup CleanupCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		r.logger.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case now := <-ticker.C:
				r.sweep(now, ttl, onCleanup)
			case <-ctx.Done():
				r.logger.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (r *Registry) sweep(now time.Time, ttl time.Duration, onCleanup CleanupCallback) int {
	expired := r.Expired(now, ttl)
	if len(expired) == 0 {
		return 0
	}

	r.logger.Info("Session sweeper found expired sessions", "count", len(expired))
	for _, id := range expired {
		r.Remove(id)
		if onCleanup != nil {
			onCleanup(id)
		}
	}
	r.logger.Info("Session sweeper cleanup completed", "cleaned", len(expired))
	return len(expired)
}
