// Package connection holds the live handle to the backend service.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/acbuy/internal/backend"
	"google.golang.org/grpc/connectivity"
)

// Source is what the core needs from a connection provider.
type Source interface {
	// Current returns the live handle, or nil when none is established.
	Current() backend.Actor

	// IsConnecting reports whether the provider is (re)establishing the handle.
	IsConnecting() bool
}

// Conn is a backend client whose readiness can be driven and observed.
type Conn interface {
	backend.Actor
	WaitForReady(ctx context.Context) error
	State() connectivity.State
	Close()
}

// DialFunc builds a client for the given bearer token ("" for anonymous).
type DialFunc func(token string) (Conn, error)

// GrpcDialer returns a DialFunc producing gRPC clients from a base configuration.
func GrpcDialer(cfg backend.GrpcClientConfig, logger *slog.Logger) DialFunc {
	return func(token string) (Conn, error) {
		c := cfg
		c.Token = token
		client, err := backend.NewGrpcClient(c, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// ErrClosed is returned by Connect after Close.
var ErrClosed = errors.New("connection manager closed")

// Manager is the connection provider for one session. It owns the handle;
// nothing else may set or clear it.
type Manager struct {
	dial           DialFunc
	connectTimeout time.Duration
	logger         *slog.Logger

	mu         sync.Mutex
	conn       Conn
	ready      bool
	token      string
	generation uint64
	closed     bool

	connecting atomic.Int32
}

// NewManager creates a manager. Nothing is dialed until Connect.
func NewManager(dial DialFunc, connectTimeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	return &Manager{dial: dial, connectTimeout: connectTimeout, logger: logger}
}

// Current returns the handle once the connection is ready.
func (m *Manager) Current() backend.Actor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready || m.conn == nil {
		return nil
	}
	return m.conn
}

// IsConnecting reports whether a connect or reconnect is underway, or the
// established connection has dropped into a transient state.
func (m *Manager) IsConnecting() bool {
	if m.connecting.Load() > 0 {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil || !m.ready {
		return false
	}
	switch m.conn.State() {
	case connectivity.Connecting, connectivity.TransientFailure:
		return true
	}
	return false
}

// Connect establishes the handle with the current token if none is present.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.conn != nil && m.ready {
		m.mu.Unlock()
		return nil
	}
	token, gen := m.token, m.generation
	m.mu.Unlock()

	return m.establish(ctx, token, gen)
}

// Reset drops the current handle and reconnects with a new token. It is
// called when the session's identity changes.
func (m *Manager) Reset(ctx context.Context, token string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	old := m.conn
	m.conn, m.ready = nil, false
	m.token = token
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	m.logger.Info("Backend connection reset", "authenticated", token != "")
	return m.establish(ctx, token, gen)
}

func (m *Manager) establish(ctx context.Context, token string, gen uint64) error {
	m.connecting.Add(1)
	defer m.connecting.Add(-1)

	conn, err := m.dial(token)
	if err != nil {
		return fmt.Errorf("dial backend: %w", err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()
	if err := conn.WaitForReady(readyCtx); err != nil {
		conn.Close()
		m.logger.Warn("Backend not ready", "error", err)
		return fmt.Errorf("backend not ready: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// A newer Reset or Close won the race; this connection is stale.
	if m.closed || gen != m.generation || m.conn != nil {
		conn.Close()
		return nil
	}
	m.conn, m.ready = conn, true
	m.logger.Info("Backend connection ready")
	return nil
}

// Close releases the handle. Further Connect and Reset calls fail.
func (m *Manager) Close() {
	m.mu.Lock()
	conn := m.conn
	m.conn, m.ready, m.closed = nil, false, true
	m.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Ensure Manager implements Source.
var _ Source = (*Manager)(nil)
