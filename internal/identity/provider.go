// Package identity tracks who the session is logged in as and runs the login flow.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Status is the coarse state of the identity provider.
type Status int

const (
	StatusUninitialized Status = iota
	StatusInitializing
	StatusIdle
	StatusLoggingIn
	StatusSuccess
	StatusLoginError
)

var statusNames = [...]string{"uninitialized", "initializing", "idle", "logging-in", "success", "login-error"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// MarshalText renders the status name in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Identity is an authenticated principal and the bearer token proving it.
type Identity struct {
	Principal string
	Token     string
}

// AuthState is a snapshot of the provider.
type AuthState struct {
	Identity *Identity
	Status   Status
	LoginErr error
}

// Authenticated reports whether an identity is present and the last login succeeded.
func (s AuthState) Authenticated() bool {
	return s.Identity != nil && s.Status == StatusSuccess
}

// Authenticator runs one login attempt to completion.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Identity, error)
}

var errNoIdentity = errors.New("login finished without an identity")

// Provider owns the session's AuthState. It is the only writer of that state.
type Provider struct {
	auth   Authenticator
	logger *slog.Logger

	mu     sync.Mutex
	state  AuthState
	subs   map[int]chan AuthState
	nextID int
	cancel context.CancelFunc
	ctx    context.Context

	// flow is the generation of the running login; only that login may commit.
	flow       uint64
	flowCancel context.CancelFunc
}

// NewProvider creates a provider in the uninitialized state. ctx bounds
// every login the provider starts.
func NewProvider(ctx context.Context, auth Authenticator, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Provider{
		auth:   auth,
		logger: logger,
		subs:   make(map[int]chan AuthState),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Init moves the provider through initializing to idle. There is no stored
// identity to restore, so this completes immediately.
func (p *Provider) Init() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Status != StatusUninitialized {
		return
	}
	p.setLocked(AuthState{Status: StatusInitializing})
	p.setLocked(AuthState{Status: StatusIdle})
}

// State returns the current snapshot.
func (p *Provider) State() AuthState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsInitializing reports whether the provider has not finished starting up.
func (p *Provider) IsInitializing() bool {
	s := p.State().Status
	return s == StatusUninitialized || s == StatusInitializing
}

// IsLoggingIn reports whether a login flow is running.
func (p *Provider) IsLoggingIn() bool {
	return p.State().Status == StatusLoggingIn
}

// Login starts a login flow and returns at once. The outcome is only
// observable through later state changes. Calling Login while a flow is
// running does nothing.
func (p *Provider) Login() {
	p.mu.Lock()
	if p.state.Status == StatusLoggingIn || p.ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	p.flow++
	gen := p.flow
	ctx, cancel := context.WithCancel(p.ctx)
	p.flowCancel = cancel
	p.setLocked(AuthState{Identity: p.state.Identity, Status: StatusLoggingIn})
	p.mu.Unlock()

	go p.runLogin(ctx, gen)
}

func (p *Provider) runLogin(ctx context.Context, gen uint64) {
	id, err := p.auth.Authenticate(ctx)
	if err == nil && id == nil {
		err = errNoIdentity
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// A logout during the flow, or a newer flow, wins.
	if gen != p.flow || p.state.Status != StatusLoggingIn {
		p.logger.Debug("Discarding abandoned login", "flow", gen, "error", err)
		return
	}
	p.endFlowLocked()
	if err != nil {
		p.logger.Info("Login failed", "error", err)
		p.setLocked(AuthState{Status: StatusLoginError, LoginErr: err})
		return
	}
	p.logger.Info("Login succeeded", "principal", id.Principal)
	p.setLocked(AuthState{Identity: id, Status: StatusSuccess})
}

// Logout clears the identity.
func (p *Provider) Logout() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Identity == nil && p.state.Status != StatusLoggingIn && p.state.Status != StatusLoginError {
		return
	}
	p.endFlowLocked()
	p.setLocked(AuthState{Status: StatusIdle})
}

// endFlowLocked aborts the running login, if any, and retires its generation.
func (p *Provider) endFlowLocked() {
	if p.flowCancel != nil {
		p.flowCancel()
		p.flowCancel = nil
	}
	p.flow++
}

// Subscribe returns a channel receiving every state change, starting with
// the current state. The channel keeps only the latest undelivered state.
func (p *Provider) Subscribe() (<-chan AuthState, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan AuthState, 1)
	ch <- p.state
	id := p.nextID
	p.nextID++
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if _, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(ch)
			}
		})
	}
}

// Close aborts any running login and closes all subscriptions.
func (p *Provider) Close() {
	p.cancel()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endFlowLocked()
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}

func (p *Provider) setLocked(s AuthState) {
	p.state = s
	for _, ch := range p.subs {
		// Drop a stale pending state so the newest one is always delivered.
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
