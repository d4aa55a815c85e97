// Package navigation defers opening the admin view until login resolves.
package navigation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashureev/acbuy/internal/classify"
	"github.com/ashureev/acbuy/internal/identity"
)

// Navigation targets.
const (
	AdminPath = "/admin"
	HomePath  = "/"
)

// Notice texts.
const (
	MsgPleaseWait   = "Please wait, authentication is still initializing."
	MsgLoginSuccess = "Login successful."
)

// State of the machine.
type State int

const (
	Idle State = iota
	AwaitingAuth
	Done
)

var stateNames = [...]string{"idle", "awaiting-auth", "done"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Level is the severity of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is a message for the user.
type Notice struct {
	Level    Level             `json:"level"`
	Message  string            `json:"message"`
	Category classify.Category `json:"category,omitempty"`
}

// Auth is what the machine needs from the identity provider.
type Auth interface {
	State() identity.AuthState
	Login()
}

// Effects carries out the machine's side effects.
type Effects interface {
	Navigate(target string)
	Notify(n Notice)
}

// Machine coordinates an admin-view request with the asynchronous login flow.
type Machine struct {
	auth   Auth
	fx     Effects
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	pending  bool
	sawLogin bool
}

// New creates an idle machine.
func New(auth Auth, fx Effects, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{auth: auth, fx: fx, logger: logger}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending reports whether a navigation is waiting on authentication.
func (m *Machine) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// Request handles the user asking for the admin view.
func (m *Machine) Request() {
	m.mu.Lock()
	if m.state == Done {
		m.state = Idle
	}
	if m.state == AwaitingAuth || m.pending {
		m.mu.Unlock()
		m.logger.Debug("Admin request ignored: login already pending")
		return
	}

	s := m.auth.State()
	switch {
	case s.Authenticated():
		m.state = Done
		m.mu.Unlock()
		m.logger.Info("Opening admin view", "principal", s.Identity.Principal)
		m.fx.Navigate(AdminPath)

	case s.Status == identity.StatusUninitialized || s.Status == identity.StatusInitializing:
		m.mu.Unlock()
		m.fx.Notify(Notice{Level: LevelInfo, Message: MsgPleaseWait})

	case s.Status == identity.StatusLoggingIn:
		m.mu.Unlock()
		m.logger.Debug("Admin request ignored: login in progress")

	default:
		m.state = AwaitingAuth
		m.pending = true
		m.sawLogin = false
		m.mu.Unlock()
		m.logger.Info("Admin view requires login")
		m.auth.Login()
	}
}

// Observe reacts to an identity provider state change.
func (m *Machine) Observe(s identity.AuthState) {
	m.mu.Lock()
	if m.state != AwaitingAuth {
		m.mu.Unlock()
		return
	}

	switch {
	case s.Authenticated():
		m.state = Done
		m.pending = false
		m.mu.Unlock()
		m.logger.Info("Login resolved, opening admin view", "principal", s.Identity.Principal)
		m.fx.Navigate(AdminPath)
		m.fx.Notify(Notice{Level: LevelSuccess, Message: MsgLoginSuccess})

	case s.Status == identity.StatusLoginError:
		m.state = Idle
		m.pending = false
		m.mu.Unlock()
		r := classify.ClassifyLogin(s.LoginErr)
		level := LevelError
		if r.Category == classify.Cancelled {
			level = LevelInfo
		}
		m.logger.Info("Login failed", "category", r.Category, "error", s.LoginErr)
		m.fx.Notify(Notice{Level: level, Message: r.Message, Category: r.Category})

	case s.Status == identity.StatusLoggingIn:
		m.sawLogin = true
		m.mu.Unlock()

	case s.Status == identity.StatusIdle && m.sawLogin:
		// Logged out while the login was running.
		m.state = Idle
		m.pending = false
		m.mu.Unlock()
		m.logger.Info("Pending admin navigation abandoned")

	default:
		m.mu.Unlock()
	}
}

// Reset drops any pending navigation and returns to idle.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Idle
	m.pending = false
	m.sawLogin = false
}

// Run feeds states from ch into Observe until ctx ends or ch closes.
func (m *Machine) Run(ctx context.Context, ch <-chan identity.AuthState) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-ch:
			if !ok {
				return
			}
			m.Observe(s)
		}
	}
}
