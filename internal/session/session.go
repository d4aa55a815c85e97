// Package session wires one browser device to its own identity provider,
// backend connection and pipelines.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/acbuy/internal/connection"
	"github.com/ashureev/acbuy/internal/domain"
	"github.com/ashureev/acbuy/internal/events"
	"github.com/ashureev/acbuy/internal/identity"
	"github.com/ashureev/acbuy/internal/navigation"
	"github.com/ashureev/acbuy/internal/query"
	"github.com/ashureev/acbuy/internal/submission"
	"golang.org/x/time/rate"
)

// Config tunes every session a Registry creates.
type Config struct {
	Schema              domain.Schema
	ConnectTimeout      time.Duration
	LoginTimeout        time.Duration
	QueryStaleTime      time.Duration
	SubmitRatePerMinute int
}

// AuthView is the JSON shape of a session's auth state.
type AuthView struct {
	Status        identity.Status  `json:"status"`
	Authenticated bool             `json:"authenticated"`
	Principal     string           `json:"principal,omitempty"`
	Prompting     bool             `json:"prompting"`
	Navigation    navigation.State `json:"navigation"`
	Error         string           `json:"error,omitempty"`
}

// Session is the per-device state of the front desk.
type Session struct {
	DeviceID    string
	Identity    *identity.Provider
	Prompt      *identity.PromptAuthenticator
	Conn        *connection.Manager
	Submissions *submission.Pipeline
	Queries     *query.Pipeline
	Nav         *navigation.Machine
	Events      *events.Hub

	limiter *rate.Limiter
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	submitMu sync.Mutex
	lastSeen atomic.Int64
	once     sync.Once
}

func newSession(deviceID string, cfg Config, dial connection.DialFunc, verifier identity.Verifier, logger *slog.Logger) *Session {
	logger = logger.With("device_id", deviceID)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		DeviceID: deviceID,
		Prompt:   identity.NewPromptAuthenticator(verifier, cfg.LoginTimeout),
		Conn:     connection.NewManager(dial, cfg.ConnectTimeout, logger),
		Events:   events.NewHub(deviceID, logger),
		limiter:  newLimiter(cfg.SubmitRatePerMinute),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.Identity = identity.NewProvider(ctx, s.Prompt, logger)
	s.Submissions = submission.New(s.Conn, logger)
	s.Queries = query.New(s.Conn, query.WithStaleTime(cfg.QueryStaleTime), query.WithLogger(logger))
	s.Nav = navigation.New(s.Identity, s, logger)
	s.Touch()

	authStates, unsubAuth := s.Identity.Subscribe()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer unsubAuth()
		s.watchIdentity(authStates)
	}()

	s.Identity.Init()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.EnsureConnected(ctx)
	}()
	return s
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// watchIdentity reconnects the backend with the new credentials whenever
// the identity changes, then feeds the navigation machine and mirrors the
// state to subscribers. Observe runs after the reset, so an admin
// navigation only goes out once the handle carries the new token.
func (s *Session) watchIdentity(ch <-chan identity.AuthState) {
	var token string
	for {
		select {
		case <-s.ctx.Done():
			return
		case st, ok := <-ch:
			if !ok {
				return
			}
			next := ""
			if st.Authenticated() {
				next = st.Identity.Token
			}
			if next != token {
				token = next
				if err := s.Conn.Reset(s.ctx, token); err != nil {
					s.logger.Warn("Backend reconnect failed", "error", err)
				}
			}
			s.Nav.Observe(st)
			s.Events.Publish(events.Event{Type: events.KindAuth, Data: s.viewOf(st)})
		}
	}
}

// EnsureConnected dials the backend if the session has no handle and no
// connect is underway.
func (s *Session) EnsureConnected(ctx context.Context) {
	if s.Conn.Current() != nil || s.Conn.IsConnecting() {
		return
	}
	if err := s.Conn.Connect(ctx); err != nil {
		s.logger.Warn("Backend connect failed", "error", err)
	}
}

// BeginSubmit claims the device's submit slot. It reports false while
// another submission holds it; otherwise the caller must call release.
func (s *Session) BeginSubmit() (release func(), ok bool) {
	if !s.submitMu.TryLock() {
		return nil, false
	}
	if s.Submissions.Submitting() {
		s.submitMu.Unlock()
		return nil, false
	}
	return s.submitMu.Unlock, true
}

// AllowSubmit reports whether the submit rate limit admits another attempt.
func (s *Session) AllowSubmit() bool {
	return s.limiter.Allow()
}

// Navigate pushes a navigation event to the device's tabs.
func (s *Session) Navigate(target string) {
	s.Events.Publish(events.Event{Type: events.KindNavigate, Data: map[string]string{"target": target}})
}

// Notify pushes a notice to the device's tabs.
func (s *Session) Notify(n navigation.Notice) {
	s.Events.Publish(events.Event{Type: events.KindNotice, Data: n})
}

// Logout clears the identity, drops any pending admin navigation and
// sends the device home.
func (s *Session) Logout() {
	s.Identity.Logout()
	if err := s.Prompt.Cancel(); err != nil && !errors.Is(err, identity.ErrNoPrompt) {
		s.logger.Warn("Failed to cancel login prompt", "error", err)
	}
	s.Nav.Reset()
	s.Navigate(navigation.HomePath)
}

// Auth returns the current auth view.
func (s *Session) Auth() AuthView {
	return s.viewOf(s.Identity.State())
}

func (s *Session) viewOf(st identity.AuthState) AuthView {
	v := AuthView{
		Status:        st.Status,
		Authenticated: st.Authenticated(),
		Prompting:     s.Prompt.Pending(),
		Navigation:    s.Nav.State(),
	}
	if st.Identity != nil {
		v.Principal = st.Identity.Principal
	}
	if st.LoginErr != nil {
		v.Error = st.LoginErr.Error()
	}
	return v
}

// Touch records activity.
func (s *Session) Touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen returns the time of the last recorded activity.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Close stops background work and releases the backend connection.
func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		s.Identity.Close()
		s.wg.Wait()
		s.Queries.Close()
		s.Conn.Close()
		s.Events.Close()
		s.logger.Info("Session closed")
	})
}
