package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/acbuy/internal/connection"
	"github.com/ashureev/acbuy/internal/domain"
	"github.com/ashureev/acbuy/internal/events"
	"github.com/ashureev/acbuy/internal/navigation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/connectivity"
)

type fakeConn struct {
	token string
}

func (c *fakeConn) SubmitAC(context.Context, domain.SubmissionRequest) (domain.SubmissionResult, error) {
	return domain.SubmissionResult{Kind: domain.ResultSuccess}, nil
}
func (c *fakeConn) ListSubmissions(context.Context) ([]domain.Submission, error) { return nil, nil }
func (c *fakeConn) GetSubmission(context.Context, string) (*domain.Submission, error) {
	return nil, nil
}
func (c *fakeConn) ListCustomerContacts(context.Context) ([]domain.Contact, error) { return nil, nil }
func (c *fakeConn) WaitForReady(context.Context) error                           { return nil }
func (c *fakeConn) State() connectivity.State                                     { return connectivity.Ready }
func (c *fakeConn) Close()                                                        {}

type dialLog struct {
	mu     sync.Mutex
	tokens []string
}

func (d *dialLog) dial(token string) (connection.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens = append(d.tokens, token)
	return &fakeConn{token: token}, nil
}

func (d *dialLog) last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.tokens) == 0 {
		return "<none>"
	}
	return d.tokens[len(d.tokens)-1]
}

type verifier map[string]string

func (v verifier) Whoami(_ context.Context, token string) (string, error) {
	if p, ok := v[token]; ok {
		return p, nil
	}
	return "", errors.New("anonymous caller: admin identity required")
}

func testConfig() Config {
	return Config{
		Schema:              domain.SchemaEnum,
		ConnectTimeout:      time.Second,
		LoginTimeout:        time.Second,
		SubmitRatePerMinute: 2,
	}
}

func nextEvent(t *testing.T, ch <-chan events.Event, kind events.Kind) events.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestRegistry_GetCreatesOnce(t *testing.T) {
	d := &dialLog{}
	r := NewRegistry(testConfig(), d.dial, verifier{}, nil)
	defer r.Close()

	a := r.Get("dev_a")
	b := r.Get("dev_a")
	assert.Same(t, a, b)
	assert.Equal(t, 1, r.Len())

	_, ok := r.Lookup("dev_missing")
	assert.False(t, ok)

	require.Eventually(t, func() bool { return a.Conn.Current() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "", d.last())
}

func TestSession_LoginResetsConnectionAndNavigates(t *testing.T) {
	d := &dialLog{}
	r := NewRegistry(testConfig(), d.dial, verifier{"secret": "ops"}, nil)
	defer r.Close()

	s := r.Get("dev_a")
	ch := s.Events.Register("tab-1")

	s.Nav.Request()
	require.Eventually(t, s.Prompt.Pending, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Prompt.Complete("secret"))

	e := nextEvent(t, ch, events.KindNavigate)
	assert.Equal(t, map[string]string{"target": navigation.AdminPath}, e.Data)

	require.Eventually(t, func() bool { return d.last() == "secret" }, time.Second, 5*time.Millisecond)
	view := s.Auth()
	assert.True(t, view.Authenticated)
	assert.Equal(t, "ops", view.Principal)
	assert.Equal(t, navigation.Done, view.Navigation)

	s.Logout()
	e = nextEvent(t, ch, events.KindNavigate)
	assert.Equal(t, map[string]string{"target": navigation.HomePath}, e.Data)
	require.Eventually(t, func() bool { return d.last() == "" }, time.Second, 5*time.Millisecond)
	assert.False(t, s.Auth().Authenticated)
}

func TestSession_CancelledLoginNotice(t *testing.T) {
	r := NewRegistry(testConfig(), (&dialLog{}).dial, verifier{}, nil)
	defer r.Close()

	s := r.Get("dev_a")
	ch := s.Events.Register("tab-1")

	s.Nav.Request()
	require.Eventually(t, s.Prompt.Pending, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Prompt.Cancel())

	e := nextEvent(t, ch, events.KindNotice)
	n, ok := e.Data.(navigation.Notice)
	require.True(t, ok)
	assert.Equal(t, navigation.LevelInfo, n.Level)
	assert.False(t, s.Nav.Pending())
}

func TestSession_AllowSubmit(t *testing.T) {
	r := NewRegistry(testConfig(), (&dialLog{}).dial, verifier{}, nil)
	defer r.Close()

	s := r.Get("dev_a")
	assert.True(t, s.AllowSubmit())
	assert.True(t, s.AllowSubmit())
	assert.False(t, s.AllowSubmit())

	unlimited := newLimiter(0)
	for i := 0; i < 100; i++ {
		require.True(t, unlimited.Allow())
	}
}

func TestRegistry_Sweep(t *testing.T) {
	r := NewRegistry(testConfig(), (&dialLog{}).dial, verifier{}, nil)
	defer r.Close()

	r.Get("dev_old")
	fresh := r.Get("dev_new")
	fresh.Touch()

	var cleaned []string
	n := r.sweep(time.Now().Add(time.Hour), 30*time.Minute, func(id string) { cleaned = append(cleaned, id) })
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"dev_old", "dev_new"}, cleaned)
	assert.Zero(t, r.Len())

	r.Get("dev_live")
	assert.Zero(t, r.sweep(time.Now(), 30*time.Minute, nil))
	assert.Equal(t, 1, r.Len())
}

func TestSession_NavigatesOnlyAfterReconnect(t *testing.T) {
	d := &dialLog{}
	r := NewRegistry(testConfig(), d.dial, verifier{"secret": "ops"}, nil)
	defer r.Close()

	s := r.Get("dev_a")
	ch := s.Events.Register("tab-1")

	s.Nav.Request()
	require.Eventually(t, s.Prompt.Pending, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Prompt.Complete("secret"))

	nextEvent(t, ch, events.KindNavigate)
	conn, ok := s.Conn.Current().(*fakeConn)
	require.True(t, ok, "handle must be ready when the navigation is published")
	assert.Equal(t, "secret", conn.token)
}

func TestSession_LogoutDuringLoginAllowsFreshLogin(t *testing.T) {
	r := NewRegistry(testConfig(), (&dialLog{}).dial, verifier{"secret": "ops"}, nil)
	defer r.Close()

	s := r.Get("dev_a")
	ch := s.Events.Register("tab-1")

	s.Nav.Request()
	require.Eventually(t, s.Prompt.Pending, time.Second, 5*time.Millisecond)
	s.Logout()
	require.Eventually(t, func() bool { return !s.Prompt.Pending() }, time.Second, 5*time.Millisecond)
	nextEvent(t, ch, events.KindNavigate)

	s.Nav.Request()
	require.Eventually(t, s.Prompt.Pending, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Prompt.Complete("secret"))

	e := nextEvent(t, ch, events.KindNavigate)
	assert.Equal(t, map[string]string{"target": navigation.AdminPath}, e.Data)
	assert.True(t, s.Auth().Authenticated)
}

func TestSession_BeginSubmitIsExclusive(t *testing.T) {
	r := NewRegistry(testConfig(), (&dialLog{}).dial, verifier{}, nil)
	defer r.Close()

	s := r.Get("dev_a")
	release, ok := s.BeginSubmit()
	require.True(t, ok)
	_, ok = s.BeginSubmit()
	assert.False(t, ok)

	release()
	release, ok = s.BeginSubmit()
	require.True(t, ok)
	release()
}
