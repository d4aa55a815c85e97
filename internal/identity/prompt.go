package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Verifier resolves a bearer token to a principal.
type Verifier interface {
	Whoami(ctx context.Context, token string) (string, error)
}

var (
	// ErrCancelled is returned when the user abandons the login prompt.
	ErrCancelled = errors.New("UserInterrupt: login cancelled by user")
	// ErrLoginTimeout is returned when nobody answers the prompt in time.
	ErrLoginTimeout = errors.New("login timed out waiting for credentials")
	// ErrNoPrompt is returned by Complete and Cancel when no login is waiting.
	ErrNoPrompt = errors.New("no login in progress")
	// ErrEmptyToken rejects a blank credential.
	ErrEmptyToken = errors.New("token must not be empty")
)

type answer struct {
	token     string
	cancelled bool
}

// PromptAuthenticator waits for the browser to answer a login prompt with
// an admin token, then verifies it with the backend.
type PromptAuthenticator struct {
	verifier Verifier
	timeout  time.Duration

	mu      sync.Mutex
	waiting chan answer
}

// NewPromptAuthenticator creates an authenticator whose prompts expire after timeout.
func NewPromptAuthenticator(verifier Verifier, timeout time.Duration) *PromptAuthenticator {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &PromptAuthenticator{verifier: verifier, timeout: timeout}
}

// Authenticate opens a prompt and blocks until it is answered, cancelled or expired.
func (a *PromptAuthenticator) Authenticate(ctx context.Context) (*Identity, error) {
	ch := make(chan answer, 1)
	a.mu.Lock()
	a.waiting = ch
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		if a.waiting == ch {
			a.waiting = nil
		}
		a.mu.Unlock()
	}()

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	var ans answer
	select {
	case ans = <-ch:
	case <-timer.C:
		return nil, ErrLoginTimeout
	case <-ctx.Done():
		return nil, fmt.Errorf("login aborted: %w", ctx.Err())
	}
	if ans.cancelled {
		return nil, ErrCancelled
	}

	principal, err := a.verifier.Whoami(ctx, ans.token)
	if err != nil {
		return nil, fmt.Errorf("verify credentials: %w", err)
	}
	return &Identity{Principal: principal, Token: ans.token}, nil
}

// Pending reports whether a prompt is waiting for an answer.
func (a *PromptAuthenticator) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.waiting != nil
}

// Complete answers the waiting prompt with a token.
func (a *PromptAuthenticator) Complete(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	return a.answer(answer{token: token})
}

// Cancel abandons the waiting prompt.
func (a *PromptAuthenticator) Cancel() error {
	return a.answer(answer{cancelled: true})
}

func (a *PromptAuthenticator) answer(ans answer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.waiting == nil {
		return ErrNoPrompt
	}
	select {
	case a.waiting <- ans:
	default:
		// Already answered; the first answer stands.
	}
	a.waiting = nil
	return nil
}
