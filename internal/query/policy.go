package query

import (
	"context"
	"time"
)

// Policy bounds how a failed query is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy allows 3 attempts with 1s, 2s backoff capped at 5s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Second,
	}
}

// Delay returns the wait before retry n (0-indexed): min(base * 2^n, max).
func (p Policy) Delay(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	// Past 2^30 the cap has long applied; avoid shifting into overflow.
	if retry > 30 {
		return p.MaxDelay
	}
	d := p.BaseDelay * time.Duration(1<<uint(retry))
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
