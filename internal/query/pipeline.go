// Package query runs backend reads with connection gating, bounded retries
// and one in-flight run per query key.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/acbuy/internal/backend"
	"github.com/ashureev/acbuy/internal/classify"
	"github.com/ashureev/acbuy/internal/connection"
	"github.com/ashureev/acbuy/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Query keys.
const (
	KeyAll      = "all"
	KeyContacts = "contacts"

	submissionKeyPrefix = "submission:"
)

// SubmissionKey is the cache key of one submission.
func SubmissionKey(id string) string {
	return submissionKeyPrefix + id
}

var (
	// ErrNotReady means the connection is absent or reconnecting; no call was made.
	ErrNotReady = errors.New("backend connection not ready")
	// ErrNoID means a single-submission query was asked for without an id.
	ErrNoID = errors.New("submission id is required")
	// ErrUnknownKey is returned by Refetch for keys it cannot map to a query.
	ErrUnknownKey = errors.New("unknown query key")

	errPanic = errors.New("query panicked")
)

type fetchFunc func(ctx context.Context, actor backend.Actor) (any, error)

// Snapshot is the observable state of one query key.
type Snapshot struct {
	Key       string           `json:"key"`
	Data      any              `json:"-"`
	HasData   bool             `json:"has_data"`
	Err       *classify.Result `json:"error,omitempty"`
	Attempts  int              `json:"attempts"`
	NextDelay time.Duration    `json:"next_delay"`
	Fetching  bool             `json:"fetching"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPolicy overrides the retry policy.
func WithPolicy(p Policy) Option { return func(q *Pipeline) { q.policy = p } }

// WithStaleTime serves cached results younger than d without a call.
func WithStaleTime(d time.Duration) Option { return func(q *Pipeline) { q.staleTime = d } }

// WithSleeper replaces the backoff wait. Tests use it to record delays.
func WithSleeper(s Sleeper) Option { return func(q *Pipeline) { q.sleep = s } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(q *Pipeline) { q.logger = l } }

// Pipeline runs queries for one session.
type Pipeline struct {
	src       connection.Source
	policy    Policy
	staleTime time.Duration
	sleep     Sleeper
	now       func() time.Time
	logger    *slog.Logger

	base   context.Context
	cancel context.CancelFunc
	group  singleflight.Group

	mu      sync.Mutex
	entries map[string]*Snapshot
}

// New creates a pipeline reading handles from src.
func New(src connection.Source, opts ...Option) *Pipeline {
	base, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		src:     src,
		policy:  DefaultPolicy(),
		sleep:   sleepCtx,
		now:     time.Now,
		logger:  slog.Default(),
		base:    base,
		cancel:  cancel,
		entries: make(map[string]*Snapshot),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Close aborts runs that are waiting to retry.
func (p *Pipeline) Close() {
	p.cancel()
}

// Ready reports whether queries may run right now.
func (p *Pipeline) Ready() bool {
	return p.src.Current() != nil && !p.src.IsConnecting()
}

func listAll(ctx context.Context, a backend.Actor) (any, error) {
	return a.ListSubmissions(ctx)
}

func listContacts(ctx context.Context, a backend.Actor) (any, error) {
	return a.ListCustomerContacts(ctx)
}

func getOne(id string) fetchFunc {
	return func(ctx context.Context, a backend.Actor) (any, error) {
		return a.GetSubmission(ctx, id)
	}
}

// FetchAll returns every submission in server order.
func (p *Pipeline) FetchAll(ctx context.Context) ([]domain.Submission, error) {
	v, err := p.fetch(ctx, KeyAll, false, listAll)
	if err != nil {
		return nil, err
	}
	return v.([]domain.Submission), nil
}

// FetchOne returns a submission, or nil when the backend has none with that id.
func (p *Pipeline) FetchOne(ctx context.Context, id string) (*domain.Submission, error) {
	if id == "" {
		return nil, ErrNoID
	}
	v, err := p.fetch(ctx, SubmissionKey(id), false, getOne(id))
	if err != nil {
		return nil, err
	}
	return v.(*domain.Submission), nil
}

// FetchContacts returns customer contact details.
func (p *Pipeline) FetchContacts(ctx context.Context) ([]domain.Contact, error) {
	v, err := p.fetch(ctx, KeyContacts, false, listContacts)
	if err != nil {
		return nil, err
	}
	return v.([]domain.Contact), nil
}

// Refetch re-runs the query for key now, ignoring cache freshness.
func (p *Pipeline) Refetch(ctx context.Context, key string) (any, error) {
	var fn fetchFunc
	switch {
	case key == KeyAll:
		fn = listAll
	case key == KeyContacts:
		fn = listContacts
	case strings.HasPrefix(key, submissionKeyPrefix):
		id := strings.TrimPrefix(key, submissionKeyPrefix)
		if id == "" {
			return nil, ErrNoID
		}
		fn = getOne(id)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return p.fetch(ctx, key, true, fn)
}

// Snapshot returns the state of key. The zero Snapshot means it never ran.
func (p *Pipeline) Snapshot(key string) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok {
		return *e
	}
	return Snapshot{Key: key}
}

func (p *Pipeline) fetch(ctx context.Context, key string, force bool, fn fetchFunc) (any, error) {
	if !p.Ready() {
		return nil, ErrNotReady
	}
	if !force {
		if v, ok := p.fresh(key); ok {
			return v, nil
		}
	}

	// The run is shared by every caller of key and outlives any one of them.
	ch := p.group.DoChan(key, func() (any, error) {
		return p.run(key, fn)
	})
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pipeline) fresh(key string) (any, bool) {
	if p.staleTime <= 0 {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok || !e.HasData || e.Err != nil || e.Fetching {
		return nil, false
	}
	if p.now().Sub(e.UpdatedAt) >= p.staleTime {
		return nil, false
	}
	return e.Data, true
}

func (p *Pipeline) update(key string, fn func(e *Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok {
		e = &Snapshot{Key: key}
		p.entries[key] = e
	}
	fn(e)
}

func (p *Pipeline) run(key string, fn fetchFunc) (v any, err error) {
	ctx := p.base
	p.update(key, func(e *Snapshot) {
		e.Fetching = true
		e.Attempts = 0
		e.NextDelay = 0
	})

	var (
		lastErr error
		last    classify.Result
	)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Query panicked", "key", key, "panic", r)
			v, err = nil, p.settle(key, classify.Classify(nil), fmt.Errorf("%w: %v", errPanic, r), nil)
		}
	}()

	for attempt := 0; attempt < p.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.policy.Delay(attempt - 1)
			p.update(key, func(e *Snapshot) { e.NextDelay = delay })
			p.logger.Debug("Retrying query",
				"key", key,
				"attempt", attempt+1,
				"delay", delay,
				"category", last.Category)
			if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
				return nil, p.settle(key, last, lastErr, sleepErr)
			}
		}

		// The handle is read afresh for every attempt.
		actor := p.src.Current()
		if actor == nil || p.src.IsConnecting() {
			return nil, p.settle(key, last, lastErr, ErrNotReady)
		}

		p.update(key, func(e *Snapshot) { e.Attempts = attempt + 1 })
		data, callErr := fn(ctx, actor)
		if callErr == nil {
			p.update(key, func(e *Snapshot) {
				e.Data, e.HasData = data, true
				e.Err = nil
				e.Fetching = false
				e.NextDelay = 0
				e.UpdatedAt = p.now()
			})
			return data, nil
		}

		lastErr = callErr
		last = classify.Classify(callErr)
		if !last.Category.Retryable() {
			p.logger.Info("Query failed without retry", "key", key, "category", last.Category, "error", callErr)
			break
		}
		p.logger.Warn("Query attempt failed", "key", key, "attempt", attempt+1, "category", last.Category, "error", callErr)
	}

	return nil, p.settle(key, last, lastErr, nil)
}

// settle ends a run that did not produce data. With no failed attempt the
// cause is returned as is. Otherwise the classified failure is stored on the
// key and returned, wrapping cause when the run stopped for another reason.
func (p *Pipeline) settle(key string, last classify.Result, lastErr, cause error) error {
	if lastErr == nil {
		p.update(key, func(e *Snapshot) {
			e.Fetching = false
			e.NextDelay = 0
		})
		return cause
	}
	p.update(key, func(e *Snapshot) {
		e.Err = &last
		e.Fetching = false
		e.NextDelay = 0
	})
	if cause != nil {
		lastErr = errors.Join(lastErr, cause)
	}
	return &classify.Error{Result: last, Err: lastErr}
}
