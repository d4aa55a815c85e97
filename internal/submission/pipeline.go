// Package submission drives a single remote write per customer submit action.
package submission

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ashureev/acbuy/internal/classify"
	"github.com/ashureev/acbuy/internal/connection"
	"github.com/ashureev/acbuy/internal/domain"
)

// User-facing messages for outcomes the classifier does not produce.
const (
	MsgNoConnection   = "Backend connection not available. Please refresh the page and try again."
	MsgRejected       = "Submission failed. Please check your inputs and try again."
	MsgUnexpectedKind = "Unexpected response from backend. Please try again."
)

// Pipeline submits requests through whatever handle the source currently holds.
// Callers must not overlap Submit calls; Submitting lets them check.
type Pipeline struct {
	src    connection.Source
	logger *slog.Logger

	submitting atomic.Bool
	mu         sync.Mutex
	lastErr    string
}

// New creates a pipeline reading handles from src.
func New(src connection.Source, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{src: src, logger: logger}
}

// Submitting reports whether a submission is in flight.
func (p *Pipeline) Submitting() bool {
	return p.submitting.Load()
}

// Err returns the message of the last failed attempt, or "".
func (p *Pipeline) Err() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Pipeline) setErr(msg string) {
	p.mu.Lock()
	p.lastErr = msg
	p.mu.Unlock()
}

// Submit performs one submission attempt and always returns exactly one outcome.
func (p *Pipeline) Submit(ctx context.Context, req domain.SubmissionRequest) (out domain.Outcome) {
	p.logger.Info("Starting submission",
		"brand", req.Brand,
		"model", req.Model,
		"age", req.Age,
		"condition", req.Condition.String(),
	)

	actor := p.src.Current()
	if actor == nil {
		p.logger.Error("Submission aborted: no backend connection")
		p.setErr(MsgNoConnection)
		return domain.Failed(MsgNoConnection)
	}

	p.submitting.Store(true)
	p.setErr("")
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Submission panicked", "panic", r)
			out = domain.Failed(classify.Classify(nil).Message)
			p.setErr(out.Message)
		}
		p.submitting.Store(false)
		p.logger.Info("Submission settled", "outcome", out.Kind)
	}()

	result, err := actor.SubmitAC(ctx, req)
	if err != nil {
		c := classify.Classify(err)
		p.logger.Error("Submission call failed", "error", err, "category", c.Category)
		p.setErr(c.Message)
		return domain.Failed(c.Message)
	}

	switch result.Kind {
	case domain.ResultSuccess:
		p.logger.Info("Submission accepted", "detail", result.Message)
		return domain.Succeeded()
	case domain.ResultError:
		msg := result.Message
		if msg == "" {
			msg = MsgRejected
		}
		p.logger.Warn("Backend rejected submission", "reason", msg)
		p.setErr(msg)
		return domain.Failed(msg)
	default:
		p.logger.Error("Unexpected submission result", "result", result)
		p.setErr(MsgUnexpectedKind)
		return domain.Failed(MsgUnexpectedKind)
	}
}
