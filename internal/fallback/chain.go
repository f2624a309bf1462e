// Package fallback runs an ordered list of narrative backends until one
// produces output that clears the quality gate.
package fallback

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/ports"
)

// GateFunc scores one raw narrative.
type GateFunc func(narrative string) domain.QualityResult

// Result describes a chain run that produced an accepted narrative.
type Result struct {
	Accepted domain.BackendAttempt
	// Failed holds every rejected attempt in order.
	Failed []domain.BackendAttempt
}

// Chain is a static ordered list of eligible backends.
type Chain struct {
	backends []ports.Backend
	logger   *slog.Logger
}

// NewChain keeps the configured candidates in order and appends the local
// composer last unless it is already present, so the chain is never empty.
func NewChain(candidates []ports.Backend, composer ports.Backend, logger *slog.Logger) *Chain {
	c := &Chain{logger: logger}
	seen := false
	for _, b := range candidates {
		if b == nil || !b.Configured() {
			continue
		}
		if b.Name() == composer.Name() {
			seen = true
		}
		c.backends = append(c.backends, b)
	}
	if !seen {
		c.backends = append(c.backends, composer)
	}
	return c
}

// Names lists the eligible backends in attempt order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Run tries each backend once, sequentially. The first output that passes
// the gate wins. When every backend fails the error is a
// *domain.BackendsExhaustedError. A done context stops the chain before the
// next attempt.
func (c *Chain) Run(ctx context.Context, in ports.GenerateInput, gate GateFunc) (Result, error) {
	var failed []domain.BackendAttempt

	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			failed = append(failed, domain.BackendAttempt{
				Backend: b.Name(),
				Reason:  domain.ReasonCanceled,
				Error:   err.Error(),
			})
			return Result{Failed: failed}, &domain.BackendsExhaustedError{Attempts: failed, Cause: err}
		}

		attempt := c.attempt(ctx, b, in, gate)
		if attempt.Reason == domain.ReasonAccepted {
			return Result{Accepted: attempt, Failed: failed}, nil
		}
		failed = append(failed, attempt)

		if attempt.Reason == domain.ReasonCanceled {
			return Result{Failed: failed}, &domain.BackendsExhaustedError{Attempts: failed, Cause: ctx.Err()}
		}
	}

	c.logger.ErrorContext(ctx, "all narrative backends failed", "attempts", len(failed))
	return Result{Failed: failed}, &domain.BackendsExhaustedError{Attempts: failed}
}

func (c *Chain) attempt(ctx context.Context, b ports.Backend, in ports.GenerateInput, gate GateFunc) domain.BackendAttempt {
	start := time.Now()
	out, err := b.Generate(ctx, in)
	a := domain.BackendAttempt{
		Backend:   b.Name(),
		Model:     out.Model,
		Text:      out.Text,
		Prompts:   out.Prompts,
		Usage:     out.Usage,
		LatencyMS: time.Since(start).Milliseconds(),
	}

	switch {
	case err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled)):
		a.Reason, a.Error = domain.ReasonCanceled, err.Error()
	case err != nil:
		a.Reason, a.Error = domain.ReasonTransportError, err.Error()
	case strings.TrimSpace(out.Text) == "":
		a.Reason, a.Error = domain.ReasonEmptyOutput, domain.ErrEmptyNarrative.Error()
	default:
		q := gate(out.Text)
		a.Quality = &q
		if q.Passed {
			a.Reason = domain.ReasonAccepted
		} else {
			a.Reason, a.Error = domain.ReasonQualityGate, strings.Join(q.Issues, "; ")
		}
	}

	if a.Reason != domain.ReasonAccepted {
		c.logger.WarnContext(ctx, "backend attempt rejected, trying next",
			"backend", a.Backend, "reason", a.Reason, "error", a.Error, "latency_ms", a.LatencyMS)
	} else {
		c.logger.InfoContext(ctx, "backend attempt accepted", "backend", a.Backend, "latency_ms", a.LatencyMS)
	}
	return a
}
