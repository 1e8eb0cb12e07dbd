package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/juju/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/store-composite/internal/platform/apierr"
	"github.com/yungbote/store-composite/internal/platform/logger"
)

// Policy guards calls to one backend: the breaker admits the logical call,
// retry re-issues transient failures, and every attempt gets its own timeout.
// A logical call reports exactly one outcome to the breaker.
type Policy struct {
	name    string
	cfg     Config
	breaker *Breaker
	log     *logger.Logger
}

func NewPolicy(name string, cfg Config, clk clock.Clock, log *logger.Logger) (*Policy, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("resilience policy %q: %w", name, err)
	}
	if log == nil {
		log = logger.Nop()
	}
	br, err := NewBreaker(name, cfg.Breaker, clk)
	if err != nil {
		return nil, err
	}
	p := &Policy{
		name:    name,
		cfg:     cfg,
		breaker: br,
		log:     log.With("service", "ResiliencePolicy", "backend", name),
	}
	br.OnStateChange(func(t Transition) {
		p.log.Warn("Circuit breaker state changed", "from", string(t.From), "to", string(t.To))
	})
	return p, nil
}

func (p *Policy) Name() string      { return p.name }
func (p *Policy) Breaker() *Breaker { return p.breaker }

// Execute runs fn under p. It returns an apierr CircuitOpen error without
// calling fn while the breaker rejects calls.
func Execute[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	span := trace.SpanFromContext(ctx)

	permit, err := p.breaker.Acquire()
	if err != nil {
		span.AddEvent("circuit_breaker.rejected", trace.WithAttributes(
			attribute.String("backend", p.name),
			attribute.String("reason", err.Error()),
		))
		p.log.Debug("Call rejected by circuit breaker", "reason", err.Error())
		return zero, apierr.CircuitOpen(p.name)
	}

	attempt := 0
	res, err := retry(ctx, p.cfg.Retry, func() (T, error) {
		attempt++
		v, err := runAttempt(ctx, p.name, p.cfg.Timeout, fn)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !apierr.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, func(err error, wait time.Duration) {
		span.AddEvent("retry", trace.WithAttributes(
			attribute.String("backend", p.name),
			attribute.Int("attempt", attempt),
			attribute.String("error", err.Error()),
			attribute.Int64("wait_ms", wait.Milliseconds()),
		))
		p.log.Debug("Retrying call", "attempt", attempt, "wait", wait.String(), "error", err.Error())
	})

	if t, changed := permit.Release(outcomeOf(ctx, err)); changed {
		span.AddEvent("circuit_breaker.transition", trace.WithAttributes(
			attribute.String("backend", p.name),
			attribute.String("from", string(t.From)),
			attribute.String("to", string(t.To)),
		))
	}
	if err != nil {
		return zero, err
	}
	return res, nil
}

// runAttempt bounds one call by timeout. A deadline that fires while the
// parent context is still live becomes a transient Timeout error.
func runAttempt[T any](ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(attemptCtx)
	if err == nil {
		return v, nil
	}
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return v, apierr.Timeout(name, err)
	}
	return v, err
}

// outcomeOf maps a finished logical call to what the breaker records.
// Only transient failures count against backend health.
func outcomeOf(ctx context.Context, err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case ctx.Err() != nil:
		return OutcomeIgnored
	case apierr.IsTransient(err):
		return OutcomeFailure
	default:
		return OutcomeIgnored
	}
}
