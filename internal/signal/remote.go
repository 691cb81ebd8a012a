package signal

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/groundgame-labs/outreach-engine/internal/config"
	"github.com/groundgame-labs/outreach-engine/internal/model"
	"github.com/groundgame-labs/outreach-engine/internal/resilience"
)

// Guard wraps a remote signal provider with the protections external model
// services need: per-call timeout, rate limiting, a circuit breaker, and
// bounded retries. When everything is exhausted the caller marks the signal
// missing rather than failing the score.
type Guard struct {
	inner   Provider
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[Value]
	retry   resilience.Policy

	// OnEvaluate is an optional latency hook, invoked with the wall time of
	// each evaluation including retries.
	OnEvaluate func(signal string, seconds float64)
}

// NewGuard wraps a provider per the signals configuration.
func NewGuard(inner Provider, cfg config.SignalsConfig) *Guard {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	openFor := time.Duration(cfg.BreakerOpenSecs) * time.Second
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 20
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	breaker := gobreaker.NewCircuitBreaker[Value](gobreaker.Settings{
		Name:    inner.Signal(),
		Timeout: openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*2 >= counts.Requests
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zap.L().Warn("signal breaker state change",
				zap.String("signal", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	retry := resilience.DefaultPolicy("signal." + inner.Signal())
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	retry.BaseDelay = 100 * time.Millisecond
	retry.MaxDelay = 2 * time.Second

	return &Guard{
		inner:   inner,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
		breaker: breaker,
		retry:   retry,
	}
}

// Signal returns the wrapped provider's signal name.
func (g *Guard) Signal() string { return g.inner.Signal() }

// Evaluate runs the wrapped provider under the guard. The breaker sits
// outside the retry loop so a persistently failing service trips after a few
// requests instead of a few dozen attempts.
func (g *Guard) Evaluate(ctx context.Context, req model.ActionRequest, identity model.MasterIdentity) (Value, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return Value{}, err
	}
	start := time.Now()
	v, err := g.breaker.Execute(func() (Value, error) {
		return resilience.Do(ctx, g.retry, func(ctx context.Context) (Value, error) {
			callCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			return g.inner.Evaluate(callCtx, req, identity)
		})
	})
	if g.OnEvaluate != nil {
		g.OnEvaluate(g.inner.Signal(), time.Since(start).Seconds())
	}
	return v, err
}
