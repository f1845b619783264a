package graph

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/WessleyAI/chainrisk/engine/domain"
	"github.com/WessleyAI/chainrisk/pkg/metrics"
	"github.com/WessleyAI/chainrisk/pkg/resilience"
)

// GuardOpts configures a Guard.
type GuardOpts struct {
	// Timeout bounds each call. Zero leaves the caller's deadline alone.
	Timeout time.Duration
	// RateLimit is calls per second; zero disables limiting.
	RateLimit float64
	Burst     int
	Breaker   resilience.BreakerOpts
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Guard decorates a Port with a per-call timeout, a token-bucket limiter and
// a circuit breaker. Every infrastructure failure, including an open
// breaker, surfaces as domain.ErrGraphUnavailable.
type Guard struct {
	port    Port
	timeout time.Duration
	limiter *rate.Limiter
	breaker *resilience.Breaker
	metrics *metrics.Registry
}

// NewGuard wraps port.
func NewGuard(port Port, opts GuardOpts) *Guard {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	bopts := opts.Breaker
	bopts.IsFailure = domain.IsUnavailable
	bopts.OnStateChange = func(from, to resilience.State) {
		logger.Warn("graph circuit breaker state change", "from", from.String(), "to", to.String())
		opts.Metrics.SetBreakerState(to.String())
	}
	opts.Metrics.SetBreakerState(resilience.StateClosed.String())

	return &Guard{
		port:    port,
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(limit, burst),
		breaker: resilience.NewBreaker(bopts),
		metrics: opts.Metrics,
	}
}

// BreakerState reports the breaker's current state.
func (g *Guard) BreakerState() resilience.State { return g.breaker.State() }

// Node implements Port.
func (g *Guard) Node(ctx context.Context, id string) (domain.Node, error) {
	return guarded(ctx, g, "node", func(ctx context.Context) (domain.Node, error) {
		return g.port.Node(ctx, id)
	})
}

// Neighbors implements Port.
func (g *Guard) Neighbors(ctx context.Context, id string, types []domain.RelType, dir domain.Direction) ([]domain.Neighbor, error) {
	return guarded(ctx, g, "neighbors", func(ctx context.Context) ([]domain.Neighbor, error) {
		return g.port.Neighbors(ctx, id, types, dir)
	})
}

// Paths implements Port.
func (g *Guard) Paths(ctx context.Context, q PathQuery) ([]domain.Path, error) {
	return guarded(ctx, g, "paths", func(ctx context.Context) ([]domain.Path, error) {
		return g.port.Paths(ctx, q)
	})
}

func guarded[T any](ctx context.Context, g *Guard, op string, f func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var zero T
	if err := g.limiter.Wait(ctx); err != nil {
		g.metrics.RecordGraphCall(op, "throttled", time.Since(start))
		return zero, domain.Unavailable(op, err)
	}

	v, err := resilience.Execute(ctx, g.breaker, func(ctx context.Context) (T, error) {
		v, err := f(ctx)
		if err != nil && !domain.IsUnavailable(err) && errors.Is(err, context.DeadlineExceeded) {
			err = domain.Unavailable(op, err)
		}
		return v, err
	})

	switch {
	case err == nil:
		g.metrics.RecordGraphCall(op, "ok", time.Since(start))
	case errors.Is(err, resilience.ErrCircuitOpen):
		g.metrics.RecordGraphCall(op, "rejected", time.Since(start))
		return zero, domain.Unavailable(op, err)
	case errors.Is(err, domain.ErrNotFound):
		g.metrics.RecordGraphCall(op, "not_found", time.Since(start))
	case domain.IsUnavailable(err):
		g.metrics.RecordGraphCall(op, "unavailable", time.Since(start))
	default:
		g.metrics.RecordGraphCall(op, "error", time.Since(start))
	}
	return v, err
}
