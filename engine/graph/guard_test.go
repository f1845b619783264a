package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/WessleyAI/chainrisk/engine/domain"
	"github.com/WessleyAI/chainrisk/pkg/metrics"
	"github.com/WessleyAI/chainrisk/pkg/resilience"
)

// flakyPort fails every call with err until err is cleared.
type flakyPort struct {
	err   error
	delay time.Duration
	calls int
}

func (p *flakyPort) Node(ctx context.Context, id string) (domain.Node, error) {
	p.calls++
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return domain.Node{}, ctx.Err()
		}
	}
	if p.err != nil {
		return domain.Node{}, p.err
	}
	return domain.Node{ID: id, Label: domain.LabelSupplier}, nil
}

func (p *flakyPort) Neighbors(ctx context.Context, id string, _ []domain.RelType, _ domain.Direction) ([]domain.Neighbor, error) {
	_, err := p.Node(ctx, id)
	return nil, err
}

func (p *flakyPort) Paths(ctx context.Context, q PathQuery) ([]domain.Path, error) {
	_, err := p.Node(ctx, q.Source)
	return nil, err
}

func TestGuardPassesThrough(t *testing.T) {
	reg := metrics.NewRegistry()
	g := NewGuard(&flakyPort{}, GuardOpts{Metrics: reg})

	n, err := g.Node(context.Background(), "s1")
	if err != nil || n.ID != "s1" {
		t.Fatalf("Node = %+v, %v", n, err)
	}
	if got := testutil.ToFloat64(reg.GraphCallsTotal.WithLabelValues("node", "ok")); got != 1 {
		t.Fatalf("ok calls = %v", got)
	}
}

func TestGuardTimeoutIsUnavailable(t *testing.T) {
	g := NewGuard(&flakyPort{delay: time.Second}, GuardOpts{Timeout: 10 * time.Millisecond})
	_, err := g.Node(context.Background(), "s1")
	if !domain.IsUnavailable(err) {
		t.Fatalf("err = %v, want GraphUnavailable", err)
	}
}

func TestGuardNotFoundDoesNotTrip(t *testing.T) {
	port := &flakyPort{err: domain.ErrNotFound}
	g := NewGuard(port, GuardOpts{Breaker: resilience.BreakerOpts{FailThreshold: 1}})
	for i := 0; i < 3; i++ {
		if _, err := g.Node(context.Background(), "x"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	}
	if g.BreakerState() != resilience.StateClosed {
		t.Fatalf("breaker = %v, want closed", g.BreakerState())
	}
}

func TestGuardBreakerOpens(t *testing.T) {
	reg := metrics.NewRegistry()
	port := &flakyPort{err: domain.Unavailable("node", errors.New("connection refused"))}
	g := NewGuard(port, GuardOpts{
		Breaker: resilience.BreakerOpts{FailThreshold: 2, Cooldown: time.Minute},
		Metrics: reg,
	})
	ctx := context.Background()

	_, _ = g.Neighbors(ctx, "s1", nil, domain.Outgoing)
	_, _ = g.Neighbors(ctx, "s1", nil, domain.Outgoing)
	if g.BreakerState() != resilience.StateOpen {
		t.Fatalf("breaker = %v, want open", g.BreakerState())
	}

	port.err = nil
	_, err := g.Paths(ctx, PathQuery{Source: "s1"})
	if !domain.IsUnavailable(err) || !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want unavailable circuit-open", err)
	}
	if port.calls != 2 {
		t.Fatalf("open breaker reached the port: %d calls", port.calls)
	}
	if got := testutil.ToFloat64(reg.GraphBreakerState.WithLabelValues("open")); got != 1 {
		t.Fatalf("breaker gauge = %v", got)
	}
	if got := testutil.ToFloat64(reg.GraphCallsTotal.WithLabelValues("paths", "rejected")); got != 1 {
		t.Fatalf("rejected calls = %v", got)
	}
}

func TestGuardRateLimitWaitExceedsDeadline(t *testing.T) {
	g := NewGuard(&flakyPort{}, GuardOpts{RateLimit: 0.001, Burst: 1, Timeout: 20 * time.Millisecond})
	ctx := context.Background()
	if _, err := g.Node(ctx, "a"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := g.Node(ctx, "b"); !domain.IsUnavailable(err) {
		t.Fatalf("throttled call err = %v, want GraphUnavailable", err)
	}
}
