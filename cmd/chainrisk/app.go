package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/chainrisk/engine/assess"
	"github.com/WessleyAI/chainrisk/engine/graph"
	"github.com/WessleyAI/chainrisk/engine/history"
	"github.com/WessleyAI/chainrisk/engine/priority"
	"github.com/WessleyAI/chainrisk/engine/recalc"
	"github.com/WessleyAI/chainrisk/engine/redundancy"
	"github.com/WessleyAI/chainrisk/engine/resilience"
	"github.com/WessleyAI/chainrisk/engine/traversal"
	"github.com/WessleyAI/chainrisk/pkg/config"
	"github.com/WessleyAI/chainrisk/pkg/fn"
	"github.com/WessleyAI/chainrisk/pkg/metrics"
	pkgresilience "github.com/WessleyAI/chainrisk/pkg/resilience"
)

// store is what the binary needs from a graph backend beyond reads.
type store interface {
	graph.Port
	graph.Writer
	Stats(ctx context.Context) (graph.Stats, error)
}

// app holds the engines built from one Config.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Registry

	store store
	guard *graph.Guard

	traversal   *traversal.Engine
	scorer      *resilience.Scorer
	analyzer    *redundancy.Analyzer
	tracker     *history.Tracker
	prioritizer *priority.Prioritizer
	policy      *priority.Policy

	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	if err := a.openGraph(ctx); err != nil {
		return nil, err
	}
	a.guard = graph.NewGuard(a.store, graph.GuardOpts{
		Timeout:   cfg.Graph.CallTimeout,
		RateLimit: cfg.Graph.RateLimit,
		Burst:     cfg.Graph.Burst,
		Breaker: pkgresilience.BreakerOpts{
			FailThreshold: cfg.Graph.BreakerThreshold,
			Cooldown:      cfg.Graph.BreakerCooldown,
		},
		Metrics: a.metrics,
		Logger:  logger,
	})

	conc := cfg.Traversal.Concurrency
	a.traversal = traversal.New(a.guard, traversal.Config{
		Concurrency:      conc,
		PathCap:          cfg.Traversal.PathCap,
		AlternativeDepth: cfg.Traversal.AlternativeDepth,
	}, logger)
	a.scorer = resilience.NewScorer(a.guard, conc, logger)
	a.analyzer = redundancy.NewAnalyzer(a.guard, conc, logger)

	backend, err := a.openHistory(ctx)
	if err != nil {
		return nil, err
	}
	a.tracker = history.NewTracker(backend, history.WithLogger(logger))

	w := cfg.Priority.Weights
	a.prioritizer, err = priority.NewPrioritizer(priority.Weights{
		Severity:   w.Severity,
		Timeline:   w.Timeline,
		Products:   w.Products,
		Revenue:    w.Revenue,
		Confidence: w.Confidence,
	})
	if err != nil {
		return nil, err
	}
	a.policy, err = priority.NewPolicy(cfg.Priority.AlertRules, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openGraph(ctx context.Context) error {
	gc := a.cfg.Graph
	if gc.Backend == "memory" {
		m, err := graph.LoadFixture(gc.Fixture)
		if err != nil {
			return err
		}
		a.store = m
		a.logger.Info("memory graph loaded", "fixture", gc.Fixture)
		return nil
	}

	driver, err := neo4j.NewDriverWithContext(gc.URI, neo4j.BasicAuth(gc.User, gc.Password, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	a.closers = append(a.closers, driver.Close)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return graph.Classify("connect", err)
	}
	a.store = graph.New(driver, gc.Database)
	a.logger.Info("neo4j connected", "uri", gc.URI)
	return nil
}

func (a *app) openHistory(ctx context.Context) (history.Backend, error) {
	switch a.cfg.History.Backend {
	case "redis":
		rb, err := history.DialRedis(ctx, a.cfg.History.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return rb.Close() })
		return rb, nil
	case "graph":
		neo, ok := a.store.(*graph.Neo4jStore)
		if !ok {
			return nil, errors.New("graph history requires the neo4j graph backend")
		}
		return history.NewGraphBackend(neo.Opener()), nil
	default:
		return history.NewMemoryBackend(), nil
	}
}

func (a *app) pipeline() (*assess.Pipeline, error) {
	return assess.New(assess.Deps{
		Traversal:    a.traversal,
		Redundancy:   a.analyzer,
		Prioritizer:  a.prioritizer,
		MaxDepth:     a.cfg.Traversal.MaxDepth,
		Workers:      a.cfg.Recalc.Workers,
		EventTimeout: a.cfg.Recalc.EntityTimeout,
		Logger:       a.logger,
	})
}

func (a *app) coordinator() (*recalc.Coordinator, error) {
	rc := a.cfg.Recalc
	retry := fn.DefaultRetry
	retry.MaxAttempts = rc.RetryAttempts
	if rc.RetryWait > 0 {
		retry.InitialWait = rc.RetryWait
	}
	return recalc.New(recalc.Deps{
		Traversal: a.traversal,
		Scorer:    a.scorer,
		History:   a.tracker,
		Metrics:   a.metrics,
		Logger:    a.logger,
	}, recalc.Config{
		Workers:       rc.Workers,
		EntityTimeout: rc.EntityTimeout,
		SLA:           rc.SLA,
		MaxDepth:      rc.MaxDepth,
		Retry:         retry,
	})
}

// Close releases connections in reverse order of opening.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

// withApp builds an app for one command run and closes it afterwards.
func (c *cli) withApp(ctx context.Context, f func(*app) error) error {
	a, err := newApp(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.Background()); cerr != nil {
			c.logger.Warn("close", "error", cerr)
		}
	}()
	return f(a)
}
