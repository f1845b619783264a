// Package recalc re-scores the resilience of every entity a risk event
// touches and records the new scores in history, within a soft time budget.
package recalc

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/WessleyAI/chainrisk/engine/domain"
	"github.com/WessleyAI/chainrisk/engine/history"
	"github.com/WessleyAI/chainrisk/engine/resilience"
	"github.com/WessleyAI/chainrisk/engine/traversal"
	"github.com/WessleyAI/chainrisk/pkg/fn"
	"github.com/WessleyAI/chainrisk/pkg/metrics"
)

// State is the lifecycle stage of one event's recalculation.
type State string

const (
	StateIdle          State = "idle"
	StateResolving     State = "resolving_affected_entities"
	StateRecalculating State = "recalculating"
	StateRecorded      State = "recorded"
	StateFailed        State = "failed"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultWorkers       = 16
	DefaultEntityTimeout = 30 * time.Second
	DefaultSLA           = 300 * time.Second
	DefaultMaxDepth      = 5
)

// Config tunes a Coordinator.
type Config struct {
	Workers       int
	EntityTimeout time.Duration
	SLA           time.Duration
	MaxDepth      int
	// Retry governs resolution retries while the graph is unavailable.
	Retry fn.RetryOpts
}

// Deps are the collaborators a Coordinator drives.
type Deps struct {
	Traversal *traversal.Engine
	Scorer    *resilience.Scorer
	History   *history.Tracker
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Entity is one unit of recalculation.
type Entity struct {
	ID    string       `json:"id"`
	Label domain.Label `json:"label"`
}

// Report summarizes one recalculation batch.
type Report struct {
	EventID     string                            `json:"event_id"`
	State       State                             `json:"state"`
	Entities    []Entity                          `json:"entities"`
	Scores      map[string]domain.ResilienceScore `json:"scores"`
	Failed      []domain.EntityFailure            `json:"failed"`
	StartedAt   time.Time                         `json:"started_at"`
	FinishedAt  time.Time                         `json:"finished_at"`
	Duration    time.Duration                     `json:"duration"`
	SLAExceeded bool                              `json:"sla_exceeded"`
	Error       string                            `json:"error,omitempty"`
}

// Coordinator runs recalculation batches. It is safe for concurrent use;
// batches for different events proceed independently.
type Coordinator struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time

	mu     sync.Mutex
	states map[string]State
}

// New creates a Coordinator. Traversal, Scorer and History are required.
func New(deps Deps, cfg Config) (*Coordinator, error) {
	switch {
	case deps.Traversal == nil:
		return nil, domain.NewConfigurationError("recalc.traversal", "required")
	case deps.Scorer == nil:
		return nil, domain.NewConfigurationError("recalc.scorer", "required")
	case deps.History == nil:
		return nil, domain.NewConfigurationError("recalc.history", "required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.EntityTimeout <= 0 {
		cfg.EntityTimeout = DefaultEntityTimeout
	}
	if cfg.SLA <= 0 {
		cfg.SLA = DefaultSLA
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = fn.DefaultRetry
	}
	cfg.Retry.RetryIf = domain.IsUnavailable

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("chainrisk/recalc"),
		now:    time.Now,
		states: make(map[string]State),
	}, nil
}

// State returns the stage of an in-flight batch, or StateIdle.
func (c *Coordinator) State(eventID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[eventID]; ok {
		return s
	}
	return StateIdle
}

func (c *Coordinator) transition(eventID string, to State) {
	c.mu.Lock()
	from, ok := c.states[eventID]
	if !ok {
		from = StateIdle
	}
	if to == StateRecorded || to == StateFailed {
		delete(c.states, eventID)
	} else {
		c.states[eventID] = to
	}
	c.mu.Unlock()
	c.logger.Debug("recalc state", "event_id", eventID, "from", from, "to", to)
}

// ResolveAffected returns the components and products downstream of the
// event's roots, ordered by id.
func (c *Coordinator) ResolveAffected(ctx context.Context, event domain.RiskEvent) ([]Entity, error) {
	res := fn.Retry(ctx, c.cfg.Retry, func(ctx context.Context) fn.Result[[]domain.ImpactResult] {
		return fn.FromPair(c.deps.Traversal.FindEventImpact(ctx, event, c.cfg.MaxDepth))
	})
	impact, err := res.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("recalc: resolve %s: %w", event.ID, err)
	}
	out := make([]Entity, 0, len(impact))
	for _, r := range impact {
		out = append(out, Entity{ID: r.AffectedNodeID, Label: r.AffectedNodeLabel})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Recalculate runs one batch for event. Per-entity failures land in
// Report.Failed and never abort the batch. An error is returned only when
// the affected set cannot be resolved or ctx ends the batch early; in the
// latter case scores already recorded stay recorded.
func (c *Coordinator) Recalculate(ctx context.Context, event domain.RiskEvent) (Report, error) {
	ctx, span := c.tracer.Start(ctx, "recalc.batch", trace.WithAttributes(attribute.String("event_id", event.ID)))
	defer span.End()

	rep := Report{
		EventID:   event.ID,
		StartedAt: c.now(),
		Scores:    make(map[string]domain.ResilienceScore),
		Failed:    []domain.EntityFailure{},
	}

	c.transition(event.ID, StateResolving)
	entities, err := c.ResolveAffected(ctx, event)
	if err != nil {
		return c.finish(ctx, span, rep, err), err
	}
	rep.Entities = entities
	span.SetAttributes(attribute.Int("entities", len(entities)))

	c.transition(event.ID, StateRecalculating)
	results := fn.ParMapCtx(ctx, entities, c.cfg.Workers, c.cfg.EntityTimeout, c.recompute)
	scores, failed := fn.Partition(results)
	for _, s := range scores {
		rep.Scores[s.EntityID] = s
	}
	for _, i := range failed {
		err := results[i].Failure()
		rep.Failed = append(rep.Failed, domain.NewEntityFailure(entities[i].ID, err))
		c.logger.WarnContext(ctx, "entity recalculation failed", "event_id", event.ID, "entity_id", entities[i].ID, "error", err)
	}

	return c.finish(ctx, span, rep, ctx.Err()), ctx.Err()
}

func (c *Coordinator) finish(ctx context.Context, span trace.Span, rep Report, err error) Report {
	rep.FinishedAt = c.now()
	rep.Duration = rep.FinishedAt.Sub(rep.StartedAt)
	rep.State = StateRecorded
	if err != nil {
		rep.State = StateFailed
		rep.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.transition(rep.EventID, rep.State)

	if rep.Duration > c.cfg.SLA {
		rep.SLAExceeded = true
		c.logger.WarnContext(ctx, "recalculation exceeded SLA",
			"event_id", rep.EventID, "duration", rep.Duration, "sla", c.cfg.SLA, "entities", len(rep.Entities))
	}
	c.deps.Metrics.RecordBatch(string(rep.State), rep.Duration, len(rep.Scores), len(rep.Failed), rep.SLAExceeded)
	c.logger.InfoContext(ctx, "recalculation finished",
		"event_id", rep.EventID,
		"state", rep.State,
		"entities", len(rep.Entities),
		"succeeded", len(rep.Scores),
		"failed", len(rep.Failed),
		"duration", rep.Duration,
	)
	return rep
}

// recompute scores one entity and records it.
func (c *Coordinator) recompute(ctx context.Context, ent Entity) (domain.ResilienceScore, error) {
	var (
		score   domain.ResilienceScore
		factors map[string]float64
	)
	switch ent.Label {
	case domain.LabelComponent:
		s, err := c.deps.Scorer.ComponentResilience(ctx, ent.ID)
		if err != nil {
			return score, err
		}
		score, factors = s, history.FactorMap(s)
	case domain.LabelProduct:
		m, err := c.deps.Scorer.ProductResilience(ctx, ent.ID)
		if err != nil {
			return score, err
		}
		score = domain.ResilienceScore{EntityID: ent.ID, Score: m.OverallScore, RedundancyFactor: m.RedundancyCoverage}
		factors = map[string]float64{
			"redundancy_coverage":      m.RedundancyCoverage,
			"single_points_of_failure": float64(m.SinglePointsOfFailure),
			"components":               float64(len(m.ComponentScores)),
		}
	default:
		return score, fmt.Errorf("recalc: %s has no resilience score (label %q)", ent.ID, ent.Label)
	}
	if _, err := c.deps.History.RecordScore(ctx, ent.ID, score.Score, factors); err != nil {
		return score, err
	}
	return score, nil
}

// IsPartial reports whether the batch recorded some scores but not all.
func (r Report) IsPartial() bool { return len(r.Failed) > 0 && len(r.Scores) > 0 }
