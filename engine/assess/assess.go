// Package assess runs a risk event end to end: downstream reach, redundancy
// of the affected components, impact score and priority.
package assess

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/chainrisk/engine/domain"
	"github.com/WessleyAI/chainrisk/engine/impact"
	"github.com/WessleyAI/chainrisk/engine/priority"
	"github.com/WessleyAI/chainrisk/engine/redundancy"
	"github.com/WessleyAI/chainrisk/engine/traversal"
	"github.com/WessleyAI/chainrisk/pkg/fn"
)

const (
	// DefaultMaxDepth bounds downstream traversal when Deps.MaxDepth is zero.
	DefaultMaxDepth = 5
	// DefaultWorkers bounds AssessBatch when Deps.Workers is zero.
	DefaultWorkers = 16
)

// Deps wires the engines an assessment draws on.
type Deps struct {
	Traversal   *traversal.Engine
	Redundancy  *redundancy.Analyzer
	Prioritizer *priority.Prioritizer
	MaxDepth    int
	// Workers bounds concurrent assessments in AssessBatch.
	Workers int
	// EventTimeout limits each assessment in AssessBatch. Zero means none.
	EventTimeout time.Duration
	Logger       *slog.Logger
}

// Assessment is the full analysis of one risk event.
type Assessment struct {
	Event      domain.RiskEvent            `json:"event"`
	Impact     []domain.ImpactResult       `json:"impact"`
	Redundancy []domain.SupplierRedundancy `json:"redundancy"`
	Summary    redundancy.Summary          `json:"redundancy_summary"`
	Score      domain.ImpactScore          `json:"impact_score"`
	Priority   domain.PrioritizedRisk      `json:"priority"`
}

// Products returns the ids of affected products.
func (a Assessment) Products() []string {
	var ids []string
	for _, r := range a.Impact {
		if r.AffectedNodeLabel == domain.LabelProduct {
			ids = append(ids, r.AffectedNodeID)
		}
	}
	return ids
}

// Components returns the ids of affected components.
func (a Assessment) Components() []string {
	var ids []string
	for _, r := range a.Impact {
		if r.AffectedNodeLabel == domain.LabelComponent {
			ids = append(ids, r.AffectedNodeID)
		}
	}
	return ids
}

// Pipeline assesses risk events.
type Pipeline struct {
	deps   Deps
	run    fn.Stage[domain.RiskEvent, Assessment]
	logger *slog.Logger
}

// New builds a Pipeline. Traversal, Redundancy and Prioritizer are required.
func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Traversal == nil:
		return nil, domain.NewConfigurationError("assess.traversal", "required")
	case deps.Redundancy == nil:
		return nil, domain.NewConfigurationError("assess.redundancy", "required")
	case deps.Prioritizer == nil:
		return nil, domain.NewConfigurationError("assess.prioritizer", "required")
	}
	if deps.MaxDepth <= 0 {
		deps.MaxDepth = DefaultMaxDepth
	}
	if deps.Workers <= 0 {
		deps.Workers = DefaultWorkers
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	p := &Pipeline{deps: deps, logger: deps.Logger}

	reach := fn.Then(
		fn.TracedStage[domain.RiskEvent, Assessment]("assess.validate", validate),
		fn.TracedStage[Assessment, Assessment]("assess.impact", p.reach))
	analyzed := fn.Then(reach, fn.TracedStage[Assessment, Assessment]("assess.redundancy", p.analyze))
	scored := fn.Then(analyzed, fn.TracedStage[Assessment, Assessment]("assess.score", score))
	p.run = fn.Then(scored, fn.TracedStage[Assessment, Assessment]("assess.prioritize", p.prioritize))
	return p, nil
}

// Assess runs the pipeline for one event.
func (p *Pipeline) Assess(ctx context.Context, event domain.RiskEvent) (Assessment, error) {
	a, err := p.run(ctx, event).Unwrap()
	if err != nil {
		return Assessment{}, fmt.Errorf("assess %s: %w", event.ID, err)
	}
	p.logger.InfoContext(ctx, "risk event assessed",
		"event_id", event.ID,
		"affected", len(a.Impact),
		"impact_score", a.Score.OverallScore,
		"priority_score", a.Priority.PriorityScore,
	)
	return a, nil
}

var validate fn.Stage[domain.RiskEvent, Assessment] = func(_ context.Context, ev domain.RiskEvent) fn.Result[Assessment] {
	if err := domain.ValidateRiskEvent(ev); err != nil {
		return fn.Err[Assessment](err)
	}
	return fn.Ok(Assessment{Event: ev})
}

func (p *Pipeline) reach(ctx context.Context, a Assessment) fn.Result[Assessment] {
	results, err := p.deps.Traversal.FindEventImpact(ctx, a.Event, p.deps.MaxDepth)
	if err != nil {
		return fn.Err[Assessment](err)
	}
	a.Impact = results
	return fn.Ok(a)
}

func (p *Pipeline) analyze(ctx context.Context, a Assessment) fn.Result[Assessment] {
	rows, err := p.deps.Redundancy.AnalyzeComponents(ctx, a.Components())
	if err != nil {
		return fn.Err[Assessment](err)
	}
	a.Redundancy = rows
	a.Summary = redundancy.Summarize(rows)
	return fn.Ok(a)
}

var score fn.Stage[Assessment, Assessment] = func(_ context.Context, a Assessment) fn.Result[Assessment] {
	var opts []impact.Option
	if v, ok := a.Summary.ImpactComponent(); ok {
		opts = append(opts, impact.WithRedundancy(v))
	}
	a.Score = impact.Calculate(a.Event, a.Impact, opts...)
	return fn.Ok(a)
}

func (p *Pipeline) prioritize(_ context.Context, a Assessment) fn.Result[Assessment] {
	a.Priority = p.deps.Prioritizer.CalculatePriority(a.Event, priority.ExposureFromImpact(a.Score))
	return fn.Ok(a)
}

// Batch is the outcome of AssessBatch.
type Batch struct {
	Ranked      []domain.PrioritizedRisk `json:"ranked"`
	Products    []priority.EntityRisk    `json:"products"`
	Assessments map[string]Assessment    `json:"assessments"`
	Failed      []domain.EntityFailure   `json:"failed"`
}

// AssessBatch assesses events concurrently, ranks the ones that succeeded
// and aggregates exposure per affected product. Failed events are reported
// in Batch.Failed.
func (p *Pipeline) AssessBatch(ctx context.Context, events []domain.RiskEvent) Batch {
	results := fn.ParMapCtx(ctx, events, p.deps.Workers, p.deps.EventTimeout, p.Assess)

	b := Batch{Assessments: make(map[string]Assessment), Failed: []domain.EntityFailure{}}
	assessed, failed := fn.Partition(results)
	for _, i := range failed {
		err := results[i].Failure()
		b.Failed = append(b.Failed, domain.NewEntityFailure(events[i].ID, err))
		p.logger.WarnContext(ctx, "assessment failed", "event_id", events[i].ID, "error", err)
	}
	cands := make([]priority.Candidate, 0, len(assessed))
	for _, a := range assessed {
		b.Assessments[a.Event.ID] = a
		cands = append(cands, priority.Candidate{Event: a.Event, Exposure: priority.ExposureFromImpact(a.Score)})
	}

	b.Ranked = p.deps.Prioritizer.Prioritize(cands)
	b.Products = priority.AggregateProductRisks(b.Ranked, func(r domain.PrioritizedRisk) []string {
		return b.Assessments[r.RiskEvent.ID].Products()
	})
	return b
}
