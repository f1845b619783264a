package traversal

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/WessleyAI/chainrisk/engine/domain"
	"github.com/WessleyAI/chainrisk/engine/graph"
	"github.com/WessleyAI/chainrisk/pkg/fn"
)

// EventRoots returns the suppliers a risk event disrupts directly: every
// supplier LOCATED_IN the event's location node, plus affected entities
// that are suppliers. Unknown ids are ignored. The result is sorted.
func (e *Engine) EventRoots(ctx context.Context, event domain.RiskEvent) ([]string, error) {
	roots := make(map[string]struct{})
	if event.Location != "" {
		nbs, err := e.GetNeighbors(ctx, event.Location, []domain.RelType{domain.RelLocatedIn}, domain.Incoming)
		if err != nil {
			return nil, err
		}
		for _, nb := range nbs {
			if nb.Node.Label == domain.LabelSupplier {
				roots[nb.Node.ID] = struct{}{}
			}
		}
	}
	affected, err := fn.Collect(graph.LookupNodes(ctx, e.port, event.AffectedEntities, e.cfg.Concurrency)).Unwrap()
	if err != nil {
		return nil, wrap("affected entity", err)
	}
	for _, n := range affected {
		if n.Label == domain.LabelSupplier {
			roots[n.ID] = struct{}{}
		}
	}

	out := make([]string, 0, len(roots))
	for id := range roots {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// FindEventImpact unions the downstream impact of every root of event. A
// node reached from several roots keeps its minimum distance and the paths
// of that length, capped at PathCap.
func (e *Engine) FindEventImpact(ctx context.Context, event domain.RiskEvent, maxDepth int) ([]domain.ImpactResult, error) {
	ctx, span := e.tracer.Start(ctx, "traversal.event_impact",
		trace.WithAttributes(attribute.String("event_id", event.ID), attribute.Int("max_depth", maxDepth)))
	defer span.End()

	roots, err := e.EventRoots(ctx, event)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("roots", len(roots)))

	perRoot := make([][]domain.ImpactResult, len(roots))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, root := range roots {
		g.Go(func() error {
			res, err := e.FindDownstreamImpact(gctx, root, maxDepth)
			if err != nil {
				return err
			}
			perRoot[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		recordErr(span, err)
		return nil, err
	}
	return MergeImpact(e.cfg.PathCap, perRoot...), nil
}

// MergeImpact combines result sets, keeping each node once at its minimum
// distance. Output is ordered by distance, then id.
func MergeImpact(pathCap int, sets ...[]domain.ImpactResult) []domain.ImpactResult {
	if pathCap <= 0 {
		pathCap = DefaultPathCap
	}
	best := make(map[string]*reached)
	for _, set := range sets {
		for _, r := range set {
			cur, ok := best[r.AffectedNodeID]
			if !ok || r.DistanceFromSource < cur.distance {
				cur = newReached(domain.Node{ID: r.AffectedNodeID, Label: r.AffectedNodeLabel}, r.DistanceFromSource)
				best[r.AffectedNodeID] = cur
			}
			if r.DistanceFromSource > cur.distance {
				continue
			}
			for _, p := range r.ImpactPaths {
				cur.addPath(p, pathCap)
			}
		}
	}

	out := make([]domain.ImpactResult, 0, len(best))
	for id, r := range best {
		out = append(out, domain.ImpactResult{
			AffectedNodeID:     id,
			AffectedNodeLabel:  r.node.Label,
			DistanceFromSource: r.distance,
			ImpactPaths:        r.paths,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceFromSource != out[j].DistanceFromSource {
			return out[i].DistanceFromSource < out[j].DistanceFromSource
		}
		return out[i].AffectedNodeID < out[j].AffectedNodeID
	})
	return out
}
