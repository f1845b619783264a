// Package traversal answers reachability questions over the supply-chain
// graph: downstream impact of a disrupted node, upstream sources of a
// product, and alternative routes between two nodes.
package traversal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/WessleyAI/chainrisk/engine/domain"
	"github.com/WessleyAI/chainrisk/engine/graph"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultConcurrency      = 8
	DefaultPathCap          = 5
	DefaultAlternativeDepth = graph.DefaultPathDepth
)

// supplyEdges are the edge types that carry disruption downstream.
var supplyEdges = []domain.RelType{domain.RelSupplies, domain.RelPartOf}

// Config tunes an Engine.
type Config struct {
	// Concurrency bounds neighbor lookups issued per BFS layer.
	Concurrency int
	// PathCap bounds the paths kept per reached node.
	PathCap int
	// AlternativeDepth bounds FindAlternativePaths.
	AlternativeDepth int
}

// Engine runs traversals against a graph.Port.
type Engine struct {
	port   graph.Port
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates an Engine. A nil logger uses slog.Default().
func New(port graph.Port, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.PathCap <= 0 {
		cfg.PathCap = DefaultPathCap
	}
	if cfg.AlternativeDepth <= 0 {
		cfg.AlternativeDepth = DefaultAlternativeDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{port: port, cfg: cfg, logger: logger, tracer: otel.Tracer("chainrisk/traversal")}
}

// reached is the per-node BFS state.
type reached struct {
	node     domain.Node
	distance int
	paths    []domain.Path
	keys     map[string]struct{}
}

func (r *reached) addPath(p domain.Path, limit int) {
	if len(r.paths) >= limit {
		return
	}
	k := p.Key()
	if _, dup := r.keys[k]; dup {
		return
	}
	r.keys[k] = struct{}{}
	r.paths = append(r.paths, p)
}

// FindDownstreamImpact follows SUPPLIES and PART_OF edges forward from
// sourceID for up to maxDepth hops. Each reachable Product or Component is
// returned once, at its minimum distance, with up to PathCap distinct paths
// of that length. Results are ordered by distance, then id.
func (e *Engine) FindDownstreamImpact(ctx context.Context, sourceID string, maxDepth int) ([]domain.ImpactResult, error) {
	ctx, span := e.tracer.Start(ctx, "traversal.downstream",
		trace.WithAttributes(attribute.String("source_id", sourceID), attribute.Int("max_depth", maxDepth)))
	defer span.End()

	seen, err := e.layeredBFS(ctx, sourceID, maxDepth, domain.Outgoing, true)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}

	var out []domain.ImpactResult
	for id, r := range seen {
		if id == sourceID || !isImpactLabel(r.node.Label) {
			continue
		}
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
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

// FindUpstreamSources walks SUPPLIES and PART_OF edges backwards from
// productID and returns every Supplier or Component ancestor at its
// minimum distance, ordered by distance, then id.
func (e *Engine) FindUpstreamSources(ctx context.Context, productID string, maxDepth int) ([]domain.Upstream, error) {
	ctx, span := e.tracer.Start(ctx, "traversal.upstream",
		trace.WithAttributes(attribute.String("product_id", productID), attribute.Int("max_depth", maxDepth)))
	defer span.End()

	seen, err := e.layeredBFS(ctx, productID, maxDepth, domain.Incoming, false)
	if err != nil {
		recordErr(span, err)
		return nil, err
	}

	var out []domain.Upstream
	for id, r := range seen {
		if id == productID {
			continue
		}
		if r.node.Label != domain.LabelSupplier && r.node.Label != domain.LabelComponent {
			continue
		}
		out = append(out, domain.Upstream{Node: r.node, Distance: r.distance})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Node.ID < out[j].Node.ID
	})
	return out, nil
}

// FindAlternativePaths returns up to maxPaths shortest simple paths between
// two nodes over any edge type in either direction.
func (e *Engine) FindAlternativePaths(ctx context.Context, fromID, toID string, maxPaths int) ([]domain.Path, error) {
	ctx, span := e.tracer.Start(ctx, "traversal.alternatives",
		trace.WithAttributes(attribute.String("from_id", fromID), attribute.String("to_id", toID)))
	defer span.End()

	if maxPaths <= 0 || fromID == toID {
		return nil, nil
	}
	for _, id := range []string{fromID, toID} {
		ok, err := e.exists(ctx, id)
		if err != nil {
			recordErr(span, err)
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}

	paths, err := e.port.Paths(ctx, graph.PathQuery{
		Source:    fromID,
		Target:    toID,
		Direction: domain.Both,
		MaxDepth:  e.cfg.AlternativeDepth,
		Limit:     maxPaths,
	})
	if err != nil {
		err = wrap("alternative paths", err)
		recordErr(span, err)
		return nil, err
	}
	sort.SliceStable(paths, func(i, j int) bool { return paths[i].TotalDepth() < paths[j].TotalDepth() })
	if len(paths) > maxPaths {
		paths = paths[:maxPaths]
	}
	return paths, nil
}

// GetNeighbors is a one-hop expansion. Unknown nodes have no neighbors.
func (e *Engine) GetNeighbors(ctx context.Context, nodeID string, types []domain.RelType, dir domain.Direction) ([]domain.Neighbor, error) {
	nbs, err := e.port.Neighbors(ctx, nodeID, types, dir)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, wrap("neighbors", err)
	}
	return nbs, nil
}

// layeredBFS expands one distance layer at a time. All neighbor lookups of a
// layer run concurrently; merging happens afterwards in frontier order so
// results do not depend on scheduling.
func (e *Engine) layeredBFS(ctx context.Context, rootID string, maxDepth int, dir domain.Direction, trackPaths bool) (map[string]*reached, error) {
	root, err := e.port.Node(ctx, rootID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, wrap("root lookup", err)
	}

	seen := map[string]*reached{rootID: newReached(root, 0)}
	if trackPaths {
		seen[rootID].addPath(domain.Path{Nodes: []domain.Node{root}}, e.cfg.PathCap)
	}
	frontier := []string{rootID}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		expansions := make([][]domain.Neighbor, len(frontier))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.Concurrency)
		for i, id := range frontier {
			g.Go(func() error {
				nbs, err := e.port.Neighbors(gctx, id, supplyEdges, dir)
				if err != nil {
					return fmt.Errorf("expand %s: %w", id, err)
				}
				expansions[i] = nbs
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, wrap("expand layer", err)
		}

		var next []string
		for i, id := range frontier {
			parent := seen[id]
			for _, nb := range expansions[i] {
				r, ok := seen[nb.Node.ID]
				if ok && r.distance < depth {
					continue
				}
				if !ok {
					r = newReached(nb.Node, depth)
					seen[nb.Node.ID] = r
					next = append(next, nb.Node.ID)
				}
				if trackPaths {
					for _, p := range parent.paths {
						r.addPath(p.Extend(nb.Edge, nb.Node), e.cfg.PathCap)
					}
				}
			}
		}
		sort.Strings(next)
		frontier = next
	}
	return seen, nil
}

func newReached(n domain.Node, distance int) *reached {
	return &reached{node: n, distance: distance, keys: make(map[string]struct{})}
}

func (e *Engine) exists(ctx context.Context, id string) (bool, error) {
	_, err := e.port.Node(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, wrap("node lookup", err)
	}
}

func isImpactLabel(l domain.Label) bool {
	return l == domain.LabelProduct || l == domain.LabelComponent
}

// wrap keeps GraphUnavailable matchable and treats context expiry as
// unavailability of the graph for this call.
func wrap(op string, err error) error {
	if !domain.IsUnavailable(err) && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		return domain.Unavailable(op, err)
	}
	return fmt.Errorf("traversal: %s: %w", op, err)
}

func recordErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
