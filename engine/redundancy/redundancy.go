// Package redundancy measures how many alternative suppliers back each
// component and flags single points of failure.
package redundancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/WessleyAI/chainrisk/engine/domain"
	"github.com/WessleyAI/chainrisk/engine/graph"
	"github.com/WessleyAI/chainrisk/pkg/fn"
)

// Score maps a supplier count to a redundancy score in [0,1].
// The step function is non-decreasing in n.
func Score(n int) float64 {
	switch {
	case n <= 0:
		return 0
	case n == 1:
		return 0.2
	case n == 2:
		return 0.5
	case n == 3:
		return 0.8
	default:
		return 1.0
	}
}

// Build assembles a SupplierRedundancy from an ordered supplier list; the
// first supplier is primary. Duplicate ids are ignored.
func Build(componentID string, suppliers []string, critical bool) domain.SupplierRedundancy {
	suppliers = fn.Unique(suppliers)
	r := domain.SupplierRedundancy{
		ComponentID:     componentID,
		SupplierCount:   len(suppliers),
		BackupSuppliers: []string{},
		RedundancyScore: Score(len(suppliers)),
		IsSingleSource:  len(suppliers) <= 1,
		IsCritical:      critical,
	}
	if len(suppliers) > 0 {
		r.PrimarySupplierID = suppliers[0]
		r.BackupSuppliers = append(r.BackupSuppliers, suppliers[1:]...)
	}
	return r
}

// FromSupplierMap is the in-memory variant for callers that already hold
// component-to-supplier lists. Output is ordered by component id.
func FromSupplierMap(suppliers map[string][]string, critical map[string]bool) []domain.SupplierRedundancy {
	out := make([]domain.SupplierRedundancy, 0, len(suppliers))
	for _, id := range fn.SortedKeys(suppliers) {
		out = append(out, Build(id, suppliers[id], critical[id]))
	}
	return out
}

// Analyzer reads supplier relationships from the graph.
type Analyzer struct {
	port        graph.Port
	concurrency int
	logger      *slog.Logger
}

// NewAnalyzer creates an Analyzer. concurrency bounds parallel supplier lookups.
func NewAnalyzer(port graph.Port, concurrency int, logger *slog.Logger) *Analyzer {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{port: port, concurrency: concurrency, logger: logger}
}

// AnalyzeProductRedundancy analyzes every component that feeds productID
// through PART_OF, at any depth. An unknown product yields no rows.
func (a *Analyzer) AnalyzeProductRedundancy(ctx context.Context, productID string) ([]domain.SupplierRedundancy, error) {
	components, err := ProductComponents(ctx, a.port, productID)
	if err != nil {
		return nil, fmt.Errorf("redundancy: %w", err)
	}
	return a.analyzeNodes(ctx, components)
}

// AnalyzeComponents analyzes an explicit set of components. Unknown ids and
// nodes that are not components are skipped.
func (a *Analyzer) AnalyzeComponents(ctx context.Context, ids []string) ([]domain.SupplierRedundancy, error) {
	found, err := fn.Collect(graph.LookupNodes(ctx, a.port, fn.Unique(ids), a.concurrency)).Unwrap()
	if err != nil {
		return nil, fmt.Errorf("redundancy: %w", err)
	}
	nodes := fn.Filter(found, func(n domain.Node) bool { return n.Label == domain.LabelComponent })
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return a.analyzeNodes(ctx, nodes)
}

// ProductComponents walks PART_OF edges backwards from productID and
// returns every component found at any depth, ordered by id. An unknown
// product has no components.
func ProductComponents(ctx context.Context, port graph.Port, productID string) ([]domain.Node, error) {
	if _, err := port.Node(ctx, productID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("product %s: %w", productID, err)
	}

	seen := map[string]bool{productID: true}
	var out []domain.Node
	frontier := []string{productID}
	for len(frontier) > 0 {
		var next []string
		for _, id := range frontier {
			nbs, err := port.Neighbors(ctx, id, []domain.RelType{domain.RelPartOf}, domain.Incoming)
			if err != nil {
				return nil, fmt.Errorf("parts of %s: %w", id, err)
			}
			for _, nb := range nbs {
				if seen[nb.Node.ID] {
					continue
				}
				seen[nb.Node.ID] = true
				next = append(next, nb.Node.ID)
				if nb.Node.Label == domain.LabelComponent {
					out = append(out, nb.Node)
				}
			}
		}
		frontier = next
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a *Analyzer) analyzeNodes(ctx context.Context, components []domain.Node) ([]domain.SupplierRedundancy, error) {
	out := make([]domain.SupplierRedundancy, len(components))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, c := range components {
		g.Go(func() error {
			suppliers, err := SuppliersOf(gctx, a.port, c.ID)
			if err != nil {
				return fmt.Errorf("redundancy: suppliers of %s: %w", c.ID, err)
			}
			ids := make([]string, len(suppliers))
			for j, s := range suppliers {
				ids[j] = s.Node.ID
			}
			out[i] = Build(c.ID, ids, c.Bool(domain.PropCritical))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SuppliersOf returns the direct suppliers of a component: edges marked
// is_primary first, then by supplier id.
func SuppliersOf(ctx context.Context, port graph.Port, componentID string) ([]domain.Neighbor, error) {
	nbs, err := port.Neighbors(ctx, componentID, []domain.RelType{domain.RelSupplies}, domain.Incoming)
	if err != nil {
		return nil, err
	}
	nbs = fn.Filter(nbs, func(nb domain.Neighbor) bool { return nb.Node.Label == domain.LabelSupplier })
	sort.SliceStable(nbs, func(i, j int) bool {
		return nbs[i].Edge.Bool(domain.PropIsPrimary) && !nbs[j].Edge.Bool(domain.PropIsPrimary)
	})
	return nbs, nil
}

// Summary condenses a set of SupplierRedundancy rows.
type Summary struct {
	Components           int      `json:"components"`
	SingleSource         int      `json:"single_source"`
	CriticalSingleSource []string `json:"critical_single_source"`
	MeanScore            float64  `json:"mean_score"`
}

// Summarize aggregates rows.
func Summarize(rows []domain.SupplierRedundancy) Summary {
	s := Summary{Components: len(rows), CriticalSingleSource: []string{}}
	scores := make([]float64, 0, len(rows))
	for _, r := range rows {
		scores = append(scores, r.RedundancyScore)
		if r.IsSingleSource {
			s.SingleSource++
			if r.IsCritical {
				s.CriticalSingleSource = append(s.CriticalSingleSource, r.ComponentID)
			}
		}
	}
	s.MeanScore = fn.Mean(scores)
	return s
}

// ImpactComponent converts the summary into the 0-10 redundancy component of
// an impact score: thin redundancy means high impact. ok is false when there
// is nothing to summarize.
func (s Summary) ImpactComponent() (v float64, ok bool) {
	if s.Components == 0 {
		return 0, false
	}
	return 10 * (1 - s.MeanScore), true
}
