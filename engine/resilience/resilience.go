// Package resilience scores how well components, products and portfolios
// withstand the loss of a supplier. Scores are 0-100, higher is better.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/WessleyAI/chainrisk/engine/domain"
	"github.com/WessleyAI/chainrisk/engine/graph"
	"github.com/WessleyAI/chainrisk/engine/redundancy"
	"github.com/WessleyAI/chainrisk/pkg/fn"
)

const (
	// LeadTimeBuffer stands in for lead-time data the graph does not carry yet.
	LeadTimeBuffer = 0.75
	// SPOFPenalty is subtracted from components with at most one supplier.
	SPOFPenalty = 25.0
	// DefaultRiskScore is assumed for suppliers without a risk_score.
	DefaultRiskScore = 50.0

	weightRedundancy  = 0.40
	weightDiversity   = 0.25
	weightReliability = 0.20
	weightLeadTime    = 0.15

	// coverageThreshold and spofThreshold classify component redundancy factors.
	coverageThreshold = 0.5
	spofThreshold     = 0.4
)

// RedundancyFactor maps a supplier count to [0,1].
func RedundancyFactor(n int) float64 {
	switch {
	case n <= 0:
		return 0
	case n == 1:
		return 0.3
	case n == 2:
		return 0.6
	default:
		return math.Min(1, 0.6+0.1*float64(n-2))
	}
}

// DiversityScore maps a count of distinct supplier countries to [0,1].
func DiversityScore(k int) float64 {
	switch {
	case k <= 0:
		return 0
	case k == 1:
		return 0.4
	default:
		return math.Min(1, 0.4+0.2*float64(k-1))
	}
}

// ReliabilityScore converts supplier risk scores (0-100) to [0,1]. An empty
// slice is treated as a single supplier of default risk.
func ReliabilityScore(risks []float64) float64 {
	if len(risks) == 0 {
		risks = []float64{DefaultRiskScore}
	}
	return math.Max(0, 100-fn.Mean(risks)) / 100
}

// Compute is the pure component formula.
func Compute(supplierCount, countryCount int, risks []float64) (float64, domain.ResilienceFactors) {
	f := domain.ResilienceFactors{
		SupplierCount:    supplierCount,
		CountryCount:     countryCount,
		RedundancyFactor: RedundancyFactor(supplierCount),
		DiversityScore:   DiversityScore(countryCount),
		ReliabilityScore: ReliabilityScore(risks),
		LeadTimeBuffer:   LeadTimeBuffer,
	}
	score := 100 * (weightRedundancy*f.RedundancyFactor +
		weightDiversity*f.DiversityScore +
		weightReliability*f.ReliabilityScore +
		weightLeadTime*f.LeadTimeBuffer)
	if supplierCount <= 1 {
		f.SPOFPenalty = SPOFPenalty
		score -= SPOFPenalty
	}
	return round2(math.Max(0, score)), f
}

// Scorer reads component supply structure from the graph.
type Scorer struct {
	port        graph.Port
	concurrency int
	logger      *slog.Logger
}

// NewScorer creates a Scorer. concurrency bounds parallel graph lookups.
func NewScorer(port graph.Port, concurrency int, logger *slog.Logger) *Scorer {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{port: port, concurrency: concurrency, logger: logger}
}

// ComponentResilience scores one component. A missing component scores 0
// with redundancy factor 0 and no error.
func (s *Scorer) ComponentResilience(ctx context.Context, componentID string) (domain.ResilienceScore, error) {
	out := domain.ResilienceScore{EntityID: componentID}
	if _, err := s.port.Node(ctx, componentID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return out, nil
		}
		return out, fmt.Errorf("resilience: component %s: %w", componentID, err)
	}

	suppliers, err := redundancy.SuppliersOf(ctx, s.port, componentID)
	if err != nil {
		return out, fmt.Errorf("resilience: suppliers of %s: %w", componentID, err)
	}
	suppliers = uniqueSuppliers(suppliers)

	countries := make([]string, len(suppliers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, sup := range suppliers {
		g.Go(func() error {
			c, err := s.country(gctx, sup.Node.ID)
			if err != nil {
				return fmt.Errorf("resilience: location of %s: %w", sup.Node.ID, err)
			}
			countries[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	risks := make([]float64, len(suppliers))
	for i, sup := range suppliers {
		risks[i] = riskScore(sup.Node)
	}
	distinct := fn.Unique(fn.Filter(countries, func(c string) bool { return c != "" }))

	out.Score, out.Factors = Compute(len(suppliers), len(distinct), risks)
	out.RedundancyFactor = out.Factors.RedundancyFactor
	return out, nil
}

// country resolves the supplier's LOCATED_IN location to a country code,
// falling back to the location id. Unlocated suppliers return "".
func (s *Scorer) country(ctx context.Context, supplierID string) (string, error) {
	nbs, err := s.port.Neighbors(ctx, supplierID, []domain.RelType{domain.RelLocatedIn}, domain.Outgoing)
	if err != nil {
		return "", err
	}
	for _, nb := range nbs {
		if nb.Node.Label != domain.LabelLocation {
			continue
		}
		if c := nb.Node.String(domain.PropCountry); c != "" {
			return c, nil
		}
		return nb.Node.ID, nil
	}
	return "", nil
}

// ProductResilience averages the resilience of every component that feeds
// productID. An unknown product, or one without components, scores 0.
func (s *Scorer) ProductResilience(ctx context.Context, productID string) (domain.ResilienceMetrics, error) {
	components, err := redundancy.ProductComponents(ctx, s.port, productID)
	if err != nil {
		return domain.ResilienceMetrics{}, fmt.Errorf("resilience: %w", err)
	}
	ids := make([]string, len(components))
	for i, c := range components {
		ids[i] = c.ID
	}
	scores, err := s.scoreAll(ctx, ids)
	if err != nil {
		return domain.ResilienceMetrics{}, err
	}
	m := aggregate(scores)
	m.EntityID = productID
	m.Level = domain.LevelProduct
	m.OverallScore = round2(meanScore(scores))
	return m, nil
}

// PortfolioResilience averages product overall scores. Coverage and SPOF
// counts are taken over the union of the products' components.
func (s *Scorer) PortfolioResilience(ctx context.Context, productIDs []string) (domain.ResilienceMetrics, error) {
	productIDs = fn.Unique(productIDs)
	products := make([]domain.ResilienceMetrics, len(productIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range productIDs {
		g.Go(func() error {
			m, err := s.ProductResilience(gctx, id)
			if err != nil {
				return err
			}
			products[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.ResilienceMetrics{}, err
	}

	seen := make(map[string]bool)
	var union []domain.ResilienceScore
	overall := make([]float64, len(products))
	for i, p := range products {
		overall[i] = p.OverallScore
		for _, c := range p.ComponentScores {
			if seen[c.EntityID] {
				continue
			}
			seen[c.EntityID] = true
			union = append(union, c)
		}
	}
	m := aggregate(union)
	m.Level = domain.LevelPortfolio
	m.OverallScore = round2(fn.Mean(overall))
	return m, nil
}

func (s *Scorer) scoreAll(ctx context.Context, ids []string) ([]domain.ResilienceScore, error) {
	out := make([]domain.ResilienceScore, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			r, err := s.ComponentResilience(gctx, id)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func aggregate(scores []domain.ResilienceScore) domain.ResilienceMetrics {
	m := domain.ResilienceMetrics{ComponentScores: scores}
	if m.ComponentScores == nil {
		m.ComponentScores = []domain.ResilienceScore{}
	}
	if len(scores) == 0 {
		return m
	}
	covered := 0
	for _, c := range scores {
		if c.RedundancyFactor > coverageThreshold {
			covered++
		}
		if c.RedundancyFactor < spofThreshold {
			m.SinglePointsOfFailure++
		}
	}
	m.RedundancyCoverage = round2(float64(covered) / float64(len(scores)))
	return m
}

func meanScore(scores []domain.ResilienceScore) float64 {
	vals := make([]float64, len(scores))
	for i, c := range scores {
		vals[i] = c.Score
	}
	return fn.Mean(vals)
}

func riskScore(n domain.Node) float64 {
	v, ok := n.Float(domain.PropRiskScore)
	if !ok || math.IsNaN(v) {
		return DefaultRiskScore
	}
	return math.Min(100, math.Max(0, v))
}

// uniqueSuppliers drops repeat SUPPLIES edges from the same supplier.
func uniqueSuppliers(nbs []domain.Neighbor) []domain.Neighbor {
	seen := make(map[string]bool, len(nbs))
	return fn.Filter(nbs, func(nb domain.Neighbor) bool {
		if seen[nb.Node.ID] {
			return false
		}
		seen[nb.Node.ID] = true
		return true
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
