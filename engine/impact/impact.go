// Package impact converts a risk event and its downstream reach into a
// 0-10 impact score. Everything here is pure.
package impact

import (
	"math"

	"github.com/WessleyAI/chainrisk/engine/domain"
)

const (
	// ProximityDecay discounts impact per hop from the disrupted node.
	ProximityDecay = 0.8
	// NeutralRedundancy is used when no redundancy data is supplied.
	NeutralRedundancy = 5.0

	weightSeverity    = 0.30
	weightProximity   = 0.25
	weightCriticality = 0.25
	weightRedundancy  = 0.20

	criticalityPerProduct = 0.5
	maxScore              = 10.0
)

type options struct {
	redundancy    float64
	hasRedundancy bool
}

// Option customizes Calculate.
type Option func(*options)

// WithRedundancy supplies the redundancy component (0-10) instead of the
// neutral midpoint.
func WithRedundancy(v float64) Option {
	return func(o *options) {
		o.redundancy = v
		o.hasRedundancy = true
	}
}

// Calculate scores event against the traversal results. Products are
// counted once each; revenue is read from the terminal product node of
// each result's impact paths.
func Calculate(event domain.RiskEvent, results []domain.ImpactResult, opts ...Option) domain.ImpactScore {
	o := options{redundancy: NeutralRedundancy}
	for _, opt := range opts {
		opt(&o)
	}

	severity := clamp(event.Severity.Weight() * maxScore)

	var proximitySum float64
	var proximityN int
	products := make(map[string]struct{})
	var revenue float64
	for _, r := range results {
		if r.AffectedNodeLabel != domain.LabelProduct {
			continue
		}
		proximitySum += math.Pow(ProximityDecay, float64(r.DistanceFromSource))
		proximityN++
		if _, dup := products[r.AffectedNodeID]; dup {
			continue
		}
		products[r.AffectedNodeID] = struct{}{}
		revenue += productRevenue(r)
	}

	var proximity float64
	if proximityN > 0 {
		proximity = clamp(proximitySum / float64(proximityN) * maxScore)
	}
	criticality := clamp(math.Min(float64(len(products))*criticalityPerProduct, maxScore))
	redundancy := clamp(o.redundancy)

	overall := clamp(weightSeverity*severity +
		weightProximity*proximity +
		weightCriticality*criticality +
		weightRedundancy*redundancy)

	return domain.ImpactScore{
		RiskEventID:           event.ID,
		OverallScore:          round2(overall),
		SeverityComponent:     round2(severity),
		ProximityComponent:    round2(proximity),
		CriticalityComponent:  round2(criticality),
		RedundancyComponent:   round2(redundancy),
		AffectedProductsCount: len(products),
		AffectedRevenue:       round2(revenue),
	}
}

func productRevenue(r domain.ImpactResult) float64 {
	for _, p := range r.ImpactPaths {
		end := p.End()
		if end.ID != r.AffectedNodeID {
			continue
		}
		if v, ok := end.Float(domain.PropRevenue); ok && v > 0 {
			return v
		}
	}
	return 0
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > maxScore {
		return maxScore
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
