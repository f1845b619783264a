// Package priority ranks risk events by a weighted multi-factor score and
// rolls the ranked risks up into per-entity exposure.
package priority

import (
	"math"
	"sort"
	"time"

	"github.com/WessleyAI/chainrisk/engine/domain"
	"github.com/WessleyAI/chainrisk/pkg/fn"
)

const (
	productsNorm = 10.0
	revenueNorm  = 1_000_000.0

	// weightTolerance is how far the weights may stray from summing to 1.
	weightTolerance = 0.01
	// secondaryWeight discounts every risk after the worst one in AggregateScores.
	secondaryWeight = 0.1
)

// Weights balances the five priority factors. They must sum to 1.
type Weights struct {
	Severity   float64 `json:"severity"`
	Timeline   float64 `json:"timeline"`
	Products   float64 `json:"products"`
	Revenue    float64 `json:"revenue"`
	Confidence float64 `json:"confidence"`
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{Severity: 0.30, Timeline: 0.20, Products: 0.25, Revenue: 0.15, Confidence: 0.10}
}

// Validate rejects negative weights and sums outside 1 ± 0.01.
func (w Weights) Validate() error {
	named := []struct {
		field string
		v     float64
	}{
		{"weights.severity", w.Severity},
		{"weights.timeline", w.Timeline},
		{"weights.products", w.Products},
		{"weights.revenue", w.Revenue},
		{"weights.confidence", w.Confidence},
	}
	var sum float64
	for _, n := range named {
		if n.v < 0 || math.IsNaN(n.v) {
			return domain.NewConfigurationError(n.field, "must be non-negative, got %v", n.v)
		}
		sum += n.v
	}
	if math.Abs(sum-1) > weightTolerance {
		return domain.NewConfigurationError("weights", "must sum to 1.0, got %.4f", sum)
	}
	return nil
}

// Exposure is what a risk puts on the line: affected products and revenue.
type Exposure struct {
	Products int     `json:"products"`
	Revenue  float64 `json:"revenue"`
}

// ExposureFromImpact reads exposure off an impact score.
func ExposureFromImpact(s domain.ImpactScore) Exposure {
	return Exposure{Products: s.AffectedProductsCount, Revenue: s.AffectedRevenue}
}

// Candidate is one risk awaiting prioritization.
type Candidate struct {
	Event    domain.RiskEvent
	Exposure Exposure
}

// Prioritizer scores and ranks risks.
type Prioritizer struct {
	weights Weights
	now     func() time.Time
}

// Option configures a Prioritizer.
type Option func(*Prioritizer)

// WithClock sets the reference time for timeline recency.
func WithClock(now func() time.Time) Option {
	return func(p *Prioritizer) { p.now = now }
}

// NewPrioritizer validates w and creates a Prioritizer.
func NewPrioritizer(w Weights, opts ...Option) (*Prioritizer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	p := &Prioritizer{weights: w, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Weights returns the active weights.
func (p *Prioritizer) Weights() Weights { return p.weights }

// CalculatePriority scores a single risk. The returned rank is 1; Prioritize
// assigns real ranks within a batch.
func (p *Prioritizer) CalculatePriority(event domain.RiskEvent, exp Exposure) domain.PrioritizedRisk {
	f := domain.PriorityFactors{
		Severity:   event.Severity.Weight(),
		Timeline:   TimelineFactor(p.now().Sub(event.DetectedAt), event.DetectedAt.IsZero()),
		Products:   math.Min(float64(max(exp.Products, 0))/productsNorm, 1),
		Revenue:    math.Min(math.Max(exp.Revenue, 0)/revenueNorm, 1),
		Confidence: math.Min(math.Max(event.Confidence, 0), 1),
	}
	w := p.weights
	score := w.Severity*f.Severity +
		w.Timeline*f.Timeline +
		w.Products*f.Products +
		w.Revenue*f.Revenue +
		w.Confidence*f.Confidence
	if math.IsNaN(score) {
		score = 0
	}
	return domain.PrioritizedRisk{
		RiskEvent:     event,
		PriorityScore: math.Min(math.Max(score, 0), 1),
		PriorityRank:  1,
		Factors:       f,
	}
}

// TimelineFactor maps the age of a risk to a recency factor. Events stamped
// in the future count as brand new; unknown detection times rank as old.
func TimelineFactor(age time.Duration, unknown bool) float64 {
	switch {
	case unknown:
		return 0.3
	case age < time.Hour:
		return 1.0
	case age < 24*time.Hour:
		return 0.9
	case age < 7*24*time.Hour:
		return 0.7
	case age < 30*24*time.Hour:
		return 0.5
	default:
		return 0.3
	}
}

// Prioritize scores every candidate, sorts by score descending keeping input
// order on ties, and ranks 1..N.
func (p *Prioritizer) Prioritize(candidates []Candidate) []domain.PrioritizedRisk {
	out := make([]domain.PrioritizedRisk, len(candidates))
	for i, c := range candidates {
		out[i] = p.CalculatePriority(c.Event, c.Exposure)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PriorityScore > out[j].PriorityScore })
	for i := range out {
		out[i].PriorityRank = i + 1
	}
	return out
}

// PrioritizeEvents ranks events without exposure data.
func (p *Prioritizer) PrioritizeEvents(events []domain.RiskEvent) []domain.PrioritizedRisk {
	return p.Prioritize(fn.Map(events, func(e domain.RiskEvent) Candidate { return Candidate{Event: e} }))
}

// EntityRisk is the aggregated exposure of one entity across a batch.
type EntityRisk struct {
	EntityID       string   `json:"entity_id"`
	AggregateScore float64  `json:"aggregate_score"`
	RiskCount      int      `json:"risk_count"`
	TopRiskEventID string   `json:"top_risk_event_id"`
	RiskEventIDs   []string `json:"risk_event_ids"`
}

// AggregateScores combines one entity's risk scores as the worst score plus
// a tenth of the rest, capped at 1.
func AggregateScores(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sorted := append([]float64(nil), scores...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	total := sorted[0]
	for _, s := range sorted[1:] {
		total += secondaryWeight * s
	}
	return math.Min(total, 1)
}

// AggregateProductRisks groups prioritized risks by the entities they touch.
// entitiesOf picks those entities; nil uses each event's AffectedEntities.
// Output is ordered by aggregate score descending, then entity id.
func AggregateProductRisks(risks []domain.PrioritizedRisk, entitiesOf func(domain.PrioritizedRisk) []string) []EntityRisk {
	if entitiesOf == nil {
		entitiesOf = func(r domain.PrioritizedRisk) []string { return r.RiskEvent.AffectedEntities }
	}

	type contrib struct {
		scores []float64
		events []string
		top    string
		best   float64
	}
	byEntity := make(map[string]*contrib)
	for _, r := range risks {
		for _, id := range fn.Unique(entitiesOf(r)) {
			c, ok := byEntity[id]
			if !ok {
				c = &contrib{best: -1}
				byEntity[id] = c
			}
			c.scores = append(c.scores, r.PriorityScore)
			c.events = append(c.events, r.RiskEvent.ID)
			if r.PriorityScore > c.best {
				c.best = r.PriorityScore
				c.top = r.RiskEvent.ID
			}
		}
	}

	out := make([]EntityRisk, 0, len(byEntity))
	for _, id := range fn.SortedKeys(byEntity) {
		c := byEntity[id]
		out = append(out, EntityRisk{
			EntityID:       id,
			AggregateScore: AggregateScores(c.scores),
			RiskCount:      len(c.scores),
			TopRiskEventID: c.top,
			RiskEventIDs:   c.events,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AggregateScore > out[j].AggregateScore })
	return out
}
