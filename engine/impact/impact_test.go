package impact

import (
	"math"
	"testing"

	"github.com/WessleyAI/chainrisk/engine/domain"
)

func product(id string, distance int, revenue any) domain.ImpactResult {
	n := domain.Node{ID: id, Label: domain.LabelProduct}
	if revenue != nil {
		n.Properties = map[string]any{domain.PropRevenue: revenue}
	}
	return domain.ImpactResult{
		AffectedNodeID:     id,
		AffectedNodeLabel:  domain.LabelProduct,
		DistanceFromSource: distance,
		ImpactPaths: []domain.Path{{
			Nodes: []domain.Node{{ID: "s1", Label: domain.LabelSupplier}, n},
			Edges: []domain.Edge{{SourceID: "s1", TargetID: id, Type: domain.RelPartOf}},
		}},
	}
}

func component(id string, distance int) domain.ImpactResult {
	return domain.ImpactResult{AffectedNodeID: id, AffectedNodeLabel: domain.LabelComponent, DistanceFromSource: distance}
}

func TestCalculateBreakdown(t *testing.T) {
	ev := domain.RiskEvent{ID: "ev1", Severity: domain.SeverityHigh}
	results := []domain.ImpactResult{
		component("c1", 1),
		product("p1", 2, 1000.0),
		product("p2", 3, int64(500)),
	}
	got := Calculate(ev, results)

	// proximity = mean(0.64, 0.512) * 10 = 5.76
	want := domain.ImpactScore{
		RiskEventID:           "ev1",
		SeverityComponent:     7.5,
		ProximityComponent:    5.76,
		CriticalityComponent:  1.0,
		RedundancyComponent:   5.0,
		AffectedProductsCount: 2,
		AffectedRevenue:       1500,
	}
	// 0.3*7.5 + 0.25*5.76 + 0.25*1 + 0.2*5 = 2.25 + 1.44 + 0.25 + 1.0 = 4.94
	want.OverallScore = 4.94
	if got != want {
		t.Fatalf("Calculate =\n%+v\nwant\n%+v", got, want)
	}
}

func TestCalculateNoProducts(t *testing.T) {
	got := Calculate(domain.RiskEvent{ID: "e", Severity: domain.SeverityLow}, []domain.ImpactResult{component("c1", 1)})
	if got.ProximityComponent != 0 || got.CriticalityComponent != 0 || got.AffectedProductsCount != 0 {
		t.Fatalf("got %+v", got)
	}
	// 0.3*2.5 + 0.2*5 = 1.75
	if got.OverallScore != 1.75 {
		t.Fatalf("overall = %v, want 1.75", got.OverallScore)
	}
}

func TestWithRedundancyClamped(t *testing.T) {
	ev := domain.RiskEvent{ID: "e", Severity: domain.SeverityCritical}
	if got := Calculate(ev, nil, WithRedundancy(42)); got.RedundancyComponent != 10 {
		t.Fatalf("redundancy = %v, want clamp to 10", got.RedundancyComponent)
	}
	if got := Calculate(ev, nil, WithRedundancy(-3)); got.RedundancyComponent != 0 {
		t.Fatalf("redundancy = %v, want clamp to 0", got.RedundancyComponent)
	}
	if got := Calculate(ev, nil, WithRedundancy(0)); got.RedundancyComponent != 0 {
		t.Fatalf("explicit zero redundancy should be kept, got %v", got.RedundancyComponent)
	}
}

func TestCriticalityCap(t *testing.T) {
	var results []domain.ImpactResult
	for i := 0; i < 30; i++ {
		results = append(results, product(string(rune('a'+i)), 1, nil))
	}
	got := Calculate(domain.RiskEvent{Severity: domain.SeverityCritical}, results, WithRedundancy(10))
	if got.CriticalityComponent != 10 {
		t.Fatalf("criticality = %v, want 10", got.CriticalityComponent)
	}
	if got.OverallScore < 0 || got.OverallScore > 10 {
		t.Fatalf("overall out of bounds: %v", got.OverallScore)
	}
}

func TestDuplicateProductsCountedOnce(t *testing.T) {
	results := []domain.ImpactResult{product("p1", 1, 100.0), product("p1", 1, 100.0)}
	got := Calculate(domain.RiskEvent{Severity: domain.SeverityMedium}, results)
	if got.AffectedProductsCount != 1 || got.AffectedRevenue != 100 {
		t.Fatalf("got %+v", got)
	}
}

func TestUnknownSeverityScoresZero(t *testing.T) {
	got := Calculate(domain.RiskEvent{Severity: "Apocalyptic"}, nil)
	if got.SeverityComponent != 0 {
		t.Fatalf("severity = %v", got.SeverityComponent)
	}
}

func TestCalculateDeterministicAndBounded(t *testing.T) {
	sevs := []domain.Severity{domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical}
	for _, sev := range sevs {
		for n := 0; n < 25; n += 6 {
			var results []domain.ImpactResult
			for i := 0; i < n; i++ {
				results = append(results, product(string(rune('A'+i)), i%4, float64(i)*10))
			}
			for _, red := range []float64{-1, 0, 5, 11, math.NaN()} {
				a := Calculate(domain.RiskEvent{Severity: sev}, results, WithRedundancy(red))
				b := Calculate(domain.RiskEvent{Severity: sev}, results, WithRedundancy(red))
				if a != b {
					t.Fatalf("non-deterministic: %+v vs %+v", a, b)
				}
				if a.OverallScore < 0 || a.OverallScore > 10 {
					t.Fatalf("overall out of bounds: %v", a.OverallScore)
				}
			}
		}
	}
}
