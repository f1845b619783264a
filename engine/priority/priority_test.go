package priority

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/WessleyAI/chainrisk/engine/domain"
)

var now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func prioritizer(t *testing.T) *Prioritizer {
	t.Helper()
	p, err := NewPrioritizer(DefaultWeights(), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func event(id string, sev domain.Severity, conf float64, age time.Duration) domain.RiskEvent {
	return domain.RiskEvent{ID: id, Severity: sev, Confidence: conf, DetectedAt: now.Add(-age), Location: "loc-tw"}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name string
		w    Weights
		ok   bool
	}{
		{"default", DefaultWeights(), true},
		{"within tolerance", Weights{0.305, 0.2, 0.25, 0.15, 0.1}, true},
		{"sum too low", Weights{0.2, 0.2, 0.25, 0.15, 0.1}, false},
		{"negative", Weights{0.5, -0.1, 0.35, 0.15, 0.1}, false},
		{"all zero", Weights{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPrioritizer(tt.w)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok {
				var ce *domain.ConfigurationError
				if !errors.As(err, &ce) || !errors.Is(err, domain.ErrConfiguration) {
					t.Fatalf("want ConfigurationError, got %v", err)
				}
			}
		})
	}
}

func TestTimelineFactor(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want float64
	}{
		{-time.Hour, 1.0},
		{0, 1.0},
		{59 * time.Minute, 1.0},
		{time.Hour, 0.9},
		{23 * time.Hour, 0.9},
		{3 * 24 * time.Hour, 0.7},
		{20 * 24 * time.Hour, 0.5},
		{31 * 24 * time.Hour, 0.3},
	}
	for _, tt := range tests {
		if got := TimelineFactor(tt.age, false); got != tt.want {
			t.Errorf("TimelineFactor(%v) = %v, want %v", tt.age, got, tt.want)
		}
	}
	if got := TimelineFactor(0, true); got != 0.3 {
		t.Errorf("unknown detection time = %v", got)
	}
}

func TestCalculatePriority(t *testing.T) {
	p := prioritizer(t)
	got := p.CalculatePriority(event("e1", domain.SeverityCritical, 0.8, 30*time.Minute), Exposure{Products: 2, Revenue: 500_000})
	// .3*1 + .2*1 + .25*.2 + .15*.5 + .1*.8
	if !near(got.PriorityScore, 0.705) {
		t.Fatalf("score = %v, want 0.705", got.PriorityScore)
	}
	want := domain.PriorityFactors{Severity: 1, Timeline: 1, Products: 0.2, Revenue: 0.5, Confidence: 0.8}
	if got.Factors != want {
		t.Fatalf("factors = %+v", got.Factors)
	}

	capped := p.CalculatePriority(event("e2", domain.SeverityLow, 3, 0), Exposure{Products: 40, Revenue: 9e9})
	if capped.Factors.Products != 1 || capped.Factors.Revenue != 1 || capped.Factors.Confidence != 1 {
		t.Fatalf("factors not capped: %+v", capped.Factors)
	}
}

func TestCriticalOutranksLow(t *testing.T) {
	p := prioritizer(t)
	out := p.Prioritize([]Candidate{
		{Event: event("low", domain.SeverityLow, 0.8, 2*time.Hour)},
		{Event: event("crit", domain.SeverityCritical, 0.8, 2*time.Hour)},
	})
	if out[0].RiskEvent.ID != "crit" || out[0].PriorityRank != 1 || out[1].PriorityRank != 2 {
		t.Fatalf("ranking = %+v", out)
	}
}

func TestPrioritizeStableOnTies(t *testing.T) {
	p := prioritizer(t)
	out := p.PrioritizeEvents([]domain.RiskEvent{
		event("a", domain.SeverityMedium, 0.5, time.Hour),
		event("b", domain.SeverityMedium, 0.5, time.Hour),
		event("c", domain.SeverityMedium, 0.5, time.Hour),
	})
	for i, id := range []string{"a", "b", "c"} {
		if out[i].RiskEvent.ID != id || out[i].PriorityRank != i+1 {
			t.Fatalf("position %d = %s rank %d", i, out[i].RiskEvent.ID, out[i].PriorityRank)
		}
	}
}

func TestRankTotality(t *testing.T) {
	p := prioritizer(t)
	sevs := []domain.Severity{domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical}
	var cands []Candidate
	for i := 0; i < 40; i++ {
		ev := event(fmt.Sprintf("e%02d", i), sevs[i%4], float64(i%10)/10, time.Duration(i*7)*time.Hour)
		cands = append(cands, Candidate{Event: ev, Exposure: Exposure{Products: i % 13, Revenue: float64(i) * 37_000}})
	}
	out := p.Prioritize(cands)
	if len(out) != len(cands) {
		t.Fatalf("got %d results", len(out))
	}
	for i, r := range out {
		if r.PriorityRank != i+1 {
			t.Fatalf("rank %d at position %d", r.PriorityRank, i)
		}
		if r.PriorityScore < 0 || r.PriorityScore > 1 {
			t.Fatalf("score out of range: %v", r.PriorityScore)
		}
		if i > 0 && r.PriorityScore > out[i-1].PriorityScore {
			t.Fatalf("score increases at rank %d", r.PriorityRank)
		}
	}
}

func TestAggregateScores(t *testing.T) {
	if got := AggregateScores([]float64{0.5, 0.9, 0.3}); !near(got, 0.98) {
		t.Errorf("got %v, want 0.98", got)
	}
	if got := AggregateScores([]float64{0.9, 0.9, 0.9}); got != 1 {
		t.Errorf("got %v, want cap at 1", got)
	}
	if got := AggregateScores(nil); got != 0 {
		t.Errorf("empty = %v", got)
	}
}

func TestAggregateProductRisks(t *testing.T) {
	risk := func(id string, score float64, entities ...string) domain.PrioritizedRisk {
		return domain.PrioritizedRisk{RiskEvent: domain.RiskEvent{ID: id, AffectedEntities: entities}, PriorityScore: score}
	}
	out := AggregateProductRisks([]domain.PrioritizedRisk{
		risk("r1", 0.7, "p1", "p2", "p1"),
		risk("r2", 0.5, "p1"),
		risk("r3", 0.2, "p3"),
		risk("r4", 0.2, "p0"),
	}, nil)

	want := []struct {
		id    string
		score float64
		count int
		top   string
	}{
		{"p1", 0.75, 2, "r1"},
		{"p2", 0.7, 1, "r1"},
		{"p0", 0.2, 1, "r4"},
		{"p3", 0.2, 1, "r3"},
	}
	if len(out) != len(want) {
		t.Fatalf("got %+v", out)
	}
	for i, w := range want {
		if out[i].EntityID != w.id || !near(out[i].AggregateScore, w.score) || out[i].RiskCount != w.count || out[i].TopRiskEventID != w.top {
			t.Errorf("out[%d] = %+v, want %+v", i, out[i], w)
		}
	}
}

func TestAggregateWithCustomEntities(t *testing.T) {
	r := domain.PrioritizedRisk{RiskEvent: domain.RiskEvent{ID: "r1", AffectedEntities: []string{"s1"}}, PriorityScore: 0.4}
	out := AggregateProductRisks([]domain.PrioritizedRisk{r}, func(domain.PrioritizedRisk) []string { return []string{"p9"} })
	if len(out) != 1 || out[0].EntityID != "p9" {
		t.Fatalf("got %+v", out)
	}
}
