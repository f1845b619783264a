package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func validEvent() RiskEvent {
	return RiskEvent{
		ID:         "evt-1",
		EventType:  "earthquake",
		Location:   "loc-tw",
		Severity:   SeverityHigh,
		Confidence: 0.8,
		DetectedAt: time.Now(),
	}
}

func TestValidateRiskEvent_Valid(t *testing.T) {
	if err := ValidateRiskEvent(validEvent()); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	e := validEvent()
	e.Location = ""
	e.AffectedEntities = []string{"sup-1"}
	if err := ValidateRiskEvent(e); err != nil {
		t.Fatalf("affected entities should root the event, got %v", err)
	}
}

func TestValidateRiskEvent_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RiskEvent)
		want   error
	}{
		{"missing id", func(e *RiskEvent) { e.ID = " " }, ErrInvalidEvent},
		{"bad severity", func(e *RiskEvent) { e.Severity = "Severe" }, ErrInvalidSeverity},
		{"confidence high", func(e *RiskEvent) { e.Confidence = 1.5 }, ErrInvalidConfidence},
		{"confidence negative", func(e *RiskEvent) { e.Confidence = -0.1 }, ErrInvalidConfidence},
		{"no root", func(e *RiskEvent) { e.Location = "" }, ErrInvalidEvent},
	}
	for _, tt := range tests {
		e := validEvent()
		tt.mutate(&e)
		err := ValidateRiskEvent(e)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: expected *ValidationError, got %T", tt.name, err)
		}
	}
}

func TestValidateNodeAndEdge(t *testing.T) {
	if err := ValidateNode(Node{ID: "c1", Label: LabelComponent}); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if err := ValidateNode(Node{ID: "c1", Label: "Widget"}); !errors.Is(err, ErrInvalidNode) {
		t.Fatalf("expected ErrInvalidNode, got %v", err)
	}
	if err := ValidateEdge(Edge{SourceID: "s", TargetID: "c", Type: RelSupplies}); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if err := ValidateEdge(Edge{SourceID: "s", Type: RelSupplies}); !errors.Is(err, ErrInvalidEdge) {
		t.Fatalf("expected ErrInvalidEdge, got %v", err)
	}
	if err := ValidateEdge(Edge{SourceID: "s", TargetID: "c", Type: "OWNS"}); !errors.Is(err, ErrInvalidEdge) {
		t.Fatalf("expected ErrInvalidEdge, got %v", err)
	}
}

func TestSeverityWeights(t *testing.T) {
	tests := []struct {
		sev  Severity
		want float64
	}{
		{SeverityLow, 0.25},
		{SeverityMedium, 0.5},
		{SeverityHigh, 0.75},
		{SeverityCritical, 1.0},
		{"Unknown", 0},
	}
	for _, tt := range tests {
		if got := tt.sev.Weight(); got != tt.want {
			t.Errorf("%s.Weight() = %v, want %v", tt.sev, got, tt.want)
		}
	}
	if s, ok := ParseSeverity(" critical "); !ok || s != SeverityCritical {
		t.Fatalf("ParseSeverity = %q, %v", s, ok)
	}
	if _, ok := ParseSeverity("catastrophic"); ok {
		t.Fatal("ParseSeverity should reject unknown levels")
	}
}

func TestGraphUnavailableError(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := fmt.Errorf("traversal: %w", Unavailable("neighbors", cause))
	if !IsUnavailable(err) {
		t.Fatal("wrapped GraphUnavailableError should match ErrGraphUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause should be reachable through Unwrap")
	}
	if IsUnavailable(ErrNotFound) {
		t.Fatal("ErrNotFound is not unavailability")
	}
}

func TestConfigurationError(t *testing.T) {
	err := NewConfigurationError("weights", "sum %.2f", 0.9)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatal("expected ErrConfiguration match")
	}
	if err.Error() != "invalid configuration: weights: sum 0.90" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestEntityFailure(t *testing.T) {
	f := NewEntityFailure("c1", Unavailable("node", nil))
	if !IsUnavailable(f) {
		t.Fatal("EntityFailure should unwrap to its cause")
	}
	if f.Message == "" {
		t.Fatal("message should be rendered")
	}
}

func TestNodeProperties(t *testing.T) {
	n := Node{ID: "s1", Label: LabelSupplier, Properties: map[string]any{
		"risk_score": int64(40),
		"critical":   "true",
		"revenue":    "1500.5",
		"name":       "Acme",
	}}
	if v, ok := n.Float("risk_score"); !ok || v != 40 {
		t.Fatalf("Float(risk_score) = %v, %v", v, ok)
	}
	if v, ok := n.Float("revenue"); !ok || v != 1500.5 {
		t.Fatalf("Float(revenue) = %v, %v", v, ok)
	}
	if _, ok := n.Float("missing"); ok {
		t.Fatal("missing property should not parse")
	}
	if !n.Bool("critical") {
		t.Fatal("string bool should parse")
	}
	if n.String("name") != "Acme" {
		t.Fatal("String(name)")
	}
}

func TestPathExtendCopies(t *testing.T) {
	a := Node{ID: "a"}
	b := Node{ID: "b"}
	c := Node{ID: "c"}
	base := Path{Nodes: []Node{a}}
	p1 := base.Extend(Edge{SourceID: "a", TargetID: "b", Type: RelSupplies}, b)
	p2 := p1.Extend(Edge{SourceID: "b", TargetID: "c", Type: RelPartOf}, c)
	if p1.TotalDepth() != 1 || p2.TotalDepth() != 2 {
		t.Fatalf("depths %d %d", p1.TotalDepth(), p2.TotalDepth())
	}
	if p2.Start().ID != "a" || p2.End().ID != "c" {
		t.Fatal("start/end")
	}
	if !p2.Contains("b") || p1.Contains("c") {
		t.Fatal("Contains")
	}
	if got := p2.Key(); got != "a-[SUPPLIES]->b-[PART_OF]->c" {
		t.Fatalf("Key() = %q", got)
	}
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"out": Outgoing, "Incoming": Incoming, "both": Both} {
		got, ok := ParseDirection(in)
		if !ok || got != want {
			t.Errorf("ParseDirection(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseDirection("sideways"); ok {
		t.Fatal("expected failure")
	}
}
