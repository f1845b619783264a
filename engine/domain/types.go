// Package domain defines the supply-chain graph model, risk events, and the
// error taxonomy shared by every engine package.
package domain

import (
	"strconv"
	"strings"
	"time"
)

// Label is the type of a graph vertex.
type Label string

const (
	LabelSupplier  Label = "Supplier"
	LabelComponent Label = "Component"
	LabelProduct   Label = "Product"
	LabelLocation  Label = "Location"
	LabelRiskEvent Label = "RiskEvent"
)

// Labels lists every known vertex label.
var Labels = []Label{LabelSupplier, LabelComponent, LabelProduct, LabelLocation, LabelRiskEvent}

// Valid reports whether l is a known label.
func (l Label) Valid() bool {
	for _, k := range Labels {
		if l == k {
			return true
		}
	}
	return false
}

// RelType is the type of a directed graph edge.
type RelType string

const (
	RelSupplies  RelType = "SUPPLIES"   // Supplier -> Component
	RelPartOf    RelType = "PART_OF"    // Component -> Product | Component
	RelLocatedIn RelType = "LOCATED_IN" // Supplier -> Location
)

// RelTypes lists every known relationship type.
var RelTypes = []RelType{RelSupplies, RelPartOf, RelLocatedIn}

// Valid reports whether r is a known relationship type.
func (r RelType) Valid() bool {
	for _, k := range RelTypes {
		if r == k {
			return true
		}
	}
	return false
}

// Direction selects which edges a one-hop expansion follows.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	case Both:
		return "both"
	default:
		return "unknown"
	}
}

// ParseDirection converts "outgoing", "incoming" or "both" to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "outgoing", "out":
		return Outgoing, true
	case "incoming", "in":
		return Incoming, true
	case "both":
		return Both, true
	}
	return Outgoing, false
}

// Well-known property keys.
const (
	PropRiskScore = "risk_score" // Supplier, 0..100
	PropCritical  = "critical"   // Component, bool
	PropRevenue   = "revenue"    // Product, currency units
	PropCountry   = "country"    // Location
	PropIsPrimary = "is_primary" // SUPPLIES edge
	PropQuantity  = "quantity"   // PART_OF edge
)

// Node is a graph vertex. IDs are unique within a label and never change.
type Node struct {
	ID         string         `json:"id" yaml:"id"`
	Label      Label          `json:"label" yaml:"label"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Float returns a numeric property, converting integers and numeric strings.
func (n Node) Float(key string) (float64, bool) {
	return floatProp(n.Properties, key)
}

// Bool returns a boolean property. "true"/"false" strings are accepted.
func (n Node) Bool(key string) bool {
	return boolProp(n.Properties, key)
}

// String returns a string property or "".
func (n Node) String(key string) string {
	if v, ok := n.Properties[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Edge is a directed, typed relationship between two nodes.
type Edge struct {
	SourceID   string         `json:"source_id" yaml:"source"`
	TargetID   string         `json:"target_id" yaml:"target"`
	Type       RelType        `json:"relationship_type" yaml:"type"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// Bool returns a boolean edge property.
func (e Edge) Bool(key string) bool {
	return boolProp(e.Properties, key)
}

// Neighbor is one hop of an expansion: the node on the far side and the edge used.
type Neighbor struct {
	Node Node `json:"node"`
	Edge Edge `json:"edge"`
}

// Path is an ordered walk from a source node. len(Edges) == len(Nodes)-1.
type Path struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// TotalDepth is the number of edges in the path.
func (p Path) TotalDepth() int { return len(p.Edges) }

// Start returns the first node of the path.
func (p Path) Start() Node {
	if len(p.Nodes) == 0 {
		return Node{}
	}
	return p.Nodes[0]
}

// End returns the last node of the path.
func (p Path) End() Node {
	if len(p.Nodes) == 0 {
		return Node{}
	}
	return p.Nodes[len(p.Nodes)-1]
}

// Extend returns a copy of p with one more hop appended.
func (p Path) Extend(e Edge, n Node) Path {
	nodes := make([]Node, len(p.Nodes), len(p.Nodes)+1)
	copy(nodes, p.Nodes)
	edges := make([]Edge, len(p.Edges), len(p.Edges)+1)
	copy(edges, p.Edges)
	return Path{Nodes: append(nodes, n), Edges: append(edges, e)}
}

// Contains reports whether the path visits node id.
func (p Path) Contains(id string) bool {
	for _, n := range p.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// Key identifies a path by its node ids and edge types.
func (p Path) Key() string {
	var b strings.Builder
	for i, n := range p.Nodes {
		if i > 0 {
			b.WriteString("-[")
			b.WriteString(string(p.Edges[i-1].Type))
			b.WriteString("]->")
		}
		b.WriteString(n.ID)
	}
	return b.String()
}

// Severity is the ordered severity level of a risk event.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Weight maps a severity to (0,1]. Unknown severities weigh 0.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityLow:
		return 0.25
	case SeverityMedium:
		return 0.50
	case SeverityHigh:
		return 0.75
	case SeverityCritical:
		return 1.0
	default:
		return 0
	}
}

// Valid reports whether s is one of the four levels.
func (s Severity) Valid() bool { return s.Weight() > 0 }

// ParseSeverity accepts any casing of the four levels.
func ParseSeverity(s string) (Severity, bool) {
	for _, sev := range []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		if strings.EqualFold(string(sev), strings.TrimSpace(s)) {
			return sev, true
		}
	}
	return "", false
}

// RiskEvent is a structured disruption produced by the upstream extraction pipeline.
type RiskEvent struct {
	ID               string    `json:"id"`
	EventType        string    `json:"event_type"`
	Location         string    `json:"location"`
	AffectedEntities []string  `json:"affected_entities,omitempty"`
	Severity         Severity  `json:"severity"`
	Confidence       float64   `json:"confidence"`
	SourceURL        string    `json:"source_url,omitempty"`
	Description      string    `json:"description,omitempty"`
	DetectedAt       time.Time `json:"detected_at"`
}

func floatProp(props map[string]any, key string) (float64, bool) {
	v, ok := props[key]
	if !ok || v == nil {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func boolProp(props map[string]any, key string) bool {
	switch x := props[key].(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	}
	return false
}
