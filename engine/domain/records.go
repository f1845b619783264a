package domain

import "time"

// ImpactResult is one node reached downstream of a disrupted node, with the
// minimum distance at which it was reached and the paths achieving it.
type ImpactResult struct {
	AffectedNodeID     string `json:"affected_node_id"`
	AffectedNodeLabel  Label  `json:"affected_node_label"`
	DistanceFromSource int    `json:"distance_from_source"`
	ImpactPaths        []Path `json:"impact_paths"`
}

// Upstream is an ancestor reached by reverse traversal.
type Upstream struct {
	Node     Node `json:"node"`
	Distance int  `json:"distance"`
}

// ImpactScore is the 0-10 impact of a risk event with its factor breakdown.
type ImpactScore struct {
	RiskEventID           string  `json:"risk_event_id"`
	OverallScore          float64 `json:"overall_score"`
	SeverityComponent     float64 `json:"severity_component"`
	ProximityComponent    float64 `json:"proximity_component"`
	CriticalityComponent  float64 `json:"criticality_component"`
	RedundancyComponent   float64 `json:"redundancy_component"`
	AffectedProductsCount int     `json:"affected_products_count"`
	AffectedRevenue       float64 `json:"affected_revenue"`
}

// SupplierRedundancy describes how many suppliers back one component.
// IsSingleSource is true exactly when SupplierCount <= 1.
type SupplierRedundancy struct {
	ComponentID       string   `json:"component_id"`
	SupplierCount     int      `json:"supplier_count"`
	PrimarySupplierID string   `json:"primary_supplier_id,omitempty"`
	BackupSuppliers   []string `json:"backup_suppliers"`
	RedundancyScore   float64  `json:"redundancy_score"`
	IsSingleSource    bool     `json:"is_single_source"`
	IsCritical        bool     `json:"is_critical"`
}

// Level is the aggregation level of a resilience measurement.
type Level string

const (
	LevelComponent Level = "component"
	LevelProduct   Level = "product"
	LevelPortfolio Level = "portfolio"
)

// ResilienceFactors is the breakdown behind a component ResilienceScore.
type ResilienceFactors struct {
	SupplierCount    int     `json:"supplier_count"`
	CountryCount     int     `json:"country_count"`
	RedundancyFactor float64 `json:"redundancy_factor"`
	DiversityScore   float64 `json:"diversity_score"`
	ReliabilityScore float64 `json:"reliability_score"`
	LeadTimeBuffer   float64 `json:"lead_time_buffer"`
	SPOFPenalty      float64 `json:"spof_penalty"`
}

// ResilienceScore is a 0-100 resilience score for one entity.
type ResilienceScore struct {
	EntityID         string            `json:"entity_id"`
	Score            float64           `json:"score"`
	RedundancyFactor float64           `json:"redundancy_factor"`
	Factors          ResilienceFactors `json:"factors"`
}

// ResilienceMetrics aggregates component scores for a product or portfolio.
type ResilienceMetrics struct {
	EntityID              string            `json:"entity_id,omitempty"`
	Level                 Level             `json:"level"`
	OverallScore          float64           `json:"overall_score"`
	ComponentScores       []ResilienceScore `json:"component_scores"`
	RedundancyCoverage    float64           `json:"redundancy_coverage"`
	SinglePointsOfFailure int               `json:"single_points_of_failure"`
}

// HistoricalResilienceScore is one append-only history entry.
type HistoricalResilienceScore struct {
	ID         string             `json:"id"`
	EntityID   string             `json:"entity_id"`
	Score      float64            `json:"score"`
	RecordedAt time.Time          `json:"recorded_at"`
	Factors    map[string]float64 `json:"factors,omitempty"`
}

// TrendDirection classifies a resilience trend.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// Trend is the direction and weekly rate of change over a history window.
type Trend struct {
	EntityID    string         `json:"entity_id"`
	Direction   TrendDirection `json:"direction"`
	RatePerWeek float64        `json:"rate_per_week"`
	Points      int            `json:"points"`
}

// PriorityFactors are the normalized [0,1] inputs of a priority score.
type PriorityFactors struct {
	Severity   float64 `json:"severity"`
	Timeline   float64 `json:"timeline"`
	Products   float64 `json:"products"`
	Revenue    float64 `json:"revenue"`
	Confidence float64 `json:"confidence"`
}

// PrioritizedRisk is a risk event with its score and dense 1-based rank.
type PrioritizedRisk struct {
	RiskEvent     RiskEvent       `json:"risk_event"`
	PriorityScore float64         `json:"priority_score"`
	PriorityRank  int             `json:"priority_rank"`
	Factors       PriorityFactors `json:"factors"`
}
