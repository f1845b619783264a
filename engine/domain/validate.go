package domain

import (
	"fmt"
	"strings"
)

// ValidateRiskEvent checks a RiskEvent at the engine's entry points.
// Location or at least one affected entity is required to root a traversal.
func ValidateRiskEvent(e RiskEvent) error {
	if strings.TrimSpace(e.ID) == "" {
		return NewValidationError("id", e.ID, ErrInvalidEvent)
	}
	if !e.Severity.Valid() {
		return NewValidationError("severity", string(e.Severity), ErrInvalidSeverity)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return NewValidationError("confidence", fmt.Sprintf("%g", e.Confidence), ErrInvalidConfidence)
	}
	if strings.TrimSpace(e.Location) == "" && len(e.AffectedEntities) == 0 {
		return NewValidationError("location", e.Location, ErrInvalidEvent)
	}
	return nil
}

// ValidateNode checks a node before it is written by an adapter.
func ValidateNode(n Node) error {
	if strings.TrimSpace(n.ID) == "" {
		return NewValidationError("id", n.ID, ErrInvalidNode)
	}
	if !n.Label.Valid() {
		return NewValidationError("label", string(n.Label), ErrInvalidNode)
	}
	return nil
}

// ValidateEdge checks an edge before it is written by an adapter.
func ValidateEdge(e Edge) error {
	if e.SourceID == "" || e.TargetID == "" {
		return NewValidationError("edge", e.SourceID+"->"+e.TargetID, ErrInvalidEdge)
	}
	if !e.Type.Valid() {
		return NewValidationError("relationship_type", string(e.Type), ErrInvalidEdge)
	}
	return nil
}
