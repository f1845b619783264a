package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/chainrisk/engine/domain"
	"github.com/WessleyAI/chainrisk/engine/graph"
)

const (
	appendSnapshotCypher = `
CREATE (s:ResilienceSnapshot {id: $id, entity_id: $entity_id, score: $score, recorded_at: $recorded_at, factors: $factors})
WITH s
OPTIONAL MATCH (e {id: $entity_id}) WHERE NOT e:ResilienceSnapshot
FOREACH (_ IN CASE WHEN e IS NULL THEN [] ELSE [1] END | MERGE (e)-[:HAS_SNAPSHOT]->(s))`

	snapshotsSinceCypher = `
MATCH (s:ResilienceSnapshot {entity_id: $entity_id})
WHERE s.recorded_at >= $since
RETURN s.id AS id, s.score AS score, s.recorded_at AS recorded_at, s.factors AS factors
ORDER BY s.recorded_at DESC`
)

// GraphBackend stores history as :ResilienceSnapshot nodes hung off the
// scored entity by HAS_SNAPSHOT, sharing the graph store's sessions.
type GraphBackend struct {
	opener graph.SessionOpener
}

// NewGraphBackend creates a GraphBackend.
func NewGraphBackend(opener graph.SessionOpener) *GraphBackend {
	return &GraphBackend{opener: opener}
}

// Append implements Backend.
func (g *GraphBackend) Append(ctx context.Context, rec domain.HistoricalResilienceScore) error {
	factors, err := json.Marshal(rec.Factors)
	if err != nil {
		return fmt.Errorf("marshal factors: %w", err)
	}
	params := map[string]any{
		"id":          rec.ID,
		"entity_id":   rec.EntityID,
		"score":       rec.Score,
		"recorded_at": rec.RecordedAt,
		"factors":     string(factors),
	}

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)
	_, err = sess.ExecuteWrite(ctx, func(tx graph.CypherRunner) (any, error) {
		if _, err := tx.Run(ctx, appendSnapshotCypher, params); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return graph.Classify("append snapshot", err)
}

// Since implements Backend.
func (g *GraphBackend) Since(ctx context.Context, entityID string, since time.Time) ([]domain.HistoricalResilienceScore, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, snapshotsSinceCypher, map[string]any{"entity_id": entityID, "since": since.UTC()})
	if err != nil {
		return nil, graph.Classify("snapshots", err)
	}
	var out []domain.HistoricalResilienceScore
	for result.Next(ctx) {
		rec, err := snapshotFromRecord(entityID, result.Record())
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := result.Err(); err != nil {
		return nil, graph.Classify("snapshots", err)
	}
	return out, nil
}

func snapshotFromRecord(entityID string, r *neo4j.Record) (domain.HistoricalResilienceScore, error) {
	rec := domain.HistoricalResilienceScore{EntityID: entityID}
	var err error
	if rec.ID, _, err = neo4j.GetRecordValue[string](r, "id"); err != nil {
		return rec, fmt.Errorf("snapshot id: %w", err)
	}
	if rec.Score, _, err = neo4j.GetRecordValue[float64](r, "score"); err != nil {
		return rec, fmt.Errorf("snapshot %s score: %w", rec.ID, err)
	}
	if rec.RecordedAt, _, err = neo4j.GetRecordValue[time.Time](r, "recorded_at"); err != nil {
		return rec, fmt.Errorf("snapshot %s recorded_at: %w", rec.ID, err)
	}
	raw, isNil, err := neo4j.GetRecordValue[string](r, "factors")
	if err != nil {
		return rec, fmt.Errorf("snapshot %s factors: %w", rec.ID, err)
	}
	if !isNil && raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &rec.Factors); err != nil {
			return rec, fmt.Errorf("snapshot %s factors: %w", rec.ID, err)
		}
	}
	return rec, nil
}
