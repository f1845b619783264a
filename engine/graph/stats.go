package graph

import (
	"context"

	"github.com/WessleyAI/chainrisk/engine/domain"
)

// Stats counts nodes by label and edges by relationship type.
type Stats struct {
	Nodes map[domain.Label]int64   `json:"nodes"`
	Edges map[domain.RelType]int64 `json:"edges"`
}

func newStats() Stats {
	return Stats{Nodes: make(map[domain.Label]int64), Edges: make(map[domain.RelType]int64)}
}

// Stats returns node and relationship counts.
func (g *Neo4jStore) Stats(ctx context.Context) (Stats, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	st := newStats()
	result, err := sess.Run(ctx, `MATCH (n) RETURN labels(n)[0] AS type, count(*) AS count`, nil)
	if err != nil {
		return Stats{}, Classify("stats", err)
	}
	for result.Next(ctx) {
		if typ, cnt, ok := countRecord(result); ok {
			st.Nodes[domain.Label(typ)] = cnt
		}
	}
	if err := result.Err(); err != nil {
		return Stats{}, Classify("stats", err)
	}

	result, err = sess.Run(ctx, `MATCH ()-[r]->() RETURN type(r) AS type, count(*) AS count`, nil)
	if err != nil {
		return Stats{}, Classify("stats", err)
	}
	for result.Next(ctx) {
		if typ, cnt, ok := countRecord(result); ok {
			st.Edges[domain.RelType(typ)] = cnt
		}
	}
	if err := result.Err(); err != nil {
		return Stats{}, Classify("stats", err)
	}
	return st, nil
}

func countRecord(result CypherResult) (string, int64, bool) {
	rec := result.Record()
	typ, _ := rec.Get("type")
	cnt, _ := rec.Get("count")
	t, ok := typ.(string)
	if !ok {
		return "", 0, false
	}
	c, ok := cnt.(int64)
	return t, c, ok
}

// Stats returns node and relationship counts.
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := newStats()
	for _, n := range m.nodes {
		st.Nodes[n.Label]++
	}
	for _, e := range m.edges {
		st.Edges[e.Type]++
	}
	return st, nil
}
