package graph

import (
	"context"
	"testing"

	"github.com/WessleyAI/chainrisk/engine/domain"
)

func TestMemoryStats(t *testing.T) {
	st, err := loadChain(t).Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Nodes[domain.LabelSupplier] != 2 || st.Nodes[domain.LabelLocation] != 2 {
		t.Fatalf("nodes = %v", st.Nodes)
	}
	if st.Edges[domain.RelSupplies] != 3 || st.Edges[domain.RelPartOf] != 2 {
		t.Fatalf("edges = %v", st.Edges)
	}
}

func TestNeo4jStats(t *testing.T) {
	sess := &mockSession{runResult: newMockResult(
		record([]string{"type", "count"}, "Supplier", int64(4)),
		record([]string{"type", "count"}, nil, int64(1)),
	)}
	gs := NewWithOpener(&mockOpener{session: sess})

	st, err := gs.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Nodes[domain.LabelSupplier] != 4 || len(st.Nodes) != 1 {
		t.Fatalf("nodes = %v", st.Nodes)
	}
	if len(sess.queries) != 2 {
		t.Fatalf("expected node and edge queries, got %d", len(sess.queries))
	}
}
