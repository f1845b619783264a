package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/WessleyAI/chainrisk/engine/domain"
)

func loadChain(t *testing.T) *MemoryStore {
	t.Helper()
	m, err := LoadFixture("testdata/chain.yaml")
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	return m
}

func TestLoadFixture(t *testing.T) {
	m := loadChain(t)
	nodes, edges := m.Len()
	if nodes != 7 || edges != 7 {
		t.Fatalf("Len = %d nodes, %d edges", nodes, edges)
	}
	p, err := m.Node(context.Background(), "p1")
	if err != nil {
		t.Fatal(err)
	}
	if rev, ok := p.Float(domain.PropRevenue); !ok || rev != 250000 {
		t.Fatalf("revenue = %v, %v", rev, ok)
	}
}

func TestFixtureRejectsUnknownFields(t *testing.T) {
	_, err := ParseFixture("nodes:\n  - {id: a, label: Supplier, colour: red}\n")
	if err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestFixtureRejectsDanglingEdge(t *testing.T) {
	_, err := ParseFixture(`
nodes:
  - {id: s1, label: Supplier}
edges:
  - {source: s1, target: c9, type: SUPPLIES}
`)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryNodeNotFound(t *testing.T) {
	m := NewMemoryStore()
	if _, err := m.Node(context.Background(), "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestMemoryNeighbors(t *testing.T) {
	m := loadChain(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		id    string
		types []domain.RelType
		dir   domain.Direction
		want  []string
	}{
		{"outgoing supplies", "s1", []domain.RelType{domain.RelSupplies}, domain.Outgoing, []string{"c1", "c2"}},
		{"outgoing any", "s1", nil, domain.Outgoing, []string{"c1", "c2", "loc-tw"}},
		{"incoming supplies", "c1", []domain.RelType{domain.RelSupplies}, domain.Incoming, []string{"s1", "s2"}},
		{"both", "c1", []domain.RelType{domain.RelPartOf}, domain.Both, []string{"c2", "p1"}},
		{"unknown node", "zz", nil, domain.Both, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Neighbors(ctx, tt.id, tt.types, tt.dir)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d neighbors, want %v", len(got), tt.want)
			}
			for i, nb := range got {
				if nb.Node.ID != tt.want[i] {
					t.Errorf("neighbor[%d] = %s, want %s", i, nb.Node.ID, tt.want[i])
				}
			}
		})
	}
}

func TestMemoryUpsertEdge(t *testing.T) {
	m := loadChain(t)
	ctx := context.Background()
	err := m.SaveEdge(ctx, domain.Edge{SourceID: "s1", TargetID: "c1", Type: domain.RelSupplies, Properties: map[string]any{"is_primary": true}})
	if err != nil {
		t.Fatal(err)
	}
	if _, edges := m.Len(); edges != 7 {
		t.Fatalf("upsert should not add an edge, have %d", edges)
	}
	got, _ := m.Neighbors(ctx, "c1", []domain.RelType{domain.RelSupplies}, domain.Incoming)
	if got[0].Node.ID != "s1" || !got[0].Edge.Bool(domain.PropIsPrimary) {
		t.Fatalf("edge not updated in place: %+v", got[0])
	}
}

func TestMemoryPathsOrderedByHops(t *testing.T) {
	m := loadChain(t)
	paths, err := m.Paths(context.Background(), PathQuery{
		Source:    "s1",
		Types:     []domain.RelType{domain.RelSupplies, domain.RelPartOf},
		Direction: domain.Outgoing,
		MaxDepth:  5,
	})
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	prev := 0
	for _, p := range paths {
		if p.TotalDepth() < prev {
			t.Fatalf("paths not ordered by hop count: %v", keys)
		}
		prev = p.TotalDepth()
		keys = append(keys, p.Key())
	}
	want := []string{
		"s1-[SUPPLIES]->c1",
		"s1-[SUPPLIES]->c2",
		"s1-[SUPPLIES]->c1-[PART_OF]->p1",
		"s1-[SUPPLIES]->c2-[PART_OF]->c1",
		"s1-[SUPPLIES]->c2-[PART_OF]->c1-[PART_OF]->p1",
	}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Fatalf("paths =\n%v\nwant\n%v", keys, want)
	}
}

func TestMemoryPathsToTarget(t *testing.T) {
	m := loadChain(t)
	paths, err := m.Paths(context.Background(), PathQuery{
		Source:    "s2",
		Target:    "c2",
		Direction: domain.Both,
		MaxDepth:  6,
		Limit:     2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d paths", len(paths))
	}
	if paths[0].Key() != "s2-[SUPPLIES]->c1-[PART_OF]->c2" {
		t.Fatalf("shortest path = %s", paths[0].Key())
	}
	for _, p := range paths {
		if p.End().ID != "c2" {
			t.Fatalf("path does not end at target: %s", p.Key())
		}
		seen := map[string]bool{}
		for _, n := range p.Nodes {
			if seen[n.ID] {
				t.Fatalf("path repeats node %s", n.ID)
			}
			seen[n.ID] = true
		}
	}
}

func TestMemoryPathsCycleTerminates(t *testing.T) {
	m, err := ParseFixture(`
nodes:
  - {id: a, label: Component}
  - {id: b, label: Component}
edges:
  - {source: a, target: b, type: PART_OF}
  - {source: b, target: a, type: PART_OF}
`)
	if err != nil {
		t.Fatal(err)
	}
	paths, err := m.Paths(context.Background(), PathQuery{Source: "a", MaxDepth: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 1 || paths[0].Key() != "a-[PART_OF]->b" {
		t.Fatalf("paths = %v", paths)
	}
}

func TestMemoryCancelledContext(t *testing.T) {
	m := loadChain(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Neighbors(ctx, "s1", nil, domain.Outgoing); !domain.IsUnavailable(err) {
		t.Fatalf("err = %v, want GraphUnavailable", err)
	}
}
