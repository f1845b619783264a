package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/WessleyAI/chainrisk/engine/domain"
)

// MemoryStore is an adjacency-list graph with forward and reverse indexes.
// It supports concurrent reads; writes are
// expected from a single loader before traversal starts.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]domain.Node
	edges []domain.Edge
	out   map[string][]int
	in    map[string][]int
	index map[edgeKey]int
}

type edgeKey struct {
	src, dst string
	typ      domain.RelType
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]domain.Node),
		out:   make(map[string][]int),
		in:    make(map[string][]int),
		index: make(map[edgeKey]int),
	}
}

// SaveNode inserts or replaces a node.
func (m *MemoryStore) SaveNode(_ context.Context, n domain.Node) error {
	if err := domain.ValidateNode(n); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[n.ID] = n
	return nil
}

// SaveEdge inserts an edge, or replaces the properties of an existing edge
// with the same endpoints and type. Both endpoints must exist.
func (m *MemoryStore) SaveEdge(_ context.Context, e domain.Edge) error {
	if err := domain.ValidateEdge(e); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addEdgeLocked(e)
}

// SaveBatch saves nodes before edges so edges may reference new nodes.
func (m *MemoryStore) SaveBatch(ctx context.Context, nodes []domain.Node, edges []domain.Edge) error {
	for _, n := range nodes {
		if err := m.SaveNode(ctx, n); err != nil {
			return err
		}
	}
	for _, e := range edges {
		if err := m.SaveEdge(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) addEdgeLocked(e domain.Edge) error {
	for _, id := range []string{e.SourceID, e.TargetID} {
		if _, ok := m.nodes[id]; !ok {
			return fmt.Errorf("graph: edge endpoint %s: %w", id, domain.ErrNotFound)
		}
	}
	k := edgeKey{e.SourceID, e.TargetID, e.Type}
	if i, ok := m.index[k]; ok {
		m.edges[i] = e
		return nil
	}
	i := len(m.edges)
	m.edges = append(m.edges, e)
	m.index[k] = i
	m.out[e.SourceID] = append(m.out[e.SourceID], i)
	m.in[e.TargetID] = append(m.in[e.TargetID], i)
	return nil
}

// Len returns the number of nodes and edges.
func (m *MemoryStore) Len() (nodes, edges int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes), len(m.edges)
}

// Node implements Port.
func (m *MemoryStore) Node(ctx context.Context, id string) (domain.Node, error) {
	if err := ctx.Err(); err != nil {
		return domain.Node{}, domain.Unavailable("node", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return domain.Node{}, fmt.Errorf("graph: node %s: %w", id, domain.ErrNotFound)
	}
	return n, nil
}

// Neighbors implements Port.
func (m *MemoryStore) Neighbors(ctx context.Context, id string, types []domain.RelType, dir domain.Direction) ([]domain.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Unavailable("neighbors", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.neighborsLocked(id, types, dir), nil
}

func (m *MemoryStore) neighborsLocked(id string, types []domain.RelType, dir domain.Direction) []domain.Neighbor {
	var out []domain.Neighbor
	if dir == domain.Outgoing || dir == domain.Both {
		for _, i := range m.out[id] {
			e := m.edges[i]
			if allowsType(types, e.Type) {
				out = append(out, domain.Neighbor{Node: m.nodes[e.TargetID], Edge: e})
			}
		}
	}
	if dir == domain.Incoming || dir == domain.Both {
		for _, i := range m.in[id] {
			e := m.edges[i]
			if allowsType(types, e.Type) {
				out = append(out, domain.Neighbor{Node: m.nodes[e.SourceID], Edge: e})
			}
		}
	}
	// Stable, so an outgoing edge stays ahead of an incoming one to the same neighbor.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Node.ID != out[j].Node.ID {
			return out[i].Node.ID < out[j].Node.ID
		}
		return out[i].Edge.Type < out[j].Edge.Type
	})
	return out
}

// Paths implements Port with a breadth-first enumeration of simple paths.
func (m *MemoryStore) Paths(ctx context.Context, q PathQuery) ([]domain.Path, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src, ok := m.nodes[q.Source]
	if !ok {
		return nil, nil
	}
	maxDepth := q.depth()

	var out []domain.Path
	frontier := []domain.Path{{Nodes: []domain.Node{src}}}
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.Unavailable("paths", err)
		}
		var next []domain.Path
		for _, p := range frontier {
			for _, nb := range m.neighborsLocked(p.End().ID, q.Types, q.Direction) {
				if p.Contains(nb.Node.ID) {
					continue
				}
				ext := p.Extend(nb.Edge, nb.Node)
				if q.Target == "" || nb.Node.ID == q.Target {
					out = append(out, ext)
					if q.Limit > 0 && len(out) >= q.Limit {
						return out, nil
					}
				}
				if nb.Node.ID != q.Target {
					next = append(next, ext)
				}
			}
		}
		frontier = next
	}
	return out, nil
}
