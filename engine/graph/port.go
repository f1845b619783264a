// Package graph provides access to the supply-chain graph: the Port
// contract consumed by the analysis engine, a Neo4j-backed store, an
// in-memory store for deterministic tests and fixtures, and a Guard that
// bounds calls with timeouts, rate limiting and a circuit breaker.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/WessleyAI/chainrisk/engine/domain"
	"github.com/WessleyAI/chainrisk/pkg/fn"
)

// DefaultPathDepth bounds path queries that do not set MaxDepth.
const DefaultPathDepth = 6

// Port is the read contract every graph backend implements.
//
// Node returns domain.ErrNotFound when id is absent. Neighbors and Paths
// return empty results for unknown ids. Infrastructure failures surface as
// errors matching domain.ErrGraphUnavailable.
//
// Neighbors are ordered by neighbor id, then relationship type, with the
// outgoing edge first when a neighbor is linked both ways. Callers that
// pick "the first" neighbor rely on every backend agreeing on this order.
type Port interface {
	Node(ctx context.Context, id string) (domain.Node, error)
	Neighbors(ctx context.Context, id string, types []domain.RelType, dir domain.Direction) ([]domain.Neighbor, error)
	Paths(ctx context.Context, q PathQuery) ([]domain.Path, error)
}

// Writer persists nodes and edges. Saves are upserts keyed by node id and
// by (source, target, type) for edges.
type Writer interface {
	SaveNode(ctx context.Context, n domain.Node) error
	SaveEdge(ctx context.Context, e domain.Edge) error
	SaveBatch(ctx context.Context, nodes []domain.Node, edges []domain.Edge) error
}

// LookupNodes fetches ids with at most workers concurrent Node calls, one
// Result per id in input order. Unknown ids succeed with a zero Node, so
// callers filter on Label.
func LookupNodes(ctx context.Context, port Port, ids []string, workers int) []fn.Result[domain.Node] {
	return fn.ParMapCtx(ctx, ids, workers, 0, func(ctx context.Context, id string) (domain.Node, error) {
		n, err := port.Node(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Node{}, nil
		}
		if err != nil {
			return domain.Node{}, fmt.Errorf("node %s: %w", id, err)
		}
		return n, nil
	})
}

// PathQuery describes a bounded-depth path enumeration. Results are simple
// paths (no repeated node) ordered by hop count.
type PathQuery struct {
	Source string
	// Target restricts results to paths ending at this node. Empty means any.
	Target string
	// Types restricts the edges followed. nil follows every type.
	Types     []domain.RelType
	Direction domain.Direction
	MaxDepth  int
	// Limit caps the number of paths returned. <= 0 means no cap.
	Limit int
}

func (q PathQuery) depth() int {
	if q.MaxDepth <= 0 {
		return DefaultPathDepth
	}
	return q.MaxDepth
}

func allowsType(types []domain.RelType, t domain.RelType) bool {
	if len(types) == 0 {
		return true
	}
	for _, k := range types {
		if k == t {
			return true
		}
	}
	return false
}
