package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/WessleyAI/chainrisk/engine/domain"
)

// Neo4jStore implements Port and Writer over Cypher.
type Neo4jStore struct {
	opener SessionOpener
}

// New creates a Neo4jStore on a driver, using the driver's default database
// when database is empty.
func New(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return NewWithOpener(DriverOpener{Driver: driver, Database: database})
}

// NewWithOpener creates a Neo4jStore with a custom session opener.
func NewWithOpener(opener SessionOpener) *Neo4jStore {
	return &Neo4jStore{opener: opener}
}

// Opener exposes the session opener so other stores can share the write path.
func (g *Neo4jStore) Opener() SessionOpener { return g.opener }

// Node returns the node with the given id.
func (g *Neo4jStore) Node(ctx context.Context, id string) (domain.Node, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (n {id: $id}) RETURN n LIMIT 1`, map[string]any{"id": id})
	if err != nil {
		return domain.Node{}, Classify("node", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return domain.Node{}, Classify("node", err)
		}
		return domain.Node{}, fmt.Errorf("graph: node %s: %w", id, domain.ErrNotFound)
	}
	raw, _, err := neo4j.GetRecordValue[dbtype.Node](result.Record(), "n")
	if err != nil {
		return domain.Node{}, fmt.Errorf("graph: node %s: %w", id, err)
	}
	return nodeFromDB(raw), nil
}

// Neighbors returns one-hop neighbors of id in Port order.
func (g *Neo4jStore) Neighbors(ctx context.Context, id string, types []domain.RelType, dir domain.Direction) ([]domain.Neighbor, error) {
	cypher := fmt.Sprintf(
		`MATCH (s {id: $id})%s(n)
		 RETURN n, r, startNode(r).id AS src, endNode(r).id AS dst
		 ORDER BY n.id, type(r), CASE WHEN startNode(r) = s THEN 0 ELSE 1 END`,
		relPattern("r", types, 0, dir))

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return nil, Classify("neighbors", err)
	}
	var out []domain.Neighbor
	for result.Next(ctx) {
		rec := result.Record()
		node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
		if err != nil {
			return nil, fmt.Errorf("graph: neighbors %s: %w", id, err)
		}
		rel, _, err := neo4j.GetRecordValue[dbtype.Relationship](rec, "r")
		if err != nil {
			return nil, fmt.Errorf("graph: neighbors %s: %w", id, err)
		}
		src, _, _ := neo4j.GetRecordValue[string](rec, "src")
		dst, _, _ := neo4j.GetRecordValue[string](rec, "dst")
		out = append(out, domain.Neighbor{
			Node: nodeFromDB(node),
			Edge: edgeFromDB(rel, src, dst),
		})
	}
	if err := result.Err(); err != nil {
		return nil, Classify("neighbors", err)
	}
	return out, nil
}

// Paths enumerates simple paths with a variable-length pattern.
func (g *Neo4jStore) Paths(ctx context.Context, q PathQuery) ([]domain.Path, error) {
	target := "(t)"
	params := map[string]any{"source": q.Source}
	if q.Target != "" {
		target = "(t {id: $target})"
		params["target"] = q.Target
	}
	cypher := fmt.Sprintf(
		`MATCH p = (s {id: $source})%s%s
		 WHERE ALL(i IN range(0, size(nodes(p)) - 2) WHERE NOT nodes(p)[i] IN nodes(p)[i+1..])
		 RETURN p
		 ORDER BY length(p)`,
		relPattern("", q.Types, q.depth(), q.Direction), target)
	if q.Limit > 0 {
		cypher += "\n\t\t LIMIT $limit"
		params["limit"] = q.Limit
	}

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, Classify("paths", err)
	}
	var out []domain.Path
	for result.Next(ctx) {
		raw, _, err := neo4j.GetRecordValue[dbtype.Path](result.Record(), "p")
		if err != nil {
			return nil, fmt.Errorf("graph: paths from %s: %w", q.Source, err)
		}
		out = append(out, pathFromDB(raw))
	}
	if err := result.Err(); err != nil {
		return nil, Classify("paths", err)
	}
	return out, nil
}

// SaveNode creates or updates a node.
func (g *Neo4jStore) SaveNode(ctx context.Context, n domain.Node) error {
	if err := domain.ValidateNode(n); err != nil {
		return err
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher, params := saveNodeCypher(n)
	if _, err := sess.Run(ctx, cypher, params); err != nil {
		return Classify("save node", err)
	}
	return nil
}

// SaveEdge creates or updates an edge between two existing nodes.
func (g *Neo4jStore) SaveEdge(ctx context.Context, e domain.Edge) error {
	if err := domain.ValidateEdge(e); err != nil {
		return err
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher, params := saveEdgeCypher(e)
	if _, err := sess.Run(ctx, cypher, params); err != nil {
		return Classify("save edge", err)
	}
	return nil
}

// SaveBatch saves nodes then edges in a single write transaction.
func (g *Neo4jStore) SaveBatch(ctx context.Context, nodes []domain.Node, edges []domain.Edge) error {
	for _, n := range nodes {
		if err := domain.ValidateNode(n); err != nil {
			return err
		}
	}
	for _, e := range edges {
		if err := domain.ValidateEdge(e); err != nil {
			return err
		}
	}

	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx CypherRunner) (any, error) {
		for _, n := range nodes {
			cypher, params := saveNodeCypher(n)
			if _, err := tx.Run(ctx, cypher, params); err != nil {
				return nil, err
			}
		}
		for _, e := range edges {
			cypher, params := saveEdgeCypher(e)
			if _, err := tx.Run(ctx, cypher, params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return Classify("save batch", err)
	}
	return nil
}

func saveNodeCypher(n domain.Node) (string, map[string]any) {
	cypher := fmt.Sprintf(`MERGE (n:%s {id: $id}) SET n += $props`, sanitizeIdent(string(n.Label)))
	return cypher, map[string]any{"id": n.ID, "props": propsOrEmpty(n.Properties)}
}

func saveEdgeCypher(e domain.Edge) (string, map[string]any) {
	cypher := fmt.Sprintf(
		`MATCH (a {id: $src}), (b {id: $dst})
		 MERGE (a)-[r:%s]->(b)
		 SET r += $props`,
		sanitizeIdent(string(e.Type)))
	return cypher, map[string]any{"src": e.SourceID, "dst": e.TargetID, "props": propsOrEmpty(e.Properties)}
}

func propsOrEmpty(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}

// relPattern renders a relationship pattern such as -[r:SUPPLIES|PART_OF]->
// or <-[:PART_OF*1..4]-. depth 0 renders a single hop.
func relPattern(variable string, types []domain.RelType, depth int, dir domain.Direction) string {
	var b strings.Builder
	b.WriteString(variable)
	for i, t := range types {
		if i == 0 {
			b.WriteByte(':')
		} else {
			b.WriteByte('|')
		}
		b.WriteString(sanitizeIdent(string(t)))
	}
	if depth > 0 {
		fmt.Fprintf(&b, "*1..%d", depth)
	}
	inner := "[" + b.String() + "]"
	switch dir {
	case domain.Incoming:
		return "<-" + inner + "-"
	case domain.Both:
		return "-" + inner + "-"
	default:
		return "-" + inner + "->"
	}
}

func nodeFromDB(n dbtype.Node) domain.Node {
	out := domain.Node{Properties: make(map[string]any, len(n.Props))}
	for k, v := range n.Props {
		if k == "id" {
			if s, ok := v.(string); ok {
				out.ID = s
			}
			continue
		}
		out.Properties[k] = v
	}
	for _, l := range n.Labels {
		if domain.Label(l).Valid() {
			out.Label = domain.Label(l)
			break
		}
	}
	return out
}

func edgeFromDB(r dbtype.Relationship, src, dst string) domain.Edge {
	e := domain.Edge{SourceID: src, TargetID: dst, Type: domain.RelType(r.Type)}
	if len(r.Props) > 0 {
		e.Properties = r.Props
	}
	return e
}

// pathFromDB maps element ids back to node ids so edges carry their
// original orientation regardless of traversal direction.
func pathFromDB(p dbtype.Path) domain.Path {
	ids := make(map[string]string, len(p.Nodes))
	out := domain.Path{Nodes: make([]domain.Node, 0, len(p.Nodes))}
	for _, n := range p.Nodes {
		node := nodeFromDB(n)
		ids[n.ElementId] = node.ID
		out.Nodes = append(out.Nodes, node)
	}
	for _, r := range p.Relationships {
		out.Edges = append(out.Edges, edgeFromDB(r, ids[r.StartElementId], ids[r.EndElementId]))
	}
	return out
}

// Classify maps driver failures onto the engine's error taxonomy. Other
// Cypher-backed stores use it to report unavailability the same way.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsUnavailable(err) {
		return err
	}
	if neo4j.IsConnectivityError(err) || neo4j.IsRetryable(err) ||
		errors.Is(err, context.DeadlineExceeded) {
		return domain.Unavailable(op, err)
	}
	return fmt.Errorf("graph: %s: %w", op, err)
}

// sanitizeIdent ensures a label or relationship type is a valid Cypher identifier.
func sanitizeIdent(t string) string {
	safe := make([]byte, 0, len(t))
	for i := range t {
		c := t[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return "RELATED_TO"
	}
	return string(safe)
}
