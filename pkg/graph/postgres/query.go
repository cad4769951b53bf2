package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/hearthgraph/substrate/pkg/graph"
)

// VectorQueryNodes returns the topK nodes of the given label/scope whose
// Embedding is closest (cosine distance, the pgvector `<=>` operator) to
// embedding, ordered by ascending distance.
func (s *Store) VectorQueryNodes(ctx context.Context, scope, label string, embedding []float32, topK int) ([]graph.NodeMatch, error) {
	queryVec := pgvector.NewVector(embedding)

	const q = `
		SELECT id, scope, label, properties, log_weight, log_weight_overlays, embedding,
		       valid_at, invalidated_at, created_at, expired_at,
		       embedding <=> $1 AS distance
		FROM   nodes
		WHERE  scope = $2 AND label = $3 AND embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $4`

	rows, err := s.pool.Query(ctx, q, queryVec, scope, label, topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector query nodes: %w", err)
	}
	defer rows.Close()

	var matches []graph.NodeMatch
	for rows.Next() {
		node, distance, err := scanNodeMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: vector query nodes: scan: %w", err)
		}
		matches = append(matches, graph.NodeMatch{Node: node, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: vector query nodes: %w", err)
	}
	if matches == nil {
		matches = []graph.NodeMatch{}
	}
	return matches, nil
}

func scanNodeMatch(row pgx.Rows) (graph.Node, float64, error) {
	var (
		n            graph.Node
		propsJSON    []byte
		overlaysJSON []byte
		embedding    *pgvector.Vector
		invalidated  any
		expired      any
		distance     float64
	)
	if err := row.Scan(
		&n.ID, &n.Scope, &n.Label, &propsJSON, &n.LogWeight, &overlaysJSON, &embedding,
		&n.ValidAt, &invalidated, &n.CreatedAt, &expired, &distance,
	); err != nil {
		return graph.Node{}, 0, err
	}
	if err := unmarshalInto(propsJSON, &n.Properties); err != nil {
		return graph.Node{}, 0, fmt.Errorf("unmarshal properties: %w", err)
	}
	if err := unmarshalOverlays(overlaysJSON, &n.LogWeightOverlays); err != nil {
		return graph.Node{}, 0, fmt.Errorf("unmarshal log weight overlays: %w", err)
	}
	if embedding != nil {
		n.Embedding = embedding.Slice()
	}
	return n, distance, nil
}

// AggregateConnectivity computes the graph-connectivity proxy inputs used
// by stimulus injection: the maximum node out-degree, the mean effective
// link weight, and the count of nodes with non-zero log weight, scoped to
// scope.
func (s *Store) AggregateConnectivity(ctx context.Context, scope string) (int, float64, int, error) {
	const degreeQ = `
		SELECT COALESCE(MAX(out_degree), 0)
		FROM (
		    SELECT source_id, COUNT(*) AS out_degree
		    FROM   links
		    WHERE  scope = $1
		    GROUP  BY source_id
		) d`
	var maxDegree int
	if err := s.pool.QueryRow(ctx, degreeQ, scope).Scan(&maxDegree); err != nil {
		return 0, 0, 0, fmt.Errorf("postgres: aggregate connectivity: max degree: %w", err)
	}

	const weightQ = `
		SELECT COALESCE(AVG(EXP(LEAST(GREATEST(log_weight, -40), 40))), 0)
		FROM   links
		WHERE  scope = $1`
	var meanWeight float64
	if err := s.pool.QueryRow(ctx, weightQ, scope).Scan(&meanWeight); err != nil {
		return 0, 0, 0, fmt.Errorf("postgres: aggregate connectivity: mean weight: %w", err)
	}

	const activeQ = `
		SELECT COUNT(*)
		FROM   nodes
		WHERE  scope = $1 AND log_weight <> 0`
	var activeCount int
	if err := s.pool.QueryRow(ctx, activeQ, scope).Scan(&activeCount); err != nil {
		return 0, 0, 0, fmt.Errorf("postgres: aggregate connectivity: active count: %w", err)
	}

	return maxDegree, meanWeight, activeCount, nil
}
