package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/hearthgraph/substrate/pkg/graph"
)

// UpsertNode writes n and confirms the write with a read-back, retrying up
// to the store's configured write-retry budget. confirmed is false if every
// attempt's read-back mismatched what was written.
func (s *Store) UpsertNode(ctx context.Context, n graph.Node) (bool, error) {
	attempts := s.writeRetries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := s.execUpsertNode(ctx, n); err != nil {
			lastErr = err
			continue
		}
		stored, err := s.GetNode(ctx, n.Scope, n.ID)
		if err != nil {
			lastErr = err
			continue
		}
		if nodesMatch(n, stored) {
			return true, nil
		}
	}
	if lastErr != nil {
		return false, fmt.Errorf("postgres: upsert node %s/%s: %w", n.Scope, n.ID, lastErr)
	}
	return false, nil
}

func (s *Store) execUpsertNode(ctx context.Context, n graph.Node) error {
	propsJSON, err := json.Marshal(n.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}
	overlaysJSON, err := json.Marshal(n.LogWeightOverlays)
	if err != nil {
		return fmt.Errorf("marshal log weight overlays: %w", err)
	}

	const q = `
		INSERT INTO nodes
		    (id, scope, label, properties, log_weight, log_weight_overlays, embedding,
		     valid_at, invalidated_at, created_at, expired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (scope, id) DO UPDATE SET
		    label               = EXCLUDED.label,
		    properties          = EXCLUDED.properties,
		    log_weight          = EXCLUDED.log_weight,
		    log_weight_overlays = EXCLUDED.log_weight_overlays,
		    embedding           = EXCLUDED.embedding,
		    valid_at            = EXCLUDED.valid_at,
		    invalidated_at      = EXCLUDED.invalidated_at,
		    expired_at          = EXCLUDED.expired_at`

	_, err = s.pool.Exec(ctx, q,
		n.ID, n.Scope, n.Label, propsJSON, n.LogWeight, overlaysJSON, toPGVector(n.Embedding),
		n.ValidAt, nullableTime(n.InvalidatedAt), n.CreatedAt, nullableTime(n.ExpiredAt),
	)
	if err != nil {
		return fmt.Errorf("exec upsert: %w", err)
	}
	return nil
}

// BatchUpsertNodes writes each node individually within the same round of
// calls. PostgreSQL's per-statement upsert-and-confirm cost dominates over
// any savings from a single multi-row statement here, since confirmation
// still requires one read-back per row.
func (s *Store) BatchUpsertNodes(ctx context.Context, nodes []graph.BatchNodeUpsert) ([]bool, error) {
	confirmed := make([]bool, len(nodes))
	for i, n := range nodes {
		ok, err := s.UpsertNode(ctx, n.Node)
		if err != nil {
			return confirmed, err
		}
		confirmed[i] = ok
	}
	return confirmed, nil
}

// GetNode retrieves a node by (scope, id). Returns [graph.ErrNotFound] if it
// does not exist.
func (s *Store) GetNode(ctx context.Context, scope, id string) (graph.Node, error) {
	const q = `
		SELECT id, scope, label, properties, log_weight, log_weight_overlays, embedding,
		       valid_at, invalidated_at, created_at, expired_at
		FROM   nodes
		WHERE  scope = $1 AND id = $2`

	rows, err := s.pool.Query(ctx, q, scope, id)
	if err != nil {
		return graph.Node{}, fmt.Errorf("postgres: get node: %w", err)
	}
	nodes, err := collectNodes(rows)
	if err != nil {
		return graph.Node{}, fmt.Errorf("postgres: get node: %w", err)
	}
	if len(nodes) == 0 {
		return graph.Node{}, graph.ErrNotFound
	}
	return nodes[0], nil
}

// FindNodes returns all nodes in filter.Scope matching filter.
func (s *Store) FindNodes(ctx context.Context, filter graph.NodeFilter) ([]graph.Node, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"scope = " + next(filter.Scope)}
	if filter.Label != "" {
		conditions = append(conditions, "label = "+next(filter.Label))
	}
	if len(filter.PropertyQuery) > 0 {
		queryJSON, err := json.Marshal(filter.PropertyQuery)
		if err != nil {
			return nil, fmt.Errorf("postgres: find nodes: marshal property query: %w", err)
		}
		conditions = append(conditions, "properties @> "+next(string(queryJSON))+"::jsonb")
	}

	q := "SELECT id, scope, label, properties, log_weight, log_weight_overlays, embedding,\n" +
		"       valid_at, invalidated_at, created_at, expired_at\n" +
		"FROM   nodes\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND ") + "\n" +
		"ORDER  BY id"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: find nodes: %w", err)
	}
	result, err := collectNodes(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: find nodes: %w", err)
	}
	return result, nil
}

func collectNodes(rows pgx.Rows) ([]graph.Node, error) {
	nodes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (graph.Node, error) {
		var (
			n            graph.Node
			propsJSON    []byte
			overlaysJSON []byte
			embedding    *pgvector.Vector
			invalidated  *time.Time
			expired      *time.Time
		)
		if err := row.Scan(
			&n.ID, &n.Scope, &n.Label, &propsJSON, &n.LogWeight, &overlaysJSON, &embedding,
			&n.ValidAt, &invalidated, &n.CreatedAt, &expired,
		); err != nil {
			return graph.Node{}, err
		}
		if err := unmarshalInto(propsJSON, &n.Properties); err != nil {
			return graph.Node{}, fmt.Errorf("unmarshal properties: %w", err)
		}
		if err := unmarshalOverlays(overlaysJSON, &n.LogWeightOverlays); err != nil {
			return graph.Node{}, fmt.Errorf("unmarshal log weight overlays: %w", err)
		}
		if embedding != nil {
			n.Embedding = embedding.Slice()
		}
		if invalidated != nil {
			n.InvalidatedAt = *invalidated
		}
		if expired != nil {
			n.ExpiredAt = *expired
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	if nodes == nil {
		nodes = []graph.Node{}
	}
	return nodes, nil
}

func nodesMatch(written, stored graph.Node) bool {
	if written.Label != stored.Label || written.LogWeight != stored.LogWeight {
		return false
	}
	wProps, _ := json.Marshal(written.Properties)
	sProps, _ := json.Marshal(stored.Properties)
	return string(wProps) == string(sProps)
}
