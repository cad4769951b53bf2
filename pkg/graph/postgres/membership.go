package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hearthgraph/substrate/pkg/graph"
)

// FlushMemberships folds each update into its (scope, node_id, entity_id)
// row via a single batched upsert. The EMA is computed on the database side
// so a burst of updates to the same pair within one flush still composes
// correctly without a read-modify-write round trip per row.
func (s *Store) FlushMemberships(ctx context.Context, updates []graph.MembershipUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const q = `
		INSERT INTO memberships (node_id, entity_id, scope, activation_ema, updated_at)
		VALUES ($1, $2, $3, $4::double precision * $5::double precision, now())
		ON CONFLICT (scope, node_id, entity_id) DO UPDATE SET
		    activation_ema = $4 * $5 + (1 - $4) * memberships.activation_ema,
		    updated_at     = now()`

	for _, u := range updates {
		batch.Queue(q, u.NodeID, u.EntityID, u.Scope, u.Alpha, u.Sample)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range updates {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: flush memberships: %w", err)
		}
	}
	return nil
}

// TopMemberships returns the topK memberships of nodeID in scope ordered by
// activation_ema descending.
func (s *Store) TopMemberships(ctx context.Context, scope, nodeID string, topK int) ([]graph.Membership, error) {
	const q = `
		SELECT node_id, entity_id, scope, activation_ema, updated_at
		FROM   memberships
		WHERE  scope = $1 AND node_id = $2
		ORDER  BY activation_ema DESC
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, scope, nodeID, topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: top memberships: %w", err)
	}
	memberships, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (graph.Membership, error) {
		var m graph.Membership
		err := row.Scan(&m.NodeID, &m.EntityID, &m.Scope, &m.ActivationEMA, &m.UpdatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: top memberships: %w", err)
	}
	if memberships == nil {
		memberships = []graph.Membership{}
	}
	return memberships, nil
}

// UpsertCoactivations folds each update into its pair's both_ema and
// either_ema. Callers must have already ordered EntityA < EntityB; the
// table's CHECK constraint rejects rows that violate this.
func (s *Store) UpsertCoactivations(ctx context.Context, updates []graph.CoactivationUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const q = `
		INSERT INTO coactivations (entity_a, entity_b, scope, both_ema, either_ema, updated_at)
		VALUES ($1, $2, $3, 1, 1, now())
		ON CONFLICT (scope, entity_a, entity_b) DO UPDATE SET
		    both_ema   = $4 * 1 + (1 - $4) * coactivations.both_ema,
		    either_ema = $4 * 1 + (1 - $4) * coactivations.either_ema,
		    updated_at = now()`

	for _, u := range updates {
		batch.Queue(q, u.EntityA, u.EntityB, u.Scope, u.Alpha)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range updates {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert coactivations: %w", err)
		}
	}
	return nil
}

// TopCoactivations returns the topN coactivation pairs in scope ordered by
// both_ema descending — the backbone the health monitor reports as the
// graph's "highway" count/weight.
func (s *Store) TopCoactivations(ctx context.Context, scope string, topN int) ([]graph.Coactivation, error) {
	const q = `
		SELECT entity_a, entity_b, scope, both_ema, either_ema, updated_at
		FROM   coactivations
		WHERE  scope = $1
		ORDER  BY both_ema DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, scope, topN)
	if err != nil {
		return nil, fmt.Errorf("postgres: top coactivations: %w", err)
	}
	coactivations, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (graph.Coactivation, error) {
		var c graph.Coactivation
		err := row.Scan(&c.EntityA, &c.EntityB, &c.Scope, &c.BothEMA, &c.EitherEMA, &c.UpdatedAt)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: top coactivations: %w", err)
	}
	if coactivations == nil {
		coactivations = []graph.Coactivation{}
	}
	return coactivations, nil
}

// EntityMemberCounts returns the number of member nodes per sub-entity in
// scope, for every sub-entity with at least one MEMBER_OF row.
func (s *Store) EntityMemberCounts(ctx context.Context, scope string) (map[string]int, error) {
	const q = `
		SELECT entity_id, COUNT(*)
		FROM   memberships
		WHERE  scope = $1
		GROUP  BY entity_id`

	rows, err := s.pool.Query(ctx, q, scope)
	if err != nil {
		return nil, fmt.Errorf("postgres: entity member counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var entityID string
		var count int
		if err := rows.Scan(&entityID, &count); err != nil {
			return nil, fmt.Errorf("postgres: entity member counts: %w", err)
		}
		counts[entityID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: entity member counts: %w", err)
	}
	return counts, nil
}

// EntityMembers returns the node IDs currently belonging to entityID in
// scope.
func (s *Store) EntityMembers(ctx context.Context, scope, entityID string) ([]string, error) {
	const q = `
		SELECT node_id
		FROM   memberships
		WHERE  scope = $1 AND entity_id = $2`

	rows, err := s.pool.Query(ctx, q, scope, entityID)
	if err != nil {
		return nil, fmt.Errorf("postgres: entity members: %w", err)
	}
	members, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var nodeID string
		err := row.Scan(&nodeID)
		return nodeID, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: entity members: %w", err)
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}

var _ graph.MembershipBackend = (*Store)(nil)
