package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hearthgraph/substrate/pkg/graph"
)

// UpsertLink writes l and confirms the write with a read-back, mirroring
// [Store.UpsertNode]'s retry contract.
func (s *Store) UpsertLink(ctx context.Context, l graph.Link) (bool, error) {
	attempts := s.writeRetries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := s.execUpsertLink(ctx, l); err != nil {
			lastErr = err
			continue
		}
		stored, err := s.getLink(ctx, l.Scope, l.SourceID, l.TargetID, l.Type)
		if err != nil {
			lastErr = err
			continue
		}
		if linksMatch(l, stored) {
			return true, nil
		}
	}
	if lastErr != nil {
		return false, fmt.Errorf("postgres: upsert link %s/%s->%s: %w", l.Scope, l.SourceID, l.TargetID, lastErr)
	}
	return false, nil
}

func (s *Store) execUpsertLink(ctx context.Context, l graph.Link) error {
	metaJSON, err := json.Marshal(l.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	overlaysJSON, err := json.Marshal(l.LogWeightOverlays)
	if err != nil {
		return fmt.Errorf("marshal log weight overlays: %w", err)
	}

	const q = `
		INSERT INTO links
		    (source_id, target_id, type, scope, meta, log_weight, log_weight_overlays,
		     valid_at, invalidated_at, created_at, expired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (scope, source_id, target_id, type) DO UPDATE SET
		    meta                = EXCLUDED.meta,
		    log_weight          = EXCLUDED.log_weight,
		    log_weight_overlays = EXCLUDED.log_weight_overlays,
		    valid_at            = EXCLUDED.valid_at,
		    invalidated_at      = EXCLUDED.invalidated_at,
		    expired_at          = EXCLUDED.expired_at`

	_, err = s.pool.Exec(ctx, q,
		l.SourceID, l.TargetID, l.Type, l.Scope, metaJSON, l.LogWeight, overlaysJSON,
		l.ValidAt, nullableTime(l.InvalidatedAt), l.CreatedAt, nullableTime(l.ExpiredAt),
	)
	if err != nil {
		return fmt.Errorf("exec upsert: %w", err)
	}
	return nil
}

// BatchUpsertLinks writes each link individually; see [Store.BatchUpsertNodes]
// for why batching does not collapse into a single statement here.
func (s *Store) BatchUpsertLinks(ctx context.Context, links []graph.BatchLinkUpsert) ([]bool, error) {
	confirmed := make([]bool, len(links))
	for i, l := range links {
		ok, err := s.UpsertLink(ctx, l.Link)
		if err != nil {
			return confirmed, err
		}
		confirmed[i] = ok
	}
	return confirmed, nil
}

func (s *Store) getLink(ctx context.Context, scope, sourceID, targetID, linkType string) (graph.Link, error) {
	const q = `
		SELECT source_id, target_id, type, scope, meta, log_weight, log_weight_overlays,
		       valid_at, invalidated_at, created_at, expired_at
		FROM   links
		WHERE  scope = $1 AND source_id = $2 AND target_id = $3 AND type = $4`

	rows, err := s.pool.Query(ctx, q, scope, sourceID, targetID, linkType)
	if err != nil {
		return graph.Link{}, err
	}
	links, err := collectLinks(rows)
	if err != nil {
		return graph.Link{}, err
	}
	if len(links) == 0 {
		return graph.Link{}, graph.ErrNotFound
	}
	return links[0], nil
}

func collectLinks(rows pgx.Rows) ([]graph.Link, error) {
	links, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (graph.Link, error) {
		var (
			l            graph.Link
			metaJSON     []byte
			overlaysJSON []byte
			invalidated  *time.Time
			expired      *time.Time
		)
		if err := row.Scan(
			&l.SourceID, &l.TargetID, &l.Type, &l.Scope, &metaJSON, &l.LogWeight, &overlaysJSON,
			&l.ValidAt, &invalidated, &l.CreatedAt, &expired,
		); err != nil {
			return graph.Link{}, err
		}
		if err := unmarshalInto(metaJSON, &l.Meta); err != nil {
			return graph.Link{}, fmt.Errorf("unmarshal meta: %w", err)
		}
		if err := unmarshalOverlays(overlaysJSON, &l.LogWeightOverlays); err != nil {
			return graph.Link{}, fmt.Errorf("unmarshal log weight overlays: %w", err)
		}
		if invalidated != nil {
			l.InvalidatedAt = *invalidated
		}
		if expired != nil {
			l.ExpiredAt = *expired
		}
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	if links == nil {
		links = []graph.Link{}
	}
	return links, nil
}

func linksMatch(written, stored graph.Link) bool {
	if written.Type != stored.Type || written.LogWeight != stored.LogWeight {
		return false
	}
	wMeta, _ := json.Marshal(written.Meta)
	sMeta, _ := json.Marshal(stored.Meta)
	return string(wMeta) == string(sMeta)
}

// Neighbors returns the nodes directly linked to (scope, nodeID), optionally
// restricted to linkTypes. direction "out" follows links where nodeID is the
// source, "in" follows links where it is the target, anything else follows
// either direction.
func (s *Store) Neighbors(ctx context.Context, scope, nodeID string, direction string, linkTypes []string) ([]graph.Node, error) {
	var dirClause string
	args := []any{scope, nodeID}
	switch direction {
	case "out":
		dirClause = "source_id = $2"
	case "in":
		dirClause = "target_id = $2"
	default:
		dirClause = "(source_id = $2 OR target_id = $2)"
	}

	q := fmt.Sprintf(`
		SELECT CASE WHEN source_id = $2 THEN target_id ELSE source_id END AS neighbor_id
		FROM   links
		WHERE  scope = $1 AND %s`, dirClause)

	if len(linkTypes) > 0 {
		args = append(args, linkTypes)
		q += fmt.Sprintf("\n  AND type = ANY($%d::text[])", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: neighbors: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: neighbors: scan: %w", err)
	}
	if len(ids) == 0 {
		return []graph.Node{}, nil
	}

	const nodeQ = `
		SELECT id, scope, label, properties, log_weight, log_weight_overlays, embedding,
		       valid_at, invalidated_at, created_at, expired_at
		FROM   nodes
		WHERE  scope = $1 AND id = ANY($2::text[])`
	nodeRows, err := s.pool.Query(ctx, nodeQ, scope, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: neighbors: fetch nodes: %w", err)
	}
	return collectNodes(nodeRows)
}
