// Package postgres provides a PostgreSQL + pgvector implementation of
// [graph.Store]. A single physical database backs every scope (physical
// graph name); scope is stored as an ordinary column and partitions rows
// logically rather than via separate schemas or tables.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 768, 2)
//	if err != nil { … }
//	defer store.Close()
//
//	confirmed, err := store.UpsertNode(ctx, node)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlNodes = `
CREATE TABLE IF NOT EXISTS nodes (
    id                  TEXT         NOT NULL,
    scope               TEXT         NOT NULL,
    label               TEXT         NOT NULL,
    properties          JSONB        NOT NULL DEFAULT '{}',
    log_weight          DOUBLE PRECISION NOT NULL DEFAULT 0,
    log_weight_overlays JSONB        NOT NULL DEFAULT '{}',
    valid_at            TIMESTAMPTZ  NOT NULL DEFAULT now(),
    invalidated_at      TIMESTAMPTZ,
    created_at          TIMESTAMPTZ  NOT NULL DEFAULT now(),
    expired_at          TIMESTAMPTZ,
    PRIMARY KEY (scope, id)
);

CREATE INDEX IF NOT EXISTS idx_nodes_scope_label ON nodes (scope, label);
CREATE INDEX IF NOT EXISTS idx_nodes_properties ON nodes USING GIN (properties);
`

const ddlLinks = `
CREATE TABLE IF NOT EXISTS links (
    source_id           TEXT         NOT NULL,
    target_id           TEXT         NOT NULL,
    type                TEXT         NOT NULL,
    scope                TEXT         NOT NULL,
    meta                JSONB        NOT NULL DEFAULT '{}',
    log_weight          DOUBLE PRECISION NOT NULL DEFAULT 0,
    log_weight_overlays JSONB        NOT NULL DEFAULT '{}',
    valid_at            TIMESTAMPTZ  NOT NULL DEFAULT now(),
    invalidated_at      TIMESTAMPTZ,
    created_at          TIMESTAMPTZ  NOT NULL DEFAULT now(),
    expired_at          TIMESTAMPTZ,
    PRIMARY KEY (scope, source_id, target_id, type)
);

CREATE INDEX IF NOT EXISTS idx_links_scope_source ON links (scope, source_id);
CREATE INDEX IF NOT EXISTS idx_links_scope_target ON links (scope, target_id);
CREATE INDEX IF NOT EXISTS idx_links_type ON links (type);
`

const ddlMembership = `
CREATE TABLE IF NOT EXISTS memberships (
    node_id        TEXT         NOT NULL,
    entity_id      TEXT         NOT NULL,
    scope          TEXT         NOT NULL,
    activation_ema DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (scope, node_id, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_memberships_entity ON memberships (scope, entity_id, activation_ema DESC);

CREATE TABLE IF NOT EXISTS coactivations (
    entity_a    TEXT         NOT NULL,
    entity_b    TEXT         NOT NULL,
    scope       TEXT         NOT NULL,
    both_ema    DOUBLE PRECISION NOT NULL DEFAULT 0,
    either_ema  DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (scope, entity_a, entity_b),
    CHECK (entity_a < entity_b)
);
`

// ddlVector returns the embedding column DDL with the configured dimension
// baked into the vector(N) column type, plus an HNSW index tuned for cosine
// distance lookups via the `<=>` operator.
func ddlVector(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

ALTER TABLE nodes ADD COLUMN IF NOT EXISTS embedding vector(%d);

CREATE INDEX IF NOT EXISTS idx_nodes_embedding
    ON nodes USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables, columns, and extensions
// exist. It is idempotent and safe to call on every application start.
//
// embeddingDimensions must match the dimension produced by the configured
// embedding provider. Changing it after the first migration requires a
// manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlNodes,
		ddlVector(embeddingDimensions),
		ddlLinks,
		ddlMembership,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
