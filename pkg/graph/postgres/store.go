package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/hearthgraph/substrate/pkg/graph"
)

var _ graph.Store = (*Store)(nil)

// Store is the PostgreSQL + pgvector backed implementation of [graph.Store].
// It holds a single [pgxpool.Pool] shared across scopes.
type Store struct {
	pool         *pgxpool.Pool
	writeRetries int
}

// NewStore creates a new Store, establishes a connection pool to dsn,
// registers pgvector types on every connection, and runs [Migrate] to
// ensure the schema exists.
//
// embeddingDimensions must match the output dimension of the configured
// embedding provider (e.g. 768 for nomic-embed-text, 1536 for OpenAI
// text-embedding-3-small). writeRetries bounds the read-back confirmation
// retries performed by UpsertNode/UpsertLink.
func NewStore(ctx context.Context, dsn string, embeddingDimensions, writeRetries int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	if writeRetries < 0 {
		writeRetries = 0
	}
	return &Store{pool: pool, writeRetries: writeRetries}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
