package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/hearthgraph/substrate/pkg/graph"
	"github.com/hearthgraph/substrate/pkg/graph/postgres"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if SUBSTRATE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("SUBSTRATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SUBSTRATE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] with a clean schema.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool := mustPool(t, ctx, dsn)
	t.Cleanup(cleanPool.Close)
	dropSchema(t, ctx, cleanPool)

	store, err := postgres.NewStore(ctx, dsn, testEmbeddingDim, 2)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_ = pgxvec.RegisterTypes(ctx, conn)
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return pool
}

func dropSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS coactivations CASCADE",
		"DROP TABLE IF EXISTS memberships CASCADE",
		"DROP TABLE IF EXISTS links CASCADE",
		"DROP TABLE IF EXISTS nodes CASCADE",
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("dropSchema %q: %v", stmt, err)
		}
	}
}

func TestNode_UpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n := graph.Node{
		ID:         "node-1",
		Scope:      "scope-a",
		Label:      "episode",
		Properties: map[string]any{"summary": "arrived at the gate"},
		LogWeight:  0.5,
		Embedding:  []float32{1, 0, 0, 0},
		ValidAt:    time.Now(),
		CreatedAt:  time.Now(),
	}

	confirmed, err := store.UpsertNode(ctx, n)
	if err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}
	if !confirmed {
		t.Fatal("UpsertNode: expected confirmed=true")
	}

	got, err := store.GetNode(ctx, n.Scope, n.ID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.Label != n.Label || got.LogWeight != n.LogWeight {
		t.Errorf("GetNode: want label=%s weight=%v, got label=%s weight=%v", n.Label, n.LogWeight, got.Label, got.LogWeight)
	}
	if got.Properties["summary"] != "arrived at the gate" {
		t.Errorf("GetNode: properties mismatch: %v", got.Properties)
	}

	// Upsert again with a changed weight should replace, not duplicate.
	n.LogWeight = 1.2
	if _, err := store.UpsertNode(ctx, n); err != nil {
		t.Fatalf("UpsertNode update: %v", err)
	}
	updated, err := store.GetNode(ctx, n.Scope, n.ID)
	if err != nil {
		t.Fatalf("GetNode after update: %v", err)
	}
	if updated.LogWeight != 1.2 {
		t.Errorf("GetNode after update: want 1.2, got %v", updated.LogWeight)
	}

	// Missing node returns ErrNotFound.
	if _, err := store.GetNode(ctx, n.Scope, "does-not-exist"); err != graph.ErrNotFound {
		t.Errorf("GetNode missing: want ErrNotFound, got %v", err)
	}
}

func TestLink_UpsertAndNeighbors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := graph.Node{ID: "a", Scope: "s", Label: "episode", ValidAt: time.Now(), CreatedAt: time.Now()}
	b := graph.Node{ID: "b", Scope: "s", Label: "episode", ValidAt: time.Now(), CreatedAt: time.Now()}
	for _, n := range []graph.Node{a, b} {
		if _, err := store.UpsertNode(ctx, n); err != nil {
			t.Fatalf("UpsertNode %s: %v", n.ID, err)
		}
	}

	l := graph.Link{
		SourceID: a.ID, TargetID: b.ID, Type: "FOLLOWS", Scope: "s",
		Meta: map[string]any{"since": "yesterday"}, LogWeight: 0.3,
		ValidAt: time.Now(), CreatedAt: time.Now(),
	}
	confirmed, err := store.UpsertLink(ctx, l)
	if err != nil {
		t.Fatalf("UpsertLink: %v", err)
	}
	if !confirmed {
		t.Fatal("UpsertLink: expected confirmed=true")
	}

	out, err := store.Neighbors(ctx, "s", a.ID, "out", nil)
	if err != nil {
		t.Fatalf("Neighbors out: %v", err)
	}
	if len(out) != 1 || out[0].ID != b.ID {
		t.Errorf("Neighbors out: want [b], got %v", out)
	}

	in, err := store.Neighbors(ctx, "s", b.ID, "in", nil)
	if err != nil {
		t.Fatalf("Neighbors in: %v", err)
	}
	if len(in) != 1 || in[0].ID != a.ID {
		t.Errorf("Neighbors in: want [a], got %v", in)
	}

	filtered, err := store.Neighbors(ctx, "s", a.ID, "out", []string{"OTHER_TYPE"})
	if err != nil {
		t.Fatalf("Neighbors filtered: %v", err)
	}
	if len(filtered) != 0 {
		t.Errorf("Neighbors filtered: want 0, got %d", len(filtered))
	}
}

func TestVectorQueryNodes_OrdersByDistance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	nodes := []graph.Node{
		{ID: "n1", Scope: "s", Label: "episode", Embedding: []float32{1, 0, 0, 0}, ValidAt: time.Now(), CreatedAt: time.Now()},
		{ID: "n2", Scope: "s", Label: "episode", Embedding: []float32{0, 1, 0, 0}, ValidAt: time.Now(), CreatedAt: time.Now()},
		{ID: "n3", Scope: "s", Label: "episode", Embedding: []float32{0.9, 0.1, 0, 0}, ValidAt: time.Now(), CreatedAt: time.Now()},
	}
	for _, n := range nodes {
		if _, err := store.UpsertNode(ctx, n); err != nil {
			t.Fatalf("UpsertNode %s: %v", n.ID, err)
		}
	}

	matches, err := store.VectorQueryNodes(ctx, "s", "episode", []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("VectorQueryNodes: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("VectorQueryNodes: want 2, got %d", len(matches))
	}
	if matches[0].Node.ID != "n1" {
		t.Errorf("closest match: want n1, got %s", matches[0].Node.ID)
	}
	if matches[0].Distance > matches[1].Distance {
		t.Errorf("distances not ascending: %v, %v", matches[0].Distance, matches[1].Distance)
	}
}

func TestAggregateConnectivity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, n := range []graph.Node{
		{ID: "a", Scope: "s", Label: "episode", LogWeight: 1, ValidAt: time.Now(), CreatedAt: time.Now()},
		{ID: "b", Scope: "s", Label: "episode", LogWeight: 0, ValidAt: time.Now(), CreatedAt: time.Now()},
		{ID: "c", Scope: "s", Label: "episode", LogWeight: 2, ValidAt: time.Now(), CreatedAt: time.Now()},
	} {
		if _, err := store.UpsertNode(ctx, n); err != nil {
			t.Fatalf("UpsertNode %s: %v", n.ID, err)
		}
	}
	for _, l := range []graph.Link{
		{SourceID: "a", TargetID: "b", Type: "FOLLOWS", Scope: "s", ValidAt: time.Now(), CreatedAt: time.Now()},
		{SourceID: "a", TargetID: "c", Type: "FOLLOWS", Scope: "s", ValidAt: time.Now(), CreatedAt: time.Now()},
	} {
		if _, err := store.UpsertLink(ctx, l); err != nil {
			t.Fatalf("UpsertLink: %v", err)
		}
	}

	maxDegree, meanWeight, activeCount, err := store.AggregateConnectivity(ctx, "s")
	if err != nil {
		t.Fatalf("AggregateConnectivity: %v", err)
	}
	if maxDegree != 2 {
		t.Errorf("maxDegree: want 2, got %d", maxDegree)
	}
	if meanWeight <= 0 {
		t.Errorf("meanWeight: want >0, got %v", meanWeight)
	}
	if activeCount != 2 {
		t.Errorf("activeCount: want 2, got %d", activeCount)
	}
}
