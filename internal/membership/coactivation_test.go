package membership_test

import (
	"context"
	"testing"

	"github.com/hearthgraph/substrate/pkg/graph/mock"

	"github.com/hearthgraph/substrate/internal/membership"
)

func TestObserve_TwoEntitiesCreatesOnePair(t *testing.T) {
	store := mock.New()
	u := membership.NewCoactivationUpdater(store, 0.5, nil)
	ctx := context.Background()

	if err := u.Observe(ctx, "citizen_alice", []string{"entity-b", "entity-a"}); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	err := u.Observe(ctx, "citizen_alice", []string{"entity-a", "entity-b"})
	if err != nil {
		t.Fatalf("Observe (second): %v", err)
	}

	// Both orderings of the pair land on the same row, entity-a first:
	// both_ema starts at 1 and stays 1 (0.5*1 + 0.5*1).
	pairs, err := store.TopCoactivations(ctx, "citizen_alice", 10)
	if err != nil {
		t.Fatalf("TopCoactivations: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("want 1 pair, got %d (%v)", len(pairs), pairs)
	}
	if pairs[0].EntityA != "entity-a" || pairs[0].EntityB != "entity-b" {
		t.Errorf("want pair (entity-a, entity-b), got (%s, %s)", pairs[0].EntityA, pairs[0].EntityB)
	}
	if pairs[0].BothEMA != 1 {
		t.Errorf("want both_ema 1, got %v", pairs[0].BothEMA)
	}
}

func TestObserve_SingleEntityIsNoop(t *testing.T) {
	store := mock.New()
	u := membership.NewCoactivationUpdater(store, 0.5, nil)
	if err := u.Observe(context.Background(), "citizen_alice", []string{"entity-a"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestObserve_ThreeEntitiesProducesThreePairs(t *testing.T) {
	store := &countingBackend{}
	u := membership.NewCoactivationUpdater(store, 0.5, nil)
	if err := u.Observe(context.Background(), "citizen_alice", []string{"c", "a", "b"}); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if store.pairCount != 3 {
		t.Errorf("want 3 pairs for 3 entities, got %d", store.pairCount)
	}
}

func TestObserve_DuplicateEntityIDsCollapsed(t *testing.T) {
	store := &countingBackend{}
	u := membership.NewCoactivationUpdater(store, 0.5, nil)
	if err := u.Observe(context.Background(), "citizen_alice", []string{"a", "a", "b"}); err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if store.pairCount != 1 {
		t.Errorf("want 1 pair after dedup, got %d", store.pairCount)
	}
}
