package membership_test

import (
	"context"
	"testing"

	"github.com/hearthgraph/substrate/pkg/graph"
	"github.com/hearthgraph/substrate/pkg/graph/mock"

	"github.com/hearthgraph/substrate/internal/membership"
)

func TestFlushMemberships_FoldsActivationIntoEMA(t *testing.T) {
	store := mock.New()
	s := membership.New(store, store, 0.5, 10, nil)
	ctx := context.Background()

	err := s.FlushMemberships(ctx, []membership.Activation{
		{NodeID: "n1", EntityID: "entity-a", Scope: "citizen_alice"},
	})
	if err != nil {
		t.Fatalf("FlushMemberships: %v", err)
	}

	top, err := store.TopMemberships(ctx, "citizen_alice", "n1", 10)
	if err != nil {
		t.Fatalf("TopMemberships: %v", err)
	}
	if len(top) != 1 || top[0].ActivationEMA != 0.5 {
		t.Errorf("want single membership at ema 0.5, got %v", top)
	}
}

func TestRebuildCache_PreservesOtherPropertiesAndWritesActivations(t *testing.T) {
	store := mock.New()
	ctx := context.Background()
	store.UpsertNode(ctx, graph.Node{
		ID: "n1", Label: "Realization", Scope: "citizen_alice",
		Properties: map[string]any{"insight": "original"},
	})

	s := membership.New(store, store, 0.5, 10, nil)
	if err := s.FlushMemberships(ctx, []membership.Activation{
		{NodeID: "n1", EntityID: "entity-a", Scope: "citizen_alice"},
	}); err != nil {
		t.Fatalf("FlushMemberships: %v", err)
	}
	if err := s.RebuildCache(ctx, "citizen_alice", "n1"); err != nil {
		t.Fatalf("RebuildCache: %v", err)
	}

	got, err := store.GetNode(ctx, "citizen_alice", "n1")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.Properties["insight"] != "original" {
		t.Errorf("expected existing properties preserved, got %v", got.Properties)
	}
	activations, ok := got.Properties["entity_activations"].(map[string]float64)
	if !ok || activations["entity-a"] != 0.5 {
		t.Errorf("expected entity_activations cache, got %v", got.Properties["entity_activations"])
	}
	if got.Properties["entity_activations_updated_at"] == nil {
		t.Error("expected entity_activations_updated_at to be set")
	}
}

func TestFlushMemberships_EmptyIsNoop(t *testing.T) {
	store := mock.New()
	s := membership.New(store, store, 0.5, 10, nil)
	if err := s.FlushMemberships(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}
}
