package weightlearn_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/hearthgraph/substrate/pkg/graph"
	"github.com/hearthgraph/substrate/pkg/graph/mock"

	"github.com/hearthgraph/substrate/internal/weightlearn"
)

func TestLearn_SingleItemUsesEtaOne(t *testing.T) {
	store := mock.New()
	l := weightlearn.New(store, weightlearn.DefaultConfig, nil)

	items := []weightlearn.Item{
		{NodeID: "n1", Label: "Realization", Scope: "citizen_alice", Seats: 3},
	}
	summaries := l.Learn(context.Background(), items, nil)
	if len(summaries) != 1 {
		t.Fatalf("want 1 cohort summary, got %d", len(summaries))
	}
	if summaries[0].N != 1 {
		t.Errorf("N: want 1, got %d", summaries[0].N)
	}
	// Never updated, so eta = 1: delta = 0.2 (alpha_global) * 1 * 0.3 (EMA of 3 seats).
	if d := summaries[0].Updates[0].DeltaGlobal; math.Abs(d-0.06) > 1e-9 {
		t.Errorf("DeltaGlobal: want 0.06, got %v", d)
	}
}

func TestLearn_PersistsLogWeightAndPreservesProperties(t *testing.T) {
	store := mock.New()
	ctx := context.Background()
	store.UpsertNode(ctx, graph.Node{
		ID: "n1", Label: "Realization", Scope: "citizen_alice",
		Properties: map[string]any{"name": "original"},
	})

	l := weightlearn.New(store, weightlearn.DefaultConfig, nil)
	items := []weightlearn.Item{
		{NodeID: "n1", Label: "Realization", Scope: "citizen_alice", Seats: 4},
	}
	l.Learn(ctx, items, nil)

	got, err := store.GetNode(ctx, "citizen_alice", "n1")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.Properties["name"] != "original" {
		t.Errorf("expected existing properties preserved, got %v", got.Properties)
	}
	if got.LogWeight == 0 {
		t.Error("expected log_weight to be updated")
	}
}

func TestLearn_OverlayClampedToConfiguredCap(t *testing.T) {
	store := mock.New()
	ctx := context.Background()
	cfg := weightlearn.DefaultConfig
	cfg.OverlayCap = 1.0
	cfg.AlphaLocal = 10.0 // force an overshoot
	l := weightlearn.New(store, cfg, nil)

	items := []weightlearn.Item{
		{
			NodeID: "n1", Label: "Realization", Scope: "citizen_alice", Seats: 4,
			MembershipWeights: map[string]float64{"entity-a": 1.0},
		},
	}
	l.Learn(ctx, items, []string{"entity-a"})

	got, _ := store.GetNode(ctx, "citizen_alice", "n1")
	if v := got.LogWeightOverlays["entity-a"]; v > cfg.OverlayCap || v < -cfg.OverlayCap {
		t.Errorf("overlay %v exceeds cap %v", v, cfg.OverlayCap)
	}
}

func TestLearn_SmallCohortFallsBackToRawEMA(t *testing.T) {
	store := mock.New()
	l := weightlearn.New(store, weightlearn.DefaultConfig, nil)

	// Only 2 items — below minCohortSize(3) — so z-scores are the raw EMAs.
	items := []weightlearn.Item{
		{NodeID: "n1", Label: "Concept", Scope: "org_substrate", Seats: 2},
		{NodeID: "n2", Label: "Concept", Scope: "org_substrate", Seats: -1},
	}
	summaries := l.Learn(context.Background(), items, nil)
	if len(summaries) != 1 || summaries[0].N != 2 {
		t.Fatalf("want 1 cohort of 2, got %v", summaries)
	}
	// Raw EMAs 0.2 and -0.1 are used as z, so delta = 0.2 * 1 * z.
	ups := summaries[0].Updates
	if math.Abs(ups[0].DeltaGlobal-0.04) > 1e-9 || math.Abs(ups[1].DeltaGlobal+0.02) > 1e-9 {
		t.Errorf("DeltaGlobal: want 0.04 and -0.02, got %v and %v", ups[0].DeltaGlobal, ups[1].DeltaGlobal)
	}
}

func TestLearn_NeverUpdatedItemUsesFullLearningRate(t *testing.T) {
	store := mock.New()
	l := weightlearn.New(store, weightlearn.DefaultConfig, nil)

	items := []weightlearn.Item{
		{NodeID: "n1", Label: "Realization", Scope: "citizen_alice", Seats: 4, LastUpdateTimestamp: time.Time{}},
	}
	summaries := l.Learn(context.Background(), items, nil)
	if summaries[0].Updates[0].DeltaGlobal == 0 {
		t.Error("expected a nonzero delta for a never-updated item with positive seats")
	}
}

func TestLearn_MultipleCohortsEmitSeparateSummaries(t *testing.T) {
	store := mock.New()
	l := weightlearn.New(store, weightlearn.DefaultConfig, nil)

	items := []weightlearn.Item{
		{NodeID: "n1", Label: "Realization", Scope: "citizen_alice", Seats: 1},
		{NodeID: "n2", Label: "Concept", Scope: "org_substrate", Seats: 1},
	}
	summaries := l.Learn(context.Background(), items, nil)
	if len(summaries) != 2 {
		t.Fatalf("want 2 cohorts, got %d", len(summaries))
	}
}
