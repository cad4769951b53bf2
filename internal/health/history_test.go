package health_test

import (
	"context"
	"testing"
	"time"

	"github.com/hearthgraph/substrate/internal/health"
	"github.com/hearthgraph/substrate/pkg/graph/mock"
)

func TestHistory_AppendAndLoad(t *testing.T) {
	store := mock.New()
	h := health.NewHistory(store, 30*24*time.Hour)
	ctx := context.Background()

	sample := health.Sample{
		Timestamp: time.Now().UTC(),
		Values:    map[string]float64{"density": 0.4, "orphan_ratio": 0.1},
	}
	if err := h.Append(ctx, "citizen_alice", sample); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := h.Load(ctx, "citizen_alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 sample, got %d", len(got))
	}
	if got[0].Values["density"] != 0.4 {
		t.Errorf("density = %v, want 0.4", got[0].Values["density"])
	}
}

func TestHistory_Load_ExcludesSamplesOutsideRetention(t *testing.T) {
	store := mock.New()
	h := health.NewHistory(store, time.Hour)
	ctx := context.Background()

	stale := health.Sample{Timestamp: time.Now().Add(-48 * time.Hour), Values: map[string]float64{"density": 0.9}}
	fresh := health.Sample{Timestamp: time.Now(), Values: map[string]float64{"density": 0.1}}
	if err := h.Append(ctx, "citizen_alice", stale); err != nil {
		t.Fatalf("Append stale: %v", err)
	}
	if err := h.Append(ctx, "citizen_alice", fresh); err != nil {
		t.Fatalf("Append fresh: %v", err)
	}

	got, err := h.Load(ctx, "citizen_alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 sample within retention, got %d", len(got))
	}
	if got[0].Values["density"] != 0.1 {
		t.Errorf("surviving sample density = %v, want 0.1", got[0].Values["density"])
	}
}

func TestHistory_Load_ScopesAreIsolated(t *testing.T) {
	store := mock.New()
	h := health.NewHistory(store, 30*24*time.Hour)
	ctx := context.Background()

	if err := h.Append(ctx, "citizen_alice", health.Sample{Timestamp: time.Now(), Values: map[string]float64{"density": 0.5}}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := h.Load(ctx, "citizen_bob")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want 0 samples for unrelated scope, got %d", len(got))
	}
}

func TestPercentiles_TooFewSamplesReturnsDefaultBands(t *testing.T) {
	samples := []health.Sample{
		{Values: map[string]float64{"density": 0.5}},
		{Values: map[string]float64{"density": 0.6}},
	}
	bands := health.Percentiles(samples, "density")
	want := health.Bands{Q10: 0, Q20: 0, Q80: 1, Q90: 1}
	if bands != want {
		t.Errorf("Percentiles with too few samples = %+v, want %+v", bands, want)
	}
}

func TestPercentiles_ComputesQuantilesOverWindow(t *testing.T) {
	var samples []health.Sample
	for i := 1; i <= 20; i++ {
		samples = append(samples, health.Sample{Values: map[string]float64{"density": float64(i)}})
	}
	bands := health.Percentiles(samples, "density")
	if bands.Q10 >= bands.Q20 || bands.Q20 >= bands.Q80 || bands.Q80 >= bands.Q90 {
		t.Errorf("bands are not monotone: %+v", bands)
	}
	if bands.Q10 < 1 || bands.Q90 > 20 {
		t.Errorf("bands out of sample range: %+v", bands)
	}
}
