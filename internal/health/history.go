package health

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/hearthgraph/substrate/pkg/graph"
)

// sampleLabel is the reserved node label under which health snapshots are
// persisted, keeping the "one graph backend" property: history lives as
// ordinary timestamped rows in the same store as everything else rather
// than a dedicated time-series database.
const sampleLabel = "HealthSample"

// minSamplesForBands is the minimum history length below which percentile
// bands cannot be trusted; judgement falls back to a permissive default.
const minSamplesForBands = 10

// Bands holds the q10/q20/q80/q90 percentile boundaries a metric value is
// judged against.
type Bands struct {
	Q10, Q20, Q80, Q90 float64
}

// defaultBands is the fallback used when history is too short to compute
// real percentiles. Under it a normal metric reads GREEN within [0, 1] and
// RED outside it; an inverted metric reads GREEN at or below 0, AMBER in
// (0, 1] and RED above 1.
var defaultBands = Bands{Q10: 0, Q20: 0, Q80: 1, Q90: 1}

// Sample is one persisted health snapshot's scalar metric values, keyed by
// metric name (e.g. "density", "overlap_ratio", "orphan_ratio").
type Sample struct {
	Timestamp time.Time
	Values    map[string]float64
}

// History loads and appends health samples for a scope, persisted as
// HealthSample-labelled nodes through the ordinary graph store.
type History struct {
	store     graph.Store
	retention time.Duration
}

// NewHistory creates a History backed by store, retaining samples for
// retention (typically 30 days).
func NewHistory(store graph.Store, retention time.Duration) *History {
	return &History{store: store, retention: retention}
}

// Load returns every sample for scope still within the retention window,
// ordered oldest first.
func (h *History) Load(ctx context.Context, scope string) ([]Sample, error) {
	nodes, err := h.store.FindNodes(ctx, graph.NodeFilter{Scope: scope, Label: sampleLabel})
	if err != nil {
		return nil, fmt.Errorf("health: load history: %w", err)
	}

	cutoff := time.Now().Add(-h.retention)
	samples := make([]Sample, 0, len(nodes))
	for _, n := range nodes {
		ts, _ := n.Properties["timestamp"].(time.Time)
		if ts.IsZero() || ts.Before(cutoff) {
			continue
		}
		values := make(map[string]float64)
		for k, v := range n.Properties {
			if k == "timestamp" {
				continue
			}
			if f, ok := asFloat(v); ok {
				values[k] = f
			}
		}
		samples = append(samples, Sample{Timestamp: ts, Values: values})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })
	return samples, nil
}

// Append persists one new sample for scope.
func (h *History) Append(ctx context.Context, scope string, sample Sample) error {
	props := make(map[string]any, len(sample.Values)+1)
	for k, v := range sample.Values {
		props[k] = v
	}
	props["timestamp"] = sample.Timestamp

	node := graph.Node{
		ID:         fmt.Sprintf("healthsample-%s-%d", scope, sample.Timestamp.UnixNano()),
		Scope:      scope,
		Label:      sampleLabel,
		Properties: props,
		ValidAt:    sample.Timestamp,
		CreatedAt:  sample.Timestamp,
	}
	_, err := h.store.UpsertNode(ctx, node)
	if err != nil {
		return fmt.Errorf("health: append history: %w", err)
	}
	return nil
}

// Percentiles computes the q10/q20/q80/q90 bands for metric across
// samples. Returns defaultBands when fewer than minSamplesForBands values
// are present.
func Percentiles(samples []Sample, metric string) Bands {
	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		if v, ok := s.Values[metric]; ok {
			values = append(values, v)
		}
	}
	if len(values) < minSamplesForBands {
		return defaultBands
	}
	sort.Float64s(values)
	return Bands{
		Q10: stat.Quantile(0.10, stat.Empirical, values, nil),
		Q20: stat.Quantile(0.20, stat.Empirical, values, nil),
		Q80: stat.Quantile(0.80, stat.Empirical, values, nil),
		Q90: stat.Quantile(0.90, stat.Empirical, values, nil),
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
