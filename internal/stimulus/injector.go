// Package stimulus converts free-form input text into energy deposited
// onto existing graph nodes: embed the text, find nearest nodes per label,
// compute a connectivity-aware budget, and distribute it within each
// match's headroom to its configured energy threshold.
package stimulus

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hearthgraph/substrate/internal/embedding"
	"github.com/hearthgraph/substrate/internal/telemetry"
	"github.com/hearthgraph/substrate/pkg/graph"
)

const maxStimulusChars = 500

// Config tunes stimulus injection.
type Config struct {
	// Labels are the node labels searched for candidate matches.
	Labels []string
	// BaseBudget is B0, the budget distributed when the graph is idle (ρ≈0).
	BaseBudget float64
	// MinSimilarity floors which matches are considered (default 0.5).
	MinSimilarity float64
	// MatchesPerLabel bounds how many candidates are fetched per label.
	MatchesPerLabel int
}

// DefaultMinSimilarity is used when Config.MinSimilarity is left at zero.
const DefaultMinSimilarity = 0.5

// InjectionMatch is one node matched against the stimulus embedding.
type InjectionMatch struct {
	NodeID        string
	Scope         string
	Similarity    float64
	CurrentEnergy float64
	Threshold     float64
	Headroom      float64
	Deposit       float64
}

// Injector runs the per-stimulus injection procedure.
type Injector struct {
	store graph.Store
	embed *embedding.Generator
	cfg   Config
	sink  telemetry.Sink
}

// New creates an Injector. sink may be nil.
func New(store graph.Store, embed *embedding.Generator, cfg Config, sink telemetry.Sink) *Injector {
	if cfg.MinSimilarity == 0 {
		cfg.MinSimilarity = DefaultMinSimilarity
	}
	if cfg.MatchesPerLabel == 0 {
		cfg.MatchesPerLabel = 20
	}
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	return &Injector{store: store, embed: embed, cfg: cfg, sink: sink}
}

// Inject runs one stimulus frame against scope. Zero matches is a normal
// outcome, not an error. A failing vector query on one label is logged and
// skipped rather than aborting the frame.
func (inj *Injector) Inject(ctx context.Context, scope, stimulusText string) ([]InjectionMatch, error) {
	start := time.Now()
	text := stimulusText
	if len(text) > maxStimulusChars {
		text = text[:maxStimulusChars]
	}
	queryVec := inj.embed.EmbedText(ctx, text)

	matches := inj.collectMatches(ctx, scope, queryVec)
	if len(matches) == 0 {
		inj.sink.Emit(telemetry.Event{Name: "stimulus.injected", Fields: map[string]any{
			"scope": scope, "matches": 0, "duration_ms": msSince(start),
		}})
		return matches, nil
	}

	maxDegree, meanWeight, activeCount, err := inj.store.AggregateConnectivity(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("stimulus: aggregate connectivity: %w", err)
	}
	rho := connectivityProxy(maxDegree, meanWeight, activeCount)
	budget := inj.cfg.BaseBudget * sigmoid(-rho)

	distribute(matches, budget)

	crossings := 0
	energies := make([]float64, 0, len(matches))
	var vitalitySum float64
	var vitalityCount int
	for i := range matches {
		m := &matches[i]
		newEnergy := m.CurrentEnergy + m.Deposit
		if m.CurrentEnergy < m.Threshold && newEnergy >= m.Threshold {
			crossings++
		}
		if err := inj.writeEnergy(ctx, m.Scope, m.NodeID, newEnergy); err != nil {
			slog.Warn("stimulus: energy write failed", "node_id", m.NodeID, "err", err)
			continue
		}
		energies = append(energies, newEnergy)
		if m.Threshold > 0 {
			vitalitySum += newEnergy / m.Threshold
			vitalityCount++
		}
	}

	meanVitality := 0.0
	if vitalityCount > 0 {
		meanVitality = vitalitySum / float64(vitalityCount)
	}

	inj.sink.Emit(telemetry.Event{
		Name: "stimulus.injected",
		Fields: map[string]any{
			"scope":          scope,
			"matches":        len(matches),
			"budget":         budget,
			"rho":            rho,
			"max_degree":     maxDegree,
			"mean_weight":    meanWeight,
			"active_count":   activeCount,
			"entropy":        activationEntropy(energies),
			"crossings":      crossings,
			"mean_vitality":  meanVitality,
			"mean_similarity": meanSimilarity(matches),
			"duration_ms":    msSince(start),
		},
	})
	return matches, nil
}

func meanSimilarity(matches []InjectionMatch) float64 {
	if len(matches) == 0 {
		return 0
	}
	var sum float64
	for _, m := range matches {
		sum += m.Similarity
	}
	return sum / float64(len(matches))
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

// collectMatches runs the vector query per configured label and filters by
// MinSimilarity, logging (not aborting) any per-label failure.
func (inj *Injector) collectMatches(ctx context.Context, scope string, queryVec []float32) []InjectionMatch {
	var out []InjectionMatch
	for _, label := range inj.cfg.Labels {
		results, err := inj.store.VectorQueryNodes(ctx, scope, label, queryVec, inj.cfg.MatchesPerLabel)
		if err != nil {
			slog.Warn("stimulus: vector query failed for label", "label", label, "err", err)
			continue
		}
		for _, r := range results {
			similarity := 1 - r.Distance
			if similarity < inj.cfg.MinSimilarity {
				continue
			}
			currentEnergy, _ := asFloat(r.Node.Properties["energy"])
			threshold, _ := asFloat(r.Node.Properties["threshold"])
			headroom := threshold - currentEnergy
			if headroom < 0 {
				headroom = 0
			}
			out = append(out, InjectionMatch{
				NodeID: r.Node.ID, Scope: r.Node.Scope, Similarity: similarity,
				CurrentEnergy: currentEnergy, Threshold: threshold, Headroom: headroom,
			})
		}
	}
	return out
}

// distribute allocates budget across matches proportionally to similarity,
// capping each match's deposit at its headroom. Leftover budget from capped
// matches is not redistributed — a single pass is sufficient for the
// bounded-injection contract.
func distribute(matches []InjectionMatch, budget float64) {
	var simSum float64
	for _, m := range matches {
		simSum += m.Similarity
	}
	if simSum == 0 {
		return
	}
	for i := range matches {
		share := budget * (matches[i].Similarity / simSum)
		if share > matches[i].Headroom {
			share = matches[i].Headroom
		}
		matches[i].Deposit = share
	}
}

func (inj *Injector) writeEnergy(ctx context.Context, scope, nodeID string, newEnergy float64) error {
	node, err := inj.store.GetNode(ctx, scope, nodeID)
	if err != nil {
		return err
	}
	if node.Properties == nil {
		node.Properties = make(map[string]any)
	}
	node.Properties["energy"] = newEnergy
	_, err = inj.store.UpsertNode(ctx, node)
	return err
}

// connectivityProxy computes ρ ≈ (max_degree · mean_link_weight) / active_node_count.
func connectivityProxy(maxDegree int, meanWeight float64, activeCount int) float64 {
	if activeCount == 0 {
		return 0
	}
	return (float64(maxDegree) * meanWeight) / float64(activeCount)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// activationEntropy computes the Shannon entropy of energies normalized
// into a probability distribution, 0 if the total is 0.
func activationEntropy(energies []float64) float64 {
	var total float64
	for _, e := range energies {
		if e > 0 {
			total += e
		}
	}
	if total == 0 {
		return 0
	}
	var h float64
	for _, e := range energies {
		if e <= 0 {
			continue
		}
		p := e / total
		h -= p * math.Log(p)
	}
	return h
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
