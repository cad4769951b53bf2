package weightlearn

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/hearthgraph/substrate/internal/telemetry"
	"github.com/hearthgraph/substrate/pkg/graph"
)

// Config tunes the dual-view update. Zero-value Config is invalid; use
// [DefaultConfig].
type Config struct {
	EMAAlpha     float64       // step used for ema_trace_seats / ema_formation_quality.
	AlphaGlobal  float64       // global log_weight EMA rate.
	AlphaLocal   float64       // per-entity overlay EMA rate.
	OverlayCap   float64       // bound on |log_weight_overlays[e]|.
	AdaptiveTau  time.Duration // time constant for the adaptive learning rate.
}

// DefaultConfig matches the values named in the weight-learning procedure.
var DefaultConfig = Config{
	EMAAlpha:    0.1,
	AlphaGlobal: 0.2,
	AlphaLocal:  0.8,
	OverlayCap:  4.0,
	AdaptiveTau: 24 * time.Hour,
}

// Learner implements the dual-view weight update procedure.
type Learner struct {
	store graph.Store
	cfg   Config
	sink  telemetry.Sink
	now   func() time.Time
}

// New creates a Learner. sink may be nil (defaults to telemetry.NoopSink).
func New(store graph.Store, cfg Config, sink telemetry.Sink) *Learner {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	return &Learner{store: store, cfg: cfg, sink: sink, now: time.Now}
}

// Learn runs the full per-TRACE procedure over items: cohort grouping, EMA
// updates, rank z-scores, adaptive learning rate, dual-view update, and
// batched per-cohort persistence. entityContext is the active sub-entity
// list from EntityContextResolver.
//
// A single item's persistence failure is logged and the loop continues;
// cohort statistics are computed once per TRACE, not per item.
func (l *Learner) Learn(ctx context.Context, items []Item, entityContext []string) []CohortSummary {
	cohorts := groupByCohort(items)
	summaries := make([]CohortSummary, 0, len(cohorts))

	for key, indices := range cohorts {
		updates := l.updateCohort(items, indices, entityContext)
		summary := summarize(key, updates, entityContext)
		summaries = append(summaries, summary)
		l.sink.Emit(telemetry.Event{
			Name: "weights.updated.trace",
			Fields: map[string]any{
				"label":           summary.Label,
				"scope":           summary.Scope,
				"n":               summary.N,
				"d_mu":            summary.DeltaGlobalMu,
				"d_sigma":         summary.DeltaGlobalSigma,
				"entity_context":  summary.EntityContext,
			},
		})
		l.persist(ctx, items, indices, updates)
	}

	return summaries
}

// updateCohort computes EMAs, z-scores, and dual-view deltas for one
// cohort's items (given by their indices into the full items slice).
func (l *Learner) updateCohort(items []Item, indices []int, entityContext []string) []Update {
	n := len(indices)
	emaSeats := make([]float64, n)
	emaQuality := make([]float64, n)
	hasQuality := make([]bool, n)

	for i, idx := range indices {
		it := items[idx]
		emaSeats[i] = l.cfg.EMAAlpha*float64(it.Seats) + (1-l.cfg.EMAAlpha)*it.EmaTraceSeats
		if it.HasFormation {
			emaQuality[i] = l.cfg.EMAAlpha*it.FormationQuality + (1-l.cfg.EMAAlpha)*it.EmaFormationQuality
			hasQuality[i] = true
		} else {
			emaQuality[i] = it.EmaFormationQuality
		}
	}

	zRein := zScoresFor(emaSeats)
	zForm := zScoresFor(emaQuality)

	updates := make([]Update, n)
	for i, idx := range indices {
		it := items[idx]
		zTotal := zRein[i]
		if hasQuality[i] {
			zTotal += zForm[i]
		}

		eta := l.adaptiveRate(it.LastUpdateTimestamp)
		deltaGlobal := l.cfg.AlphaGlobal * eta * zTotal
		newLogWeight := it.LogWeight + deltaGlobal

		newOverlays := make(map[string]float64, len(it.LogWeightOverlays)+len(entityContext))
		for k, v := range it.LogWeightOverlays {
			newOverlays[k] = v
		}
		overlayDeltas := make(map[string]float64, len(entityContext))
		for _, entity := range entityContext {
			we := it.MembershipWeights[entity]
			delta := l.cfg.AlphaLocal * eta * zTotal * we
			overlayDeltas[entity] = delta
			updated := clamp(newOverlays[entity]+delta, -l.cfg.OverlayCap, l.cfg.OverlayCap)
			newOverlays[entity] = updated
		}

		updates[i] = Update{
			NodeID:        it.NodeID,
			Scope:         it.Scope,
			DeltaGlobal:   deltaGlobal,
			OverlayDeltas: overlayDeltas,
			NewLogWeight:  newLogWeight,
			NewOverlays:   newOverlays,
			NewEmaSeats:   emaSeats[i],
			NewEmaQuality: emaQuality[i],
		}
	}
	return updates
}

// zScoresFor returns rank-based z-scores for a cohort's values, or the raw
// values themselves when the cohort is too small for a meaningful rank
// transform.
func zScoresFor(values []float64) []float64 {
	if len(values) < minCohortSize {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	return vanDerWaerdenScores(values)
}

// adaptiveRate computes eta = 1 - exp(-dt/tau), clamped to [0.01, 1.0]. A
// zero last-update timestamp (never updated) uses eta = 1.0.
func (l *Learner) adaptiveRate(last time.Time) float64 {
	if last.IsZero() {
		return 1.0
	}
	dt := l.now().Sub(last).Seconds()
	if dt < 0 {
		dt = 0
	}
	eta := 1 - math.Exp(-dt/l.cfg.AdaptiveTau.Seconds())
	return clamp(eta, 0.01, 1.0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// persist batches the cohort's updates into one BatchUpsertNodes call (a
// cohort shares one label and one scope). Each row is read back first so the weight-only update does not
// clobber the node's other properties (a true partial-column UNWIND update
// is a backend-specific optimization; reading first keeps this portable
// across [graph.Store] implementations). A failure (or unconfirmed write)
// is logged; the loop continues.
func (l *Learner) persist(ctx context.Context, items []Item, indices []int, updates []Update) {
	if len(updates) == 0 {
		return
	}

	batch := make([]graph.BatchNodeUpsert, 0, len(updates))
	for i, u := range updates {
		it := items[indices[i]]
		node, err := l.store.GetNode(ctx, it.Scope, it.NodeID)
		if err != nil {
			node = graph.Node{ID: it.NodeID, Label: it.Label, Scope: it.Scope}
		}
		node.LogWeight = u.NewLogWeight
		node.LogWeightOverlays = u.NewOverlays
		if node.Properties == nil {
			node.Properties = make(map[string]any)
		}
		node.Properties["ema_trace_seats"] = u.NewEmaSeats
		node.Properties["ema_formation_quality"] = u.NewEmaQuality
		node.Properties["last_update_timestamp"] = l.now().UTC()
		batch = append(batch, graph.BatchNodeUpsert{Node: node})
	}

	confirmed, err := l.store.BatchUpsertNodes(ctx, batch)
	if err != nil {
		slog.Warn("weightlearn: batch persist failed", "scope", updates[0].Scope, "n", len(batch), "err", err)
		return
	}
	for i := range updates {
		if i < len(confirmed) {
			updates[i].Confirmed = confirmed[i]
		}
		if !updates[i].Confirmed {
			slog.Warn("weightlearn: item write not confirmed", "node_id", updates[i].NodeID)
		}
	}
}

func summarize(key cohortKey, updates []Update, entityContext []string) CohortSummary {
	n := len(updates)
	var mu float64
	for _, u := range updates {
		mu += u.DeltaGlobal
	}
	if n > 0 {
		mu /= float64(n)
	}
	var variance float64
	for _, u := range updates {
		d := u.DeltaGlobal - mu
		variance += d * d
	}
	if n > 0 {
		variance /= float64(n)
	}
	return CohortSummary{
		Label:            key.Label,
		Scope:            key.Scope,
		N:                n,
		DeltaGlobalMu:    mu,
		DeltaGlobalSigma: math.Sqrt(variance),
		Updates:          updates,
		EntityContext:    entityContext,
	}
}
