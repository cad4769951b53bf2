package health

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hearthgraph/substrate/internal/telemetry"
	"github.com/hearthgraph/substrate/pkg/graph"
)

// subEntityLabel is the node label sub-entities carry in the graph.
const subEntityLabel = "SubEntity"

// Status is a health judgement relative to a metric's rolling percentile
// band.
type Status string

const (
	StatusGreen Status = "GREEN"
	StatusAmber Status = "AMBER"
	StatusRed   Status = "RED"
)

// judge applies the monotone band test: a value inside [q20, q80] is
// GREEN, inside [q10, q90] but outside the inner band is AMBER, and
// outside [q10, q90] is RED. inverted flips the interpretation for
// metrics where a higher value is worse (e.g. orphan ratio).
func judge(value float64, b Bands, inverted bool) Status {
	if inverted {
		switch {
		case value <= b.Q20:
			return StatusGreen
		case value <= b.Q80:
			return StatusAmber
		default:
			return StatusRed
		}
	}
	switch {
	case value >= b.Q20 && value <= b.Q80:
		return StatusGreen
	case value >= b.Q10 && value <= b.Q90:
		return StatusAmber
	default:
		return StatusRed
	}
}

func worstOf(statuses ...Status) Status {
	worst := StatusGreen
	for _, s := range statuses {
		if s == StatusRed {
			return StatusRed
		}
		if s == StatusAmber {
			worst = StatusAmber
		}
	}
	return worst
}

// DensityMetric is the sub-entity-to-content-node ratio (E/N).
type DensityMetric struct {
	Entities, Nodes int
	Density         float64
	Status          Status
}

// OverlapMetric is the mean pairwise Jaccard overlap between sampled
// sub-entities' member sets, plus the raw membership/node totals (M/N).
type OverlapMetric struct {
	TotalMemberships, TotalNodes int
	OverlapRatio                 float64
	Status                       Status
}

// EntitySizeMetric is the sub-entity size distribution and its Gini
// coefficient.
type EntitySizeMetric struct {
	MedianSize       int
	MeanSize         float64
	GiniCoefficient  float64
	SizeDistribution map[string]int // q25, q50, q75, q90
	Status           Status
}

// OrphanMetric is the fraction of content nodes no sub-entity claims
// strongly enough.
type OrphanMetric struct {
	TotalNodes, OrphanCount int
	OrphanRatio             float64
	NewOrphansLast24h       int
	Status                  Status
}

// CoherenceMetric is the per-entity mean pairwise embedding similarity
// among members.
type CoherenceMetric struct {
	OverallMedianCoherence float64
	FlaggedEntities        []string
}

// HighwayMetric summarises the COACTIVATES_WITH backbone.
type HighwayMetric struct {
	TotalHighways          int
	TotalCrossings         float64
	MeanCrossingsPerHighway float64
	Backbone               []graph.Coactivation
	Status                 Status
}

// WMHealthMetric summarises working-memory selection behaviour observed
// over stimulus-injection frames since the previous tick.
type WMHealthMetric struct {
	WindowFrames  int
	MeanSelected  float64
	MedianSelected float64
	P90Selected   float64
	MeanVitality  float64
	FlipRate      float64
}

// ReconstructionMetric summarises stimulus-frame latency and match
// similarity since the previous tick.
type ReconstructionMetric struct {
	WindowFrames    int
	MeanLatencyMs   float64
	P50LatencyMs    float64
	P90LatencyMs    float64
	MeanSimilarity  float64
	P50Similarity   float64
	P10Similarity   float64
}

// LearningFluxMetric summarises weight-update throughput since the
// previous tick.
type LearningFluxMetric struct {
	WindowHours  float64
	WeightUpdates int
	Prunes        int
	UpdateRate    float64
	PruneRate     float64
}

// Snapshot is one full health-tick result for a single scope.
type Snapshot struct {
	Scope     string
	Timestamp time.Time

	Density        DensityMetric
	Overlap        OverlapMetric
	EntitySize     EntitySizeMetric
	Orphan         OrphanMetric
	Coherence      CoherenceMetric
	Highway        HighwayMetric
	WMHealth       WMHealthMetric
	Reconstruction ReconstructionMetric
	LearningFlux   LearningFluxMetric

	OverallStatus  Status
	FlaggedMetrics []string
}

// AlertRecorder receives a status-transition alert observation. Kept as a
// narrow interface so the monitor does not need the full observe.Metrics
// type.
type AlertRecorder interface {
	RecordHealthAlert(ctx context.Context, metricName, status string)
}

// noopRecorder discards alerts; used when Monitor is constructed without
// a metrics sink.
type noopRecorder struct{}

func (noopRecorder) RecordHealthAlert(context.Context, string, string) {}

// Monitor computes the periodic, read-only health snapshot for a set of
// graphs. It never writes graph state other than its own HealthSample
// history rows.
type Monitor struct {
	store      graph.Store
	membership graph.MembershipBackend
	history    *History
	sink       telemetry.Sink
	metrics    AlertRecorder

	orphanThreshold float64
	coherenceSample int
	highwayTopN     int
	interval        time.Duration

	mu            sync.Mutex
	prevStatus    map[string]Status
	frames        map[string][]frameObservation
	fluxWindows   map[string][]fluxObservation
}

// frameObservation is one stimulus-injection frame folded in via
// subscribed telemetry, used to compute WM health and reconstruction
// metrics.
type frameObservation struct {
	at           time.Time
	matches      int
	meanVitality float64
	crossings    int
	durationMs   float64
	similarity   float64
}

type fluxObservation struct {
	at     time.Time
	n      int
}

// Config tunes Monitor behaviour.
type Config struct {
	Interval              time.Duration
	HistoryRetention       time.Duration
	OrphanWeightThreshold  float64
	CoherenceSampleSize    int
	HighwayTopN            int
}

// NewMonitor creates a Monitor. sink and metrics may be nil. When events is
// non-nil, the monitor subscribes to it to compute working-memory,
// reconstruction, and learning-flux metrics from "stimulus.injected" and
// "weights.updated.trace" events; without it those three metrics always
// read as zero-windows.
func NewMonitor(store graph.Store, membership graph.MembershipBackend, cfg Config, sink telemetry.Sink, metrics AlertRecorder, events *telemetry.ChannelSink) *Monitor {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	if metrics == nil {
		metrics = noopRecorder{}
	}
	if cfg.OrphanWeightThreshold == 0 {
		cfg.OrphanWeightThreshold = 0.2
	}
	if cfg.CoherenceSampleSize == 0 {
		cfg.CoherenceSampleSize = 20
	}
	if cfg.HighwayTopN == 0 {
		cfg.HighwayTopN = 20
	}
	if cfg.HistoryRetention == 0 {
		cfg.HistoryRetention = 30 * 24 * time.Hour
	}

	m := &Monitor{
		store:           store,
		membership:      membership,
		history:         NewHistory(store, cfg.HistoryRetention),
		sink:            sink,
		metrics:         metrics,
		orphanThreshold: cfg.OrphanWeightThreshold,
		coherenceSample: cfg.CoherenceSampleSize,
		highwayTopN:     cfg.HighwayTopN,
		interval:        cfg.Interval,
		prevStatus:      make(map[string]Status),
		frames:          make(map[string][]frameObservation),
		fluxWindows:     make(map[string][]fluxObservation),
	}

	if events != nil {
		m.subscribe(events)
	}
	return m
}

// subscribe drains telemetry events into per-scope rolling windows used by
// the WM health, reconstruction, and learning-flux metrics. Runs for the
// life of the process; the subscriber channel is never unsubscribed since
// the monitor outlives every tick.
func (m *Monitor) subscribe(events *telemetry.ChannelSink) {
	ch, _ := events.Subscribe(256)
	go func() {
		for e := range ch {
			switch e.Name {
			case "stimulus.injected":
				scope, _ := e.Fields["scope"].(string)
				matches, _ := e.Fields["matches"].(int)
				vitality, _ := e.Fields["mean_vitality"].(float64)
				crossings, _ := e.Fields["crossings"].(int)
				durationMs, _ := e.Fields["duration_ms"].(float64)
				similarity, _ := e.Fields["mean_similarity"].(float64)
				m.mu.Lock()
				m.frames[scope] = append(m.frames[scope], frameObservation{
					at: e.Timestamp, matches: matches, meanVitality: vitality, crossings: crossings,
					durationMs: durationMs, similarity: similarity,
				})
				m.mu.Unlock()
			case "weights.updated.trace":
				scope, _ := e.Fields["scope"].(string)
				n, _ := e.Fields["n"].(int)
				m.mu.Lock()
				m.fluxWindows[scope] = append(m.fluxWindows[scope], fluxObservation{at: e.Timestamp, n: n})
				m.mu.Unlock()
			}
		}
	}()
}

// Run ticks Tick for every scope in scopes every Config.Interval until ctx
// is cancelled.
func (m *Monitor) Run(ctx context.Context, scopes []string) {
	if m.interval <= 0 {
		m.interval = 5 * time.Minute
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, scope := range scopes {
				if _, err := m.Tick(ctx, scope); err != nil {
					slog.Warn("health: tick failed", "scope", scope, "err", err)
				}
			}
		}
	}
}

// Tick computes one health snapshot for scope, appends it to history, and
// emits graph.health.snapshot (and graph.health.alert on a status
// transition).
func (m *Monitor) Tick(ctx context.Context, scope string) (Snapshot, error) {
	history, err := m.history.Load(ctx, scope)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Scope: scope, Timestamp: time.Now().UTC()}
	snap.Density, err = m.computeDensity(ctx, scope, history)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Overlap, err = m.computeOverlap(ctx, scope, history)
	if err != nil {
		return Snapshot{}, err
	}
	snap.EntitySize, err = m.computeEntitySize(ctx, scope)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Orphan, err = m.computeOrphans(ctx, scope, history)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Coherence, err = m.computeCoherence(ctx, scope)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Highway, err = m.computeHighways(ctx, scope, history)
	if err != nil {
		return Snapshot{}, err
	}
	frames := m.drainFrames(scope)
	snap.WMHealth = computeWMHealth(frames)
	snap.Reconstruction = computeReconstruction(frames)
	snap.LearningFlux = m.computeLearningFlux(scope)

	snap.OverallStatus = worstOf(snap.Density.Status, snap.Overlap.Status, snap.EntitySize.Status, snap.Orphan.Status, snap.Highway.Status)
	snap.FlaggedMetrics = flaggedMetrics(snap)

	if err := m.history.Append(ctx, scope, Sample{
		Timestamp: snap.Timestamp,
		Values: map[string]float64{
			"density":             snap.Density.Density,
			"overlap_ratio":       snap.Overlap.OverlapRatio,
			"orphan_ratio":        snap.Orphan.OrphanRatio,
			"median_entity_size":  float64(snap.EntitySize.MedianSize),
			"mean_coherence":      snap.Coherence.OverallMedianCoherence,
			"highway_count":       float64(snap.Highway.TotalHighways),
		},
	}); err != nil {
		slog.Warn("health: failed to append history", "scope", scope, "err", err)
	}

	m.sink.Emit(telemetry.Event{
		Name: "graph.health.snapshot",
		Fields: map[string]any{
			"scope":           scope,
			"overall_status":  string(snap.OverallStatus),
			"flagged_metrics": snap.FlaggedMetrics,
		},
	})

	m.mu.Lock()
	prev, seen := m.prevStatus[scope]
	m.prevStatus[scope] = snap.OverallStatus
	m.mu.Unlock()

	if seen && prev != snap.OverallStatus {
		m.sink.Emit(telemetry.Event{
			Name: "graph.health.alert",
			Fields: map[string]any{
				"scope":             scope,
				"severity":          string(snap.OverallStatus),
				"previous_severity": string(prev),
				"flagged_metrics":   snap.FlaggedMetrics,
			},
		})
		for _, name := range snap.FlaggedMetrics {
			m.metrics.RecordHealthAlert(ctx, name, string(snap.OverallStatus))
		}
	}

	return snap, nil
}

func flaggedMetrics(s Snapshot) []string {
	var flagged []string
	if s.Density.Status != StatusGreen {
		flagged = append(flagged, "density")
	}
	if s.Overlap.Status != StatusGreen {
		flagged = append(flagged, "overlap")
	}
	if s.EntitySize.Status != StatusGreen {
		flagged = append(flagged, "entity_size")
	}
	if s.Orphan.Status != StatusGreen {
		flagged = append(flagged, "orphans")
	}
	if s.Highway.Status != StatusGreen {
		flagged = append(flagged, "highways")
	}
	return flagged
}

func (m *Monitor) computeDensity(ctx context.Context, scope string, history []Sample) (DensityMetric, error) {
	entities, err := m.store.FindNodes(ctx, graph.NodeFilter{Scope: scope, Label: subEntityLabel})
	if err != nil {
		return DensityMetric{}, err
	}
	allNodes, err := m.store.FindNodes(ctx, graph.NodeFilter{Scope: scope})
	if err != nil {
		return DensityMetric{}, err
	}
	contentCount := 0
	for _, n := range allNodes {
		if n.Label != subEntityLabel {
			contentCount++
		}
	}

	density := 0.0
	if contentCount > 0 {
		density = float64(len(entities)) / float64(contentCount)
	}
	bands := Percentiles(history, "density")
	return DensityMetric{
		Entities: len(entities), Nodes: contentCount, Density: density,
		Status: judge(density, bands, false),
	}, nil
}

func (m *Monitor) computeOverlap(ctx context.Context, scope string, history []Sample) (OverlapMetric, error) {
	counts, err := m.membership.EntityMemberCounts(ctx, scope)
	if err != nil {
		return OverlapMetric{}, err
	}
	if len(counts) == 0 {
		return OverlapMetric{Status: StatusGreen}, nil
	}

	entityIDs := make([]string, 0, len(counts))
	total := 0
	for id, c := range counts {
		entityIDs = append(entityIDs, id)
		total += c
	}
	sort.Strings(entityIDs)

	allNodes, err := m.store.FindNodes(ctx, graph.NodeFilter{Scope: scope})
	if err != nil {
		return OverlapMetric{}, err
	}
	contentCount := 0
	for _, n := range allNodes {
		if n.Label != subEntityLabel {
			contentCount++
		}
	}

	// Sample the first 10x10 entity pairs, matching the cost bound the
	// original implementation used for this O(k^2) computation.
	sampleLimit := 10
	if len(entityIDs) < sampleLimit {
		sampleLimit = len(entityIDs)
	}

	var jaccards []float64
	for i := 0; i < sampleLimit; i++ {
		membersA, err := m.membership.EntityMembers(ctx, scope, entityIDs[i])
		if err != nil {
			return OverlapMetric{}, err
		}
		setA := toSet(membersA)
		for j := i + 1; j < sampleLimit; j++ {
			membersB, err := m.membership.EntityMembers(ctx, scope, entityIDs[j])
			if err != nil {
				return OverlapMetric{}, err
			}
			jaccards = append(jaccards, jaccard(setA, toSet(membersB)))
		}
	}

	overlapRatio := mean(jaccards)
	bands := Percentiles(history, "overlap_ratio")
	return OverlapMetric{
		TotalMemberships: total, TotalNodes: contentCount, OverlapRatio: overlapRatio,
		Status: judge(overlapRatio, bands, false),
	}, nil
}

func (m *Monitor) computeEntitySize(ctx context.Context, scope string) (EntitySizeMetric, error) {
	counts, err := m.membership.EntityMemberCounts(ctx, scope)
	if err != nil {
		return EntitySizeMetric{}, err
	}
	if len(counts) == 0 {
		return EntitySizeMetric{Status: StatusGreen}, nil
	}

	sizes := make([]float64, 0, len(counts))
	for _, c := range counts {
		sizes = append(sizes, float64(c))
	}
	sort.Float64s(sizes)

	gini := giniCoefficient(sizes)
	status := StatusGreen
	switch {
	case gini >= 0.6:
		status = StatusRed
	case gini >= 0.4:
		status = StatusAmber
	}

	return EntitySizeMetric{
		MedianSize: int(percentileOf(sizes, 0.5)),
		MeanSize:   mean(sizes),
		GiniCoefficient: gini,
		SizeDistribution: map[string]int{
			"q25": int(percentileOf(sizes, 0.25)),
			"q50": int(percentileOf(sizes, 0.5)),
			"q75": int(percentileOf(sizes, 0.75)),
			"q90": int(percentileOf(sizes, 0.9)),
		},
		Status: status,
	}, nil
}

func (m *Monitor) computeOrphans(ctx context.Context, scope string, history []Sample) (OrphanMetric, error) {
	allNodes, err := m.store.FindNodes(ctx, graph.NodeFilter{Scope: scope})
	if err != nil {
		return OrphanMetric{}, err
	}

	total, orphans, newOrphans24h := 0, 0, 0
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, n := range allNodes {
		if n.Label == subEntityLabel {
			continue
		}
		total++
		maxWeight := 0.0
		activations, _ := n.Properties["entity_activations"].(map[string]float64)
		for _, w := range activations {
			if w > maxWeight {
				maxWeight = w
			}
		}
		if maxWeight < m.orphanThreshold {
			orphans++
			if n.CreatedAt.After(cutoff) {
				newOrphans24h++
			}
		}
	}

	ratio := 0.0
	if total > 0 {
		ratio = float64(orphans) / float64(total)
	}
	bands := Percentiles(history, "orphan_ratio")
	return OrphanMetric{
		TotalNodes: total, OrphanCount: orphans, OrphanRatio: ratio,
		NewOrphansLast24h: newOrphans24h,
		Status:            judge(ratio, bands, true),
	}, nil
}

func (m *Monitor) computeCoherence(ctx context.Context, scope string) (CoherenceMetric, error) {
	counts, err := m.membership.EntityMemberCounts(ctx, scope)
	if err != nil {
		return CoherenceMetric{}, err
	}
	if len(counts) == 0 {
		return CoherenceMetric{}, nil
	}

	entityIDs := make([]string, 0, len(counts))
	for id := range counts {
		entityIDs = append(entityIDs, id)
	}
	sort.Strings(entityIDs)

	var coherences []float64
	var flagged []string
	medianSize := medianInt(counts)

	for _, entityID := range entityIDs {
		members, err := m.membership.EntityMembers(ctx, scope, entityID)
		if err != nil {
			return CoherenceMetric{}, err
		}
		if len(members) > m.coherenceSample {
			members = members[:m.coherenceSample]
		}

		var embeddings [][]float32
		for _, nodeID := range members {
			n, err := m.store.GetNode(ctx, scope, nodeID)
			if err != nil {
				continue
			}
			if len(n.Embedding) > 0 {
				embeddings = append(embeddings, n.Embedding)
			}
		}

		coherence := meanPairwiseCosine(embeddings)
		coherences = append(coherences, coherence)
		if coherence < 0.3 && counts[entityID] > 2*medianSize {
			flagged = append(flagged, entityID)
		}
	}

	return CoherenceMetric{
		OverallMedianCoherence: medianFloat(coherences),
		FlaggedEntities:        flagged,
	}, nil
}

func (m *Monitor) computeHighways(ctx context.Context, scope string, history []Sample) (HighwayMetric, error) {
	backbone, err := m.membership.TopCoactivations(ctx, scope, m.highwayTopN)
	if err != nil {
		return HighwayMetric{}, err
	}

	total := len(backbone)
	var crossings float64
	for _, c := range backbone {
		crossings += c.BothEMA
	}
	meanCrossings := 0.0
	if total > 0 {
		meanCrossings = crossings / float64(total)
	}

	status := StatusRed
	switch {
	case total >= 15:
		status = StatusGreen
	case total >= 5:
		status = StatusAmber
	}

	return HighwayMetric{
		TotalHighways: total, TotalCrossings: crossings, MeanCrossingsPerHighway: meanCrossings,
		Backbone: backbone, Status: status,
	}, nil
}

func computeWMHealth(frames []frameObservation) WMHealthMetric {
	if len(frames) == 0 {
		return WMHealthMetric{}
	}

	selected := make([]float64, len(frames))
	vitalities := make([]float64, 0, len(frames))
	flips := 0
	for i, f := range frames {
		selected[i] = float64(f.matches)
		if f.meanVitality != 0 {
			vitalities = append(vitalities, f.meanVitality)
		}
		flips += f.crossings
	}
	sort.Float64s(selected)

	return WMHealthMetric{
		WindowFrames:   len(frames),
		MeanSelected:   mean(selected),
		MedianSelected: percentileOf(selected, 0.5),
		P90Selected:    percentileOf(selected, 0.9),
		MeanVitality:   mean(vitalities),
		FlipRate:       float64(flips) / float64(len(frames)),
	}
}

func computeReconstruction(frames []frameObservation) ReconstructionMetric {
	if len(frames) == 0 {
		return ReconstructionMetric{}
	}

	latencies := make([]float64, len(frames))
	similarities := make([]float64, len(frames))
	for i, f := range frames {
		latencies[i] = f.durationMs
		similarities[i] = f.similarity
	}
	sort.Float64s(latencies)
	sort.Float64s(similarities)

	return ReconstructionMetric{
		WindowFrames:   len(frames),
		MeanLatencyMs:  mean(latencies),
		P50LatencyMs:   percentileOf(latencies, 0.5),
		P90LatencyMs:   percentileOf(latencies, 0.9),
		MeanSimilarity: mean(similarities),
		P50Similarity:  percentileOf(similarities, 0.5),
		P10Similarity:  percentileOf(similarities, 0.1),
	}
}

// drainFrames returns and clears the accumulated frame window for scope,
// so each tick reports since-last-tick behaviour rather than an
// ever-growing window.
func (m *Monitor) drainFrames(scope string) []frameObservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	frames := m.frames[scope]
	m.frames[scope] = nil
	return frames
}

func (m *Monitor) computeLearningFlux(scope string) LearningFluxMetric {
	m.mu.Lock()
	window := m.fluxWindows[scope]
	m.fluxWindows[scope] = nil
	m.mu.Unlock()

	if len(window) == 0 {
		return LearningFluxMetric{}
	}

	oldest := window[0].at
	newest := window[0].at
	updates := 0
	for _, w := range window {
		updates += w.n
		if w.at.Before(oldest) {
			oldest = w.at
		}
		if w.at.After(newest) {
			newest = w.at
		}
	}

	hours := newest.Sub(oldest).Hours()
	if hours <= 0 {
		hours = 1
	}

	return LearningFluxMetric{
		WindowHours:   hours,
		WeightUpdates: updates,
		UpdateRate:    float64(updates) / hours,
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for id := range a {
		if _, ok := b[id]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// giniCoefficient computes the Gini coefficient of sorted, non-negative
// values (0 = perfect equality, 1 = one element has everything).
func giniCoefficient(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	var sum, weighted float64
	for i, v := range sorted {
		sum += v
		weighted += float64(i+1) * v
	}
	if sum == 0 {
		return 0
	}
	return (2*weighted)/(float64(n)*sum) - float64(n+1)/float64(n)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentileOf returns the p-th quantile of a value slice already sorted
// ascending, using linear interpolation between closest ranks.
func percentileOf(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	idx := p * float64(n-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func medianInt(counts map[string]int) int {
	values := make([]float64, 0, len(counts))
	for _, c := range counts {
		values = append(values, float64(c))
	}
	sort.Float64s(values)
	return int(percentileOf(values, 0.5))
}

func medianFloat(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return percentileOf(sorted, 0.5)
}

// meanPairwiseCosine computes the mean cosine similarity across all pairs
// of embeddings, 0 if fewer than two are present.
func meanPairwiseCosine(embeddings [][]float32) float64 {
	if len(embeddings) < 2 {
		return 0
	}
	var sum float64
	var pairs int
	for i := 0; i < len(embeddings); i++ {
		for j := i + 1; j < len(embeddings); j++ {
			sum += cosineSimilarity(embeddings[i], embeddings[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
