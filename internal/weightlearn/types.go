// Package weightlearn implements the dual-view, entity-aware weight
// learner: per-TRACE EMA updates, cohort-relative rank z-scores, an
// adaptive learning rate, and a global log_weight plus per-entity overlay
// update, batched and persisted per scope.
package weightlearn

import "time"

// Item is one candidate node (or link) considered for a weight update in
// the current TRACE. Fields mirror the persisted state the learner reads
// and writes; MembershipWeights supplies the per-entity weight used to
// scale overlay deltas.
type Item struct {
	NodeID string
	Label  string
	Scope  string

	// Seats is this TRACE's reinforcement seat award for the item (0 if
	// not mentioned).
	Seats int

	// HasFormation and FormationQuality describe whether a formation for
	// this item appeared in the current TRACE.
	HasFormation     bool
	FormationQuality float64

	// Persisted state carried in from the graph.
	EmaTraceSeats       float64
	EmaFormationQuality float64
	LogWeight           float64
	LogWeightOverlays   map[string]float64
	LastUpdateTimestamp time.Time

	// MembershipWeights maps entity id to this item's MEMBER_OF weight to
	// that entity (0 for entities it has no membership to).
	MembershipWeights map[string]float64
}

// Update is the outcome of one item's weight update, used both for
// persistence and for telemetry.
type Update struct {
	NodeID        string
	Scope         string
	DeltaGlobal   float64
	OverlayDeltas map[string]float64
	NewLogWeight  float64
	NewOverlays   map[string]float64
	NewEmaSeats   float64
	NewEmaQuality float64
	Confirmed     bool
}

// CohortSummary is the telemetry payload emitted once per cohort.
type CohortSummary struct {
	Label         string
	Scope         string
	N             int
	DeltaGlobalMu    float64
	DeltaGlobalSigma float64
	Updates       []Update
	EntityContext []string
}
