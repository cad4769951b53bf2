// Package graph defines the bitemporal property graph model and the storage
// contract ([Store]) implemented by backend adapters (see the postgres
// sub-package) and wrapped by [writegate.Gate] for namespace enforcement.
//
// The graph has two independent time axes on every node and link:
//   - reality time (ValidAt / InvalidatedAt): when the fact was true in the
//     world being modelled.
//   - knowledge time (CreatedAt / ExpiredAt): when the engine learned about
//     or retracted the fact.
//
// All mutating Store methods are upserts: applying the same write twice must
// leave the graph in the same state it would be in after one application.
package graph

import (
	"math"
	"time"
)

// Node is a single vertex in the property graph. Label is one of the closed
// set of node types enumerated by the formation schema (see
// internal/formation); Properties holds the type-specific fields, while the
// fields every node carries (LogWeight, LogWeightOverlays, Embedding) are
// struct fields of their own.
type Node struct {
	ID    string
	Label string
	Scope string // physical graph name this node lives in

	// Properties holds label-specific fields (e.g. "content", "summary") as a
	// flat map so the storage layer can marshal it to jsonb without a
	// per-label Go struct explosion.
	Properties map[string]any

	// LogWeight is the shared (global-view) log-importance of this node.
	LogWeight float64

	// LogWeightOverlays maps an entity (sub-entity) id to that entity's
	// local-view adjustment of LogWeight, applied additively before
	// exponentiation (see internal/weightlearn).
	LogWeightOverlays map[string]float64

	// Embedding is the semantic vector (of the configured embedding
	// dimension) produced by the
	// embedding generator, or nil if embedding failed or does not apply to
	// this label.
	Embedding []float32

	// ValidAt / InvalidatedAt form the reality-time axis.
	ValidAt       time.Time
	InvalidatedAt time.Time

	// CreatedAt / ExpiredAt form the knowledge-time axis.
	CreatedAt time.Time
	ExpiredAt time.Time
}

// EffectiveWeight returns the dual-view weight of the node as seen from
// entity (a sub-entity id). If entity is empty or has no overlay, the
// global-view weight exp(LogWeight) is returned.
func (n Node) EffectiveWeight(entity string) float64 {
	lw := n.LogWeight
	if entity != "" {
		if overlay, ok := n.LogWeightOverlays[entity]; ok {
			lw += overlay
		}
	}
	return expClamped(lw)
}

// Link is a directed, typed edge between two nodes. Type is one of the
// closed set of link types enumerated by the formation schema; Meta carries
// the type-specific contract fields (e.g. "since", "strength").
type Link struct {
	SourceID string
	TargetID string
	Type     string
	Scope    string

	Meta map[string]any

	LogWeight         float64
	LogWeightOverlays map[string]float64

	ValidAt       time.Time
	InvalidatedAt time.Time
	CreatedAt     time.Time
	ExpiredAt     time.Time
}

// EffectiveWeight mirrors [Node.EffectiveWeight] for links.
func (l Link) EffectiveWeight(entity string) float64 {
	lw := l.LogWeight
	if entity != "" {
		if overlay, ok := l.LogWeightOverlays[entity]; ok {
			lw += overlay
		}
	}
	return expClamped(lw)
}

// Membership is a MEMBER_OF edge linking a content node to a sub-entity
// (role) node, the canonical source of truth for the membership fabric.
// The derived top-K cache (see internal/membership) is rebuilt from these.
type Membership struct {
	NodeID     string
	EntityID   string
	Scope      string
	ActivationEMA float64
	UpdatedAt  time.Time
}

// Coactivation is a COACTIVATES_WITH edge between two sub-entities that were
// observed active in the same working-memory window.
type Coactivation struct {
	EntityA, EntityB string // EntityA < EntityB lexicographically
	Scope            string
	BothEMA          float64
	EitherEMA        float64
	UpdatedAt        time.Time
}

// UJaccard returns BothEMA / EitherEMA, or 0 if EitherEMA is 0.
func (c Coactivation) UJaccard() float64 {
	if c.EitherEMA == 0 {
		return 0
	}
	return c.BothEMA / c.EitherEMA
}

// NodeFilter narrows a node lookup query. All non-zero fields are applied as
// AND conditions.
type NodeFilter struct {
	Label          string
	Scope          string
	PropertyQuery  map[string]any
	Limit          int
}

// NodeMatch pairs a node with its vector-space distance from a query
// embedding (ascending distance is most similar first).
type NodeMatch struct {
	Node     Node
	Distance float64
}

func expClamped(logWeight float64) float64 {
	const maxExp = 40.0
	if logWeight > maxExp {
		logWeight = maxExp
	}
	if logWeight < -maxExp {
		logWeight = -maxExp
	}
	return math.Exp(logWeight)
}
