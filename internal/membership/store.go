// Package membership maintains the MEMBER_OF activation fabric between
// content nodes and sub-entities, and the derived top-K cache written back
// onto each content node's properties for fast context reconstruction.
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hearthgraph/substrate/internal/telemetry"
	"github.com/hearthgraph/substrate/pkg/graph"
)

const defaultTopK = 10

// Activation is one observed (node, entity) activation to fold into the
// membership fabric.
type Activation struct {
	NodeID   string
	EntityID string
	Scope    string
}

// Store flushes activation batches into the membership fabric and rebuilds
// the per-node top-K cache from it. The cache is always a derived view,
// never authoritative — it can be rebuilt in full from the memberships
// table at any time.
type Store struct {
	backend graph.MembershipBackend
	graph   graph.Store
	alpha   float64
	topK    int
	sink    telemetry.Sink
	now     func() time.Time
}

// New creates a Store. alpha is the EMA rate applied to every activation;
// topK bounds the cache size (0 uses defaultTopK). sink may be nil.
func New(backend graph.MembershipBackend, store graph.Store, alpha float64, topK int, sink telemetry.Sink) *Store {
	if topK <= 0 {
		topK = defaultTopK
	}
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	return &Store{backend: backend, graph: store, alpha: alpha, topK: topK, sink: sink, now: time.Now}
}

// FlushMemberships folds each activation into its (node, entity) pair's
// activation_ema via one batched backend call.
func (s *Store) FlushMemberships(ctx context.Context, activations []Activation) error {
	if len(activations) == 0 {
		return nil
	}
	updates := make([]graph.MembershipUpdate, len(activations))
	for i, a := range activations {
		updates[i] = graph.MembershipUpdate{
			NodeID: a.NodeID, EntityID: a.EntityID, Scope: a.Scope,
			Sample: 1.0, Alpha: s.alpha,
		}
	}
	if err := s.backend.FlushMemberships(ctx, updates); err != nil {
		return fmt.Errorf("membership: flush: %w", err)
	}
	s.sink.Emit(telemetry.Event{
		Name:   "membership.flushed",
		Fields: map[string]any{"count": len(updates)},
	})
	return nil
}

// RebuildCache reads back the topK memberships for (scope, nodeID) and
// writes them onto the content node's properties as entity_activations (a
// map of entity id to activation_ema) plus an update timestamp. It is
// read-modify-write against the node so other properties are preserved.
func (s *Store) RebuildCache(ctx context.Context, scope, nodeID string) error {
	top, err := s.backend.TopMemberships(ctx, scope, nodeID, s.topK)
	if err != nil {
		return fmt.Errorf("membership: rebuild cache: top memberships: %w", err)
	}

	node, err := s.graph.GetNode(ctx, scope, nodeID)
	if err != nil {
		return fmt.Errorf("membership: rebuild cache: get node: %w", err)
	}

	activations := make(map[string]float64, len(top))
	for _, m := range top {
		activations[m.EntityID] = m.ActivationEMA
	}
	if node.Properties == nil {
		node.Properties = make(map[string]any)
	}
	node.Properties["entity_activations"] = activations
	node.Properties["entity_activations_updated_at"] = s.now().UTC()

	confirmed, err := s.graph.UpsertNode(ctx, node)
	if err != nil {
		return fmt.Errorf("membership: rebuild cache: upsert node: %w", err)
	}
	if !confirmed {
		slog.Warn("membership: cache write not confirmed", "scope", scope, "node_id", nodeID)
	}
	return nil
}
