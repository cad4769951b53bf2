// Package writegate enforces namespace-scoped write access on top of any
// [graph.Store]: every mutating call is checked against the namespace
// carried on the request context before being delegated to the
// underlying store.
package writegate

import (
	"context"
	"errors"

	"github.com/hearthgraph/substrate/internal/namespace"
	"github.com/hearthgraph/substrate/internal/telemetry"
	"github.com/hearthgraph/substrate/pkg/graph"
)

// ErrCrossLayerWriteDenied is returned when the namespace carried on ctx
// does not match the namespace derived for the target scope.
var ErrCrossLayerWriteDenied = errors.New("writegate: cross-layer write denied")

// Gate wraps a [graph.Store] and enforces that every write call's target
// scope resolves (via [namespace.ForGraph]) to the same namespace as the
// one carried on ctx (via [namespace.FromContext]). Read methods pass
// through unchecked.
type Gate struct {
	inner graph.Store
	sink  telemetry.Sink
}

// New wraps inner with namespace enforcement, emitting denied writes
// through sink. Pass [telemetry.NoopSink] if no sink is wired.
func New(inner graph.Store, sink telemetry.Sink) *Gate {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	return &Gate{inner: inner, sink: sink}
}

func (g *Gate) check(ctx context.Context, scope string) error {
	expected := namespace.ForGraph(scope)
	actual, ok := namespace.FromContext(ctx)
	if !ok || actual != expected {
		g.sink.Emit(telemetry.Event{
			Name: "write.denied",
			Fields: map[string]any{
				"expected": expected.String(),
				"got":      actual.String(),
				"scope":    scope,
			},
		})
		return ErrCrossLayerWriteDenied
	}
	return nil
}

func (g *Gate) UpsertNode(ctx context.Context, n graph.Node) (bool, error) {
	if err := g.check(ctx, n.Scope); err != nil {
		return false, err
	}
	return g.inner.UpsertNode(ctx, n)
}

func (g *Gate) UpsertLink(ctx context.Context, l graph.Link) (bool, error) {
	if err := g.check(ctx, l.Scope); err != nil {
		return false, err
	}
	return g.inner.UpsertLink(ctx, l)
}

func (g *Gate) BatchUpsertNodes(ctx context.Context, nodes []graph.BatchNodeUpsert) ([]bool, error) {
	for _, n := range nodes {
		if err := g.check(ctx, n.Node.Scope); err != nil {
			return make([]bool, len(nodes)), err
		}
	}
	return g.inner.BatchUpsertNodes(ctx, nodes)
}

func (g *Gate) BatchUpsertLinks(ctx context.Context, links []graph.BatchLinkUpsert) ([]bool, error) {
	for _, l := range links {
		if err := g.check(ctx, l.Link.Scope); err != nil {
			return make([]bool, len(links)), err
		}
	}
	return g.inner.BatchUpsertLinks(ctx, links)
}

func (g *Gate) GetNode(ctx context.Context, scope, id string) (graph.Node, error) {
	return g.inner.GetNode(ctx, scope, id)
}

func (g *Gate) FindNodes(ctx context.Context, filter graph.NodeFilter) ([]graph.Node, error) {
	return g.inner.FindNodes(ctx, filter)
}

func (g *Gate) VectorQueryNodes(ctx context.Context, scope, label string, embedding []float32, topK int) ([]graph.NodeMatch, error) {
	return g.inner.VectorQueryNodes(ctx, scope, label, embedding, topK)
}

func (g *Gate) Neighbors(ctx context.Context, scope, nodeID string, direction string, linkTypes []string) ([]graph.Node, error) {
	return g.inner.Neighbors(ctx, scope, nodeID, direction, linkTypes)
}

func (g *Gate) AggregateConnectivity(ctx context.Context, scope string) (int, float64, int, error) {
	return g.inner.AggregateConnectivity(ctx, scope)
}

// FlushMemberships gates each update's scope before delegating to a backend
// that also implements [graph.MembershipBackend]. It errors if inner does
// not support the membership fabric.
func (g *Gate) FlushMemberships(ctx context.Context, updates []graph.MembershipUpdate) error {
	backend, ok := g.inner.(graph.MembershipBackend)
	if !ok {
		return errMembershipUnsupported
	}
	for _, u := range updates {
		if err := g.check(ctx, u.Scope); err != nil {
			return err
		}
	}
	return backend.FlushMemberships(ctx, updates)
}

// TopMemberships passes through unchecked, like other reads.
func (g *Gate) TopMemberships(ctx context.Context, scope, nodeID string, topK int) ([]graph.Membership, error) {
	backend, ok := g.inner.(graph.MembershipBackend)
	if !ok {
		return nil, errMembershipUnsupported
	}
	return backend.TopMemberships(ctx, scope, nodeID, topK)
}

// UpsertCoactivations gates each update's scope before delegating.
func (g *Gate) UpsertCoactivations(ctx context.Context, updates []graph.CoactivationUpdate) error {
	backend, ok := g.inner.(graph.MembershipBackend)
	if !ok {
		return errMembershipUnsupported
	}
	for _, u := range updates {
		if err := g.check(ctx, u.Scope); err != nil {
			return err
		}
	}
	return backend.UpsertCoactivations(ctx, updates)
}

// TopCoactivations, EntityMemberCounts and EntityMembers pass through
// unchecked, like other reads.
func (g *Gate) TopCoactivations(ctx context.Context, scope string, topN int) ([]graph.Coactivation, error) {
	backend, ok := g.inner.(graph.MembershipBackend)
	if !ok {
		return nil, errMembershipUnsupported
	}
	return backend.TopCoactivations(ctx, scope, topN)
}

func (g *Gate) EntityMemberCounts(ctx context.Context, scope string) (map[string]int, error) {
	backend, ok := g.inner.(graph.MembershipBackend)
	if !ok {
		return nil, errMembershipUnsupported
	}
	return backend.EntityMemberCounts(ctx, scope)
}

func (g *Gate) EntityMembers(ctx context.Context, scope, entityID string) ([]string, error) {
	backend, ok := g.inner.(graph.MembershipBackend)
	if !ok {
		return nil, errMembershipUnsupported
	}
	return backend.EntityMembers(ctx, scope, entityID)
}

var errMembershipUnsupported = errors.New("writegate: inner store does not implement graph.MembershipBackend")

var _ graph.Store = (*Gate)(nil)
var _ graph.MembershipBackend = (*Gate)(nil)
