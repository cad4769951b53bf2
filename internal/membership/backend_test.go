package membership_test

import (
	"context"

	"github.com/hearthgraph/substrate/pkg/graph"
)

// countingBackend is a minimal graph.MembershipBackend that only counts the
// pairs it receives, for tests that care about pair cardinality rather than
// the stored EMA values.
type countingBackend struct {
	pairCount int
}

func (b *countingBackend) FlushMemberships(context.Context, []graph.MembershipUpdate) error {
	return nil
}

func (b *countingBackend) TopMemberships(context.Context, string, string, int) ([]graph.Membership, error) {
	return nil, nil
}

func (b *countingBackend) UpsertCoactivations(_ context.Context, updates []graph.CoactivationUpdate) error {
	b.pairCount += len(updates)
	return nil
}

func (b *countingBackend) TopCoactivations(context.Context, string, int) ([]graph.Coactivation, error) {
	return nil, nil
}

func (b *countingBackend) EntityMemberCounts(context.Context, string) (map[string]int, error) {
	return nil, nil
}

func (b *countingBackend) EntityMembers(context.Context, string, string) ([]string, error) {
	return nil, nil
}

var _ graph.MembershipBackend = (*countingBackend)(nil)
