package mock

import (
	"context"
	"sort"

	"github.com/hearthgraph/substrate/pkg/graph"
)

// FlushMemberships mirrors the postgres backend's EMA fold, applied
// in-memory under the store's lock.
func (s *Store) FlushMemberships(_ context.Context, updates []graph.MembershipUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		key := membershipKey{u.Scope, u.NodeID, u.EntityID}
		m := s.memberships[key]
		m.NodeID, m.EntityID, m.Scope = u.NodeID, u.EntityID, u.Scope
		m.ActivationEMA = u.Alpha*u.Sample + (1-u.Alpha)*m.ActivationEMA
		s.memberships[key] = m
	}
	return nil
}

// TopMemberships returns the topK memberships of nodeID in scope ordered by
// activation_ema descending.
func (s *Store) TopMemberships(_ context.Context, scope, nodeID string, topK int) ([]graph.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []graph.Membership
	for _, m := range s.memberships {
		if m.Scope == scope && m.NodeID == nodeID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActivationEMA > out[j].ActivationEMA })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// UpsertCoactivations mirrors the postgres backend's pair-EMA fold.
func (s *Store) UpsertCoactivations(_ context.Context, updates []graph.CoactivationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		key := coactivationKey{u.Scope, u.EntityA, u.EntityB}
		c, exists := s.coactivations[key]
		if !exists {
			c = graph.Coactivation{EntityA: u.EntityA, EntityB: u.EntityB, Scope: u.Scope, BothEMA: 1, EitherEMA: 1}
		} else {
			c.BothEMA = u.Alpha*1 + (1-u.Alpha)*c.BothEMA
			c.EitherEMA = u.Alpha*1 + (1-u.Alpha)*c.EitherEMA
		}
		s.coactivations[key] = c
	}
	return nil
}

// TopCoactivations returns the topN coactivation pairs in scope ordered by
// both_ema descending.
func (s *Store) TopCoactivations(_ context.Context, scope string, topN int) ([]graph.Coactivation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []graph.Coactivation{}
	for _, c := range s.coactivations {
		if c.Scope == scope {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BothEMA > out[j].BothEMA })
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

// EntityMemberCounts returns the number of member nodes per sub-entity in
// scope.
func (s *Store) EntityMemberCounts(_ context.Context, scope string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for key := range s.memberships {
		if key.scope == scope {
			counts[key.entityID]++
		}
	}
	return counts, nil
}

// EntityMembers returns the node IDs currently belonging to entityID in
// scope.
func (s *Store) EntityMembers(_ context.Context, scope, entityID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for key := range s.memberships {
		if key.scope == scope && key.entityID == entityID {
			out = append(out, key.nodeID)
		}
	}
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out, nil
}

var _ graph.MembershipBackend = (*Store)(nil)
