package graph

import "context"

// MembershipUpdate is one MEMBER_OF activation observation to fold into the
// membership fabric's EMA. Sample is typically 1.0 (the entity was active)
// but is a parameter so callers can weight partial activations.
type MembershipUpdate struct {
	NodeID   string
	EntityID string
	Scope    string
	Sample   float64
	Alpha    float64
}

// CoactivationUpdate is one pairwise co-activation observation between two
// sub-entities observed active in the same working-memory window.
type CoactivationUpdate struct {
	EntityA, EntityB string // caller must ensure EntityA < EntityB
	Scope            string
	Alpha            float64
}

// MembershipBackend is the narrow storage contract for the membership and
// co-activation fabric, implemented alongside [Store] by backends that
// keep MEMBER_OF and COACTIVATES_WITH state in dedicated tables rather
// than as generic links, so the high-frequency EMA update can be a single
// batched, backend-computed upsert rather than a read-modify-write round
// trip per row.
type MembershipBackend interface {
	// FlushMemberships folds each update's Sample into that (node, entity)
	// pair's activation_ema via a single batched upsert:
	// activation_ema ← alpha*sample + (1-alpha)*activation_ema.
	FlushMemberships(ctx context.Context, updates []MembershipUpdate) error

	// TopMemberships returns the topK MEMBER_OF rows for nodeID in scope,
	// ordered by activation_ema descending.
	TopMemberships(ctx context.Context, scope, nodeID string, topK int) ([]Membership, error)

	// UpsertCoactivations folds each update into its pair's both_ema and
	// either_ema via a single batched upsert, creating the pair if absent.
	UpsertCoactivations(ctx context.Context, updates []CoactivationUpdate) error

	// TopCoactivations returns the topN COACTIVATES_WITH pairs in scope
	// ordered by both_ema descending, the backbone the health monitor
	// reports as the graph's "highway" count/weight.
	TopCoactivations(ctx context.Context, scope string, topN int) ([]Coactivation, error)

	// EntityMemberCounts returns, for every sub-entity with at least one
	// MEMBER_OF row in scope, the number of member nodes. Used by the
	// health monitor to compute sub-entity size distribution and its
	// Gini coefficient.
	EntityMemberCounts(ctx context.Context, scope string) (map[string]int, error)

	// EntityMembers returns the node IDs currently belonging to entityID
	// in scope. Used by the health monitor to compute sub-entity
	// coherence (pairwise similarity among members).
	EntityMembers(ctx context.Context, scope, entityID string) ([]string, error)
}
