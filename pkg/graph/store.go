package graph

import (
	"context"
	"errors"
)

// ErrWriteNotConfirmed names a write whose post-write read-back did not
// match what was written. The [Store] implementations in this module do not
// return it: they report such a write as confirmed=false with a nil error.
var ErrWriteNotConfirmed = errors.New("graph: write not confirmed")

// ErrNotFound is returned by lookup methods when the requested record does
// not exist. Some methods document a (nil, nil) contract instead; see their
// individual docs.
var ErrNotFound = errors.New("graph: not found")

// BatchNodeUpsert is one item in a [Store.BatchUpsertNodes] call.
type BatchNodeUpsert struct {
	Node Node
}

// BatchLinkUpsert is one item in a [Store.BatchUpsertLinks] call.
type BatchLinkUpsert struct {
	Link Link
}

// Store is the single storage adapter contract used by every subsystem that
// touches the graph (trace reinforcement, weight learning, the membership
// fabric, stimulus injection). Implementations back one physical graph
// (identified by scope) at a time, or may be scope-agnostic and take scope
// as a parameter — the postgres implementation does the latter, storing
// scope as an ordinary column.
//
// Every mutating method is an upsert: applying the same write twice leaves
// the store in the same state. Implementations must be safe for concurrent
// use.
type Store interface {
	// UpsertNode writes n, retrying the read-back confirmation internally
	// per the configured retry budget. confirmed is false if every retry's
	// read-back mismatched.
	UpsertNode(ctx context.Context, n Node) (confirmed bool, err error)

	// UpsertLink writes l with the same upsert-and-confirm contract as
	// UpsertNode.
	UpsertLink(ctx context.Context, l Link) (confirmed bool, err error)

	// BatchUpsertNodes writes every node in one round trip where the backend
	// supports it. Order of application is unspecified; confirmation is
	// reported per item in the same order as input.
	BatchUpsertNodes(ctx context.Context, nodes []BatchNodeUpsert) (confirmed []bool, err error)

	// BatchUpsertLinks mirrors BatchUpsertNodes for links.
	BatchUpsertLinks(ctx context.Context, links []BatchLinkUpsert) (confirmed []bool, err error)

	// GetNode retrieves a node by (scope, id). Returns [ErrNotFound] if it
	// does not exist.
	GetNode(ctx context.Context, scope, id string) (Node, error)

	// FindNodes returns all nodes in filter.Scope matching filter.
	// Returns an empty (non-nil) slice when nothing matches.
	FindNodes(ctx context.Context, filter NodeFilter) ([]Node, error)

	// VectorQueryNodes returns the topK nodes of the given label in scope
	// whose Embedding is closest (cosine distance) to embedding. Results are
	// ordered by ascending distance (most similar first).
	VectorQueryNodes(ctx context.Context, scope, label string, embedding []float32, topK int) ([]NodeMatch, error)

	// Neighbors returns the nodes directly linked to (scope, nodeID),
	// optionally restricted to the given link types. Direction "out" follows
	// links where nodeID is the source; "in" follows links where it is the
	// target; "both" follows either.
	Neighbors(ctx context.Context, scope, nodeID string, direction string, linkTypes []string) ([]Node, error)

	// AggregateConnectivity computes the graph-connectivity proxy inputs
	// used by stimulus injection: the maximum node out-degree, the mean
	// effective link weight, and the count of nodes with non-zero
	// log_weight, all scoped to scope.
	AggregateConnectivity(ctx context.Context, scope string) (maxDegree int, meanLinkWeight float64, activeNodeCount int, err error)
}
