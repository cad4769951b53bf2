// Package mock provides an in-memory test double for the graph.Store
// interface. It is not a performance-oriented implementation — lookups are
// linear scans — but it gives package tests a real, stateful store without
// a database dependency.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/hearthgraph/substrate/pkg/graph"
)

type nodeKey struct{ scope, id string }
type linkKey struct{ scope, source, target, typ string }
type membershipKey struct{ scope, nodeID, entityID string }
type coactivationKey struct{ scope, entityA, entityB string }

// Store is an in-memory, recording implementation of graph.Store.
type Store struct {
	mu sync.Mutex

	nodes         map[nodeKey]graph.Node
	links         map[linkKey]graph.Link
	memberships   map[membershipKey]graph.Membership
	coactivations map[coactivationKey]graph.Coactivation

	// UpsertNodeCalls records every node passed to UpsertNode, in order.
	UpsertNodeCalls []graph.Node
	// UpsertLinkCalls records every link passed to UpsertLink, in order.
	UpsertLinkCalls []graph.Link

	// ForceUnconfirmed, if true, makes every Upsert* call report
	// confirmed=false without touching stored state — used to exercise
	// retry/unconfirmed-write handling in callers.
	ForceUnconfirmed bool
}

// New returns an empty, ready-to-use Store.
func New() *Store {
	return &Store{
		nodes:         make(map[nodeKey]graph.Node),
		links:         make(map[linkKey]graph.Link),
		memberships:   make(map[membershipKey]graph.Membership),
		coactivations: make(map[coactivationKey]graph.Coactivation),
	}
}

func (s *Store) UpsertNode(_ context.Context, n graph.Node) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertNodeCalls = append(s.UpsertNodeCalls, n)
	if s.ForceUnconfirmed {
		return false, nil
	}
	s.nodes[nodeKey{n.Scope, n.ID}] = n
	return true, nil
}

func (s *Store) UpsertLink(_ context.Context, l graph.Link) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertLinkCalls = append(s.UpsertLinkCalls, l)
	if s.ForceUnconfirmed {
		return false, nil
	}
	s.links[linkKey{l.Scope, l.SourceID, l.TargetID, l.Type}] = l
	return true, nil
}

func (s *Store) BatchUpsertNodes(ctx context.Context, nodes []graph.BatchNodeUpsert) ([]bool, error) {
	confirmed := make([]bool, len(nodes))
	for i, n := range nodes {
		ok, err := s.UpsertNode(ctx, n.Node)
		if err != nil {
			return confirmed, err
		}
		confirmed[i] = ok
	}
	return confirmed, nil
}

func (s *Store) BatchUpsertLinks(ctx context.Context, links []graph.BatchLinkUpsert) ([]bool, error) {
	confirmed := make([]bool, len(links))
	for i, l := range links {
		ok, err := s.UpsertLink(ctx, l.Link)
		if err != nil {
			return confirmed, err
		}
		confirmed[i] = ok
	}
	return confirmed, nil
}

func (s *Store) GetNode(_ context.Context, scope, id string) (graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[nodeKey{scope, id}]
	if !ok {
		return graph.Node{}, graph.ErrNotFound
	}
	return n, nil
}

func (s *Store) FindNodes(_ context.Context, filter graph.NodeFilter) ([]graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []graph.Node
	for _, n := range s.nodes {
		if filter.Scope != "" && n.Scope != filter.Scope {
			continue
		}
		if filter.Label != "" && n.Label != filter.Label {
			continue
		}
		if !matchesProperties(n.Properties, filter.PropertyQuery) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesProperties(props, query map[string]any) bool {
	for k, v := range query {
		if props[k] != v {
			return false
		}
	}
	return true
}

// VectorQueryNodes ranks nodes of the given label/scope by Euclidean
// distance to embedding. It is a linear scan suitable for tests, not scale.
func (s *Store) VectorQueryNodes(_ context.Context, scope, label string, embedding []float32, topK int) ([]graph.NodeMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []graph.NodeMatch
	for _, n := range s.nodes {
		if n.Scope != scope || n.Label != label || n.Embedding == nil {
			continue
		}
		matches = append(matches, graph.NodeMatch{Node: n, Distance: euclidean(n.Embedding, embedding)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func euclidean(a, b []float32) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}

func (s *Store) Neighbors(_ context.Context, scope, nodeID string, direction string, linkTypes []string) ([]graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	allowed := func(t string) bool {
		if len(linkTypes) == 0 {
			return true
		}
		for _, lt := range linkTypes {
			if lt == t {
				return true
			}
		}
		return false
	}

	var ids []string
	for _, l := range s.links {
		if l.Scope != scope || !allowed(l.Type) {
			continue
		}
		switch direction {
		case "out":
			if l.SourceID == nodeID {
				ids = append(ids, l.TargetID)
			}
		case "in":
			if l.TargetID == nodeID {
				ids = append(ids, l.SourceID)
			}
		default:
			if l.SourceID == nodeID {
				ids = append(ids, l.TargetID)
			}
			if l.TargetID == nodeID {
				ids = append(ids, l.SourceID)
			}
		}
	}

	var out []graph.Node
	for _, id := range ids {
		if n, ok := s.nodes[nodeKey{scope, id}]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Store) AggregateConnectivity(_ context.Context, scope string) (int, float64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outDegree := make(map[string]int)
	var totalWeight float64
	var linkCount int
	for _, l := range s.links {
		if l.Scope != scope {
			continue
		}
		outDegree[l.SourceID]++
		totalWeight += l.EffectiveWeight("")
		linkCount++
	}

	maxDegree := 0
	for _, d := range outDegree {
		if d > maxDegree {
			maxDegree = d
		}
	}

	activeCount := 0
	for _, n := range s.nodes {
		if n.Scope == scope && n.LogWeight != 0 {
			activeCount++
		}
	}

	meanWeight := 0.0
	if linkCount > 0 {
		meanWeight = totalWeight / float64(linkCount)
	}
	return maxDegree, meanWeight, activeCount, nil
}

var _ graph.Store = (*Store)(nil)
