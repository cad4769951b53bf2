// Package entitycontext resolves the ordered list of active sub-entities
// for a TRACE, used by WeightLearner, MembershipStore, and FormationRouter
// to decide which local-view overlays and memberships apply.
package entitycontext

import (
	"context"
	"sync"
	"time"

	"github.com/hearthgraph/substrate/internal/trace"
	"github.com/hearthgraph/substrate/pkg/graph"
)

// cacheTTL bounds how stale a cached working-memory selection set may be
// before it is no longer eligible as a fallback.
const cacheTTL = 60 * time.Second

// subEntityLabel is the node label sub-entities carry in the graph.
const subEntityLabel = "SubEntity"

// Resolver produces the active-entity list per TRACE following a strict
// priority order: the freshest working-memory selection, explicit
// "[entity: X]" annotations in the TRACE text, a single dominant sub-entity
// by energy/threshold ratio, a recent cached WM set, or an empty list.
type Resolver struct {
	store graph.Store

	mu       sync.Mutex
	cachedWM []string
	cachedAt time.Time
}

// New creates a Resolver backed by store.
func New(store graph.Store) *Resolver {
	return &Resolver{store: store}
}

// SetWMEntities records the most recent working-memory selection set. An
// empty set is ignored: neither the cached set nor its timestamp changes,
// so step 4's recency fallback continues to see the last non-empty
// selection within the TTL.
func (r *Resolver) SetWMEntities(entities []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(entities) == 0 {
		return
	}
	cp := make([]string, len(entities))
	copy(cp, entities)
	r.cachedWM = cp
	r.cachedAt = time.Now()
}

// recentWM returns the cached WM set and whether it is within the TTL.
func (r *Resolver) recentWM() ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cachedWM) == 0 {
		return nil, false
	}
	return r.cachedWM, time.Since(r.cachedAt) < cacheTTL
}

// Resolve returns the active-entity list for a TRACE in scope, given the
// TRACE's parsed tokenization. currentWM is the working-memory selection
// set observed for this exact call, if any (pass nil if set_wm_entities was
// not invoked for this TRACE).
func (r *Resolver) Resolve(ctx context.Context, scope string, parsed trace.Parsed, currentWM []string) ([]string, error) {
	// 1. Freshest WM selection set for this call.
	if len(currentWM) > 0 {
		r.SetWMEntities(currentWM)
		return currentWM, nil
	}

	// 2. Explicit [entity: X] annotations, ordered by appearance.
	if len(parsed.EntityOrder) > 0 {
		return parsed.EntityOrder, nil
	}

	// 3. A single dominant sub-entity by energy/threshold ratio > 1.
	dominant, err := r.dominantSubEntity(ctx, scope)
	if err != nil {
		return nil, err
	}
	if dominant != "" {
		return []string{dominant}, nil
	}

	// 4. Recent cached WM set.
	if cached, fresh := r.recentWM(); fresh {
		return cached, nil
	}

	// 5. Empty list: global-only learning.
	return nil, nil
}

// dominantSubEntity queries SubEntity nodes in scope and returns the id of
// the single entity whose energy/threshold ratio is both the highest and
// strictly greater than 1, or "" if none qualifies.
func (r *Resolver) dominantSubEntity(ctx context.Context, scope string) (string, error) {
	nodes, err := r.store.FindNodes(ctx, graph.NodeFilter{Scope: scope, Label: subEntityLabel})
	if err != nil {
		return "", err
	}

	var (
		bestID    string
		bestRatio float64
	)
	for _, n := range nodes {
		energy, _ := n.Properties["energy"].(float64)
		threshold, _ := n.Properties["threshold"].(float64)
		if threshold <= 0 {
			continue
		}
		ratio := energy / threshold
		if ratio > bestRatio {
			bestRatio = ratio
			bestID = n.ID
		}
	}
	if bestRatio > 1 {
		return bestID, nil
	}
	return "", nil
}
