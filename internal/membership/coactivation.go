package membership

import (
	"context"
	"fmt"
	"strings"

	"github.com/hearthgraph/substrate/internal/telemetry"
	"github.com/hearthgraph/substrate/pkg/graph"
)

// CoactivationUpdater folds working-memory selection events into the
// COACTIVATES_WITH pairwise EMA fabric.
type CoactivationUpdater struct {
	backend graph.MembershipBackend
	alpha   float64
	sink    telemetry.Sink
}

// NewCoactivationUpdater creates an updater. alpha is the EMA rate for both
// both_ema and either_ema.
func NewCoactivationUpdater(backend graph.MembershipBackend, alpha float64, sink telemetry.Sink) *CoactivationUpdater {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	return &CoactivationUpdater{backend: backend, alpha: alpha, sink: sink}
}

// Observe takes the set of sub-entities active in one working-memory
// selection window and folds every unordered pair into the fabric. A single
// active entity (or none) produces no pairs and is a no-op, not an error.
func (u *CoactivationUpdater) Observe(ctx context.Context, scope string, activeEntities []string) error {
	pairs := unorderedPairs(activeEntities)
	if len(pairs) == 0 {
		return nil
	}

	updates := make([]graph.CoactivationUpdate, len(pairs))
	for i, p := range pairs {
		updates[i] = graph.CoactivationUpdate{EntityA: p[0], EntityB: p[1], Scope: scope, Alpha: u.alpha}
	}
	if err := u.backend.UpsertCoactivations(ctx, updates); err != nil {
		return fmt.Errorf("membership: observe coactivations: %w", err)
	}
	u.sink.Emit(telemetry.Event{
		Name:   "coactivation.observed",
		Fields: map[string]any{"scope": scope, "pairs": len(pairs)},
	})
	return nil
}

// unorderedPairs returns every distinct pair from entities, each ordered
// lexicographically (a < b) to match the coactivations table's CHECK
// constraint, with duplicate entity ids collapsed first.
func unorderedPairs(entities []string) [][2]string {
	seen := make(map[string]bool, len(entities))
	unique := make([]string, 0, len(entities))
	for _, e := range entities {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		unique = append(unique, e)
	}

	var pairs [][2]string
	for i := 0; i < len(unique); i++ {
		for j := i + 1; j < len(unique); j++ {
			a, b := unique[i], unique[j]
			if strings.Compare(a, b) > 0 {
				a, b = b, a
			}
			pairs = append(pairs, [2]string{a, b})
		}
	}
	return pairs
}
