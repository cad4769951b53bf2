package formation_test

import (
	"context"
	"testing"

	"github.com/hearthgraph/substrate/internal/config"
	"github.com/hearthgraph/substrate/internal/embedding"
	"github.com/hearthgraph/substrate/internal/entitycontext"
	"github.com/hearthgraph/substrate/internal/formation"
	"github.com/hearthgraph/substrate/internal/namespace"
	"github.com/hearthgraph/substrate/internal/trace"
	"github.com/hearthgraph/substrate/pkg/graph"
	"github.com/hearthgraph/substrate/pkg/graph/mock"
	embmock "github.com/hearthgraph/substrate/pkg/provider/embeddings/mock"
)

func newTestRouter(store graph.Store) *formation.Router {
	scopes := formation.NewScopeRegistry(config.NamespacesConfig{
		CitizenGraphPrefix: "citizen_",
		OrgGraph:           "org_substrate",
	})
	gen := embedding.New(&embmock.Provider{DimensionsValue: embedding.Dimensions})
	resolver := entitycontext.New(store)
	return formation.NewRouter(store, scopes, gen, resolver, nil)
}

func TestProcessTrace_NodeFormationWritten(t *testing.T) {
	store := mock.New()
	r := newTestRouter(store)

	parsed := trace.Parse("[NODE_FORMATION: Realization]\nscope: personal:alice\nname: noticed something\n\n")
	res := r.ProcessTrace(context.Background(), parsed, nil)

	if len(res.Nodes) != 1 {
		t.Fatalf("want 1 node written, got %d (qa=%v)", len(res.Nodes), res.QATasks)
	}
	if res.Nodes[0].Scope != "citizen_alice" {
		t.Errorf("scope: want citizen_alice, got %q", res.Nodes[0].Scope)
	}
	if res.Nodes[0].Properties["created_by"] != "substrate" {
		t.Errorf("created_by default not applied: %v", res.Nodes[0].Properties)
	}
}

func TestProcessTrace_MissingScopeProducesQATask(t *testing.T) {
	store := mock.New()
	r := newTestRouter(store)

	parsed := trace.Parse("[NODE_FORMATION: Realization]\nname: no scope here\n\n")
	res := r.ProcessTrace(context.Background(), parsed, nil)

	if len(res.Nodes) != 0 {
		t.Errorf("want no nodes written, got %d", len(res.Nodes))
	}
	if len(res.QATasks) != 1 || res.QATasks[0].Reason != formation.QAReasonMissingScope {
		t.Errorf("want missing_scope QA task, got %v", res.QATasks)
	}
}

func TestProcessTrace_UnknownTypeProducesQATask(t *testing.T) {
	store := mock.New()
	r := newTestRouter(store)

	parsed := trace.Parse("[NODE_FORMATION: NotARealType]\nscope: personal:alice\n\n")
	res := r.ProcessTrace(context.Background(), parsed, nil)

	if len(res.Nodes) != 0 {
		t.Errorf("want no nodes written, got %d", len(res.Nodes))
	}
	if len(res.QATasks) != 1 || res.QATasks[0].Reason != formation.QAReasonUnknownType {
		t.Errorf("want unknown_type QA task, got %v", res.QATasks)
	}
}

func TestProcessTrace_PersonalScopeCreatesMembershipEdge(t *testing.T) {
	store := mock.New()
	r := newTestRouter(store)

	parsed := trace.Parse("[NODE_FORMATION: Realization]\nscope: personal:alice\nname: x\n\n")
	res := r.ProcessTrace(context.Background(), parsed, []string{"the-strategist"})
	if len(res.Nodes) != 1 {
		t.Fatalf("want 1 node, got %d", len(res.Nodes))
	}

	found := false
	for _, l := range store.UpsertLinkCalls {
		if l.Type == "MEMBER_OF" && l.TargetID == "the-strategist" && l.SourceID == res.Nodes[0].ID {
			found = true
		}
	}
	if !found {
		t.Error("expected a MEMBER_OF edge to the-strategist")
	}
}

func TestProcessTrace_LinkFormationStubsMissingEndpoints(t *testing.T) {
	store := mock.New()
	r := newTestRouter(store)

	parsed := trace.Parse(
		"[LINK_FORMATION: SUPPORTS]\nscope: personal:alice\nsource_id: n1\ntarget_id: n2\nsince: 2026-01-01\n\n",
	)
	res := r.ProcessTrace(context.Background(), parsed, nil)

	if len(res.Links) != 1 {
		t.Fatalf("want 1 link written, got %d (qa=%v)", len(res.Links), res.QATasks)
	}

	ctx := namespace.WithNamespace(context.Background(), namespace.ForGraph("citizen_alice"))
	if _, err := store.GetNode(ctx, "citizen_alice", "n1"); err != nil {
		t.Errorf("expected stub Concept node n1 to exist: %v", err)
	}
	if _, err := store.GetNode(ctx, "citizen_alice", "n2"); err != nil {
		t.Errorf("expected stub Concept node n2 to exist: %v", err)
	}
}

func TestProcessTrace_LinkMissingRequiredMetaStillWritesWithQATask(t *testing.T) {
	store := mock.New()
	r := newTestRouter(store)

	parsed := trace.Parse(
		"[LINK_FORMATION: SUPPORTS]\nscope: personal:alice\nsource_id: n1\ntarget_id: n2\n\n",
	)
	res := r.ProcessTrace(context.Background(), parsed, nil)

	if len(res.Links) != 1 {
		t.Fatalf("want the link to be created despite incomplete metadata, got %d", len(res.Links))
	}

	found := false
	for _, qa := range res.QATasks {
		if qa.Reason == formation.QAReasonIncompleteMetadata {
			found = true
		}
	}
	if !found {
		t.Error("expected an incomplete_metadata QA task")
	}
}
