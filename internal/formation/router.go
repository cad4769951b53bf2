// Package formation turns tokenized formation blocks (see internal/trace)
// into graph writes: resolving scope to a physical graph, filling in
// universal defaults, generating embeddings, stubbing missing link
// endpoints, and wiring the personal membership edge.
package formation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hearthgraph/substrate/internal/embedding"
	"github.com/hearthgraph/substrate/internal/entitycontext"
	"github.com/hearthgraph/substrate/internal/namespace"
	"github.com/hearthgraph/substrate/internal/telemetry"
	"github.com/hearthgraph/substrate/internal/trace"
	"github.com/hearthgraph/substrate/pkg/graph"
)

// defaultReinforcementWeight is the value assigned to a new node's
// reinforcement_weight property when the formation block did not supply
// one.
const defaultReinforcementWeight = 0.5

// defaultCreatedBy is the created_by attribution for formations that did
// not name an author.
const defaultCreatedBy = "substrate"

// stubConfidence is the confidence assigned to a Concept node auto-created
// to stand in for a missing link endpoint.
const stubConfidence = 0.3

// QAReason names why a formation produced a QA task instead of (or in
// addition to) a clean write.
type QAReason string

const (
	QAReasonMissingScope       QAReason = "missing_scope"
	QAReasonUnknownScope       QAReason = "unknown_scope"
	QAReasonUnknownType        QAReason = "unknown_type"
	QAReasonIncompleteMetadata QAReason = "incomplete_metadata"
	QAReasonWriteNotConfirmed  QAReason = "write_not_confirmed"
)

// QATask records a formation that needs human or automated follow-up. It
// never blocks the formation's write (except for MissingScope/UnknownType/
// UnknownScope, which have nothing to write).
type QATask struct {
	Reason        QAReason
	FormationType string
	Detail        string
	Fields        map[string]string
}

// Result accumulates everything a ProcessTrace call produced.
type Result struct {
	Nodes   []graph.Node
	Links   []graph.Link
	QATasks []QATask
}

// Router routes formation blocks to graph writes. store should be wrapped
// by writegate.Gate; Router asserts the namespace for each write on ctx
// itself, since it is the one component that knows the formation's
// declared scope.
type Router struct {
	store    graph.Store
	scopes   *ScopeRegistry
	embedGen *embedding.Generator
	entities *entitycontext.Resolver
	sink     telemetry.Sink
}

// NewRouter creates a Router. sink may be nil (defaults to telemetry.NoopSink).
func NewRouter(store graph.Store, scopes *ScopeRegistry, embedGen *embedding.Generator, entities *entitycontext.Resolver, sink telemetry.Sink) *Router {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	return &Router{store: store, scopes: scopes, embedGen: embedGen, entities: entities, sink: sink}
}

// ProcessTrace routes every formation block tokenized from a single TRACE.
// currentWM is forwarded to the entity-context resolver so the personal
// membership edge (step 7) can be created against the right primary entity.
func (r *Router) ProcessTrace(ctx context.Context, parsed trace.Parsed, currentWM []string) Result {
	var res Result

	for _, block := range parsed.NodeFormations {
		node, qa, err := r.processNodeFormation(ctx, block, parsed, currentWM)
		if qa != nil {
			res.QATasks = append(res.QATasks, *qa)
		}
		if err != nil {
			slog.Warn("node formation failed", "type", block.Type, "err", err)
			continue
		}
		if node != nil {
			res.Nodes = append(res.Nodes, *node)
		}
	}

	for _, block := range parsed.LinkFormations {
		link, qaTasks, err := r.processLinkFormation(ctx, block)
		res.QATasks = append(res.QATasks, qaTasks...)
		if err != nil {
			slog.Warn("link formation failed", "type", block.Type, "err", err)
			continue
		}
		if link != nil {
			res.Links = append(res.Links, *link)
		}
	}

	return res
}

func (r *Router) processNodeFormation(ctx context.Context, block trace.FormationBlock, parsed trace.Parsed, currentWM []string) (*graph.Node, *QATask, error) {
	scope := block.Fields["scope"]
	if scope == "" {
		return nil, &QATask{Reason: QAReasonMissingScope, FormationType: block.Type, Fields: block.Fields}, nil
	}

	graphName, err := r.scopes.GraphName(scope)
	if err != nil {
		return nil, &QATask{Reason: QAReasonUnknownScope, FormationType: block.Type, Detail: err.Error(), Fields: block.Fields}, nil
	}

	if !IsKnownNodeLabel(block.Type) {
		return nil, &QATask{Reason: QAReasonUnknownType, FormationType: block.Type, Fields: block.Fields}, nil
	}

	fields := applyUniversalDefaults(block.Type, block.Fields)

	text, vec := r.embedGen.Generate(ctx, block.Type, fields)

	id := fields["id"]
	if id == "" {
		id = uuid.NewString()
	}

	props := stringFieldsToProperties(fields)
	props["embeddable_text"] = text

	node := graph.Node{
		ID:         id,
		Label:      block.Type,
		Scope:      graphName,
		Properties: props,
		Embedding:  vec,
		ValidAt:    time.Now().UTC(),
		CreatedAt:  time.Now().UTC(),
	}

	writeCtx := namespace.WithNamespace(ctx, namespace.ForGraph(graphName))
	confirmed, err := r.store.UpsertNode(writeCtx, node)
	if err != nil {
		return nil, nil, fmt.Errorf("formation: upsert node: %w", err)
	}
	if !confirmed {
		qa := &QATask{Reason: QAReasonWriteNotConfirmed, FormationType: block.Type, Fields: fields}
		return &node, qa, nil
	}

	if IsPersonal(scope) {
		if err := r.createMembershipEdge(writeCtx, graphName, node.ID, parsed, currentWM); err != nil {
			slog.Warn("membership edge creation failed", "node", node.ID, "err", err)
		}
	}

	return &node, nil, nil
}

// createMembershipEdge wires step 7: when the formation is personal and the
// active-entity set is non-empty, link the new node to the primary entity.
func (r *Router) createMembershipEdge(ctx context.Context, graphName, nodeID string, parsed trace.Parsed, currentWM []string) error {
	active, err := r.entities.Resolve(ctx, graphName, parsed, currentWM)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return nil
	}

	link := graph.Link{
		SourceID: nodeID,
		TargetID: active[0],
		Type:     "MEMBER_OF",
		Scope:    graphName,
		Meta: map[string]any{
			"weight": 1.0,
			"role":   "primary",
		},
		ValidAt:   time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	}
	_, err = r.store.UpsertLink(ctx, link)
	return err
}

func (r *Router) processLinkFormation(ctx context.Context, block trace.FormationBlock) (*graph.Link, []QATask, error) {
	scope := block.Fields["scope"]
	if scope == "" {
		return nil, []QATask{{Reason: QAReasonMissingScope, FormationType: block.Type, Fields: block.Fields}}, nil
	}

	graphName, err := r.scopes.GraphName(scope)
	if err != nil {
		return nil, []QATask{{Reason: QAReasonUnknownScope, FormationType: block.Type, Detail: err.Error(), Fields: block.Fields}}, nil
	}

	if !IsKnownLinkType(block.Type) {
		return nil, []QATask{{Reason: QAReasonUnknownType, FormationType: block.Type, Fields: block.Fields}}, nil
	}

	fields := applyUniversalDefaults(block.Type, block.Fields)
	sourceID, targetID := fields["source_id"], fields["target_id"]

	writeCtx := namespace.WithNamespace(ctx, namespace.ForGraph(graphName))

	var qaTasks []QATask
	for _, endpointID := range []string{sourceID, targetID} {
		if endpointID == "" {
			continue
		}
		if _, err := r.store.GetNode(ctx, graphName, endpointID); err == graph.ErrNotFound {
			if err := r.stubConceptNode(writeCtx, graphName, endpointID); err != nil {
				return nil, qaTasks, fmt.Errorf("formation: stub endpoint %q: %w", endpointID, err)
			}
		}
	}

	meta := stringFieldsToAnyMeta(fields)
	if missing := MissingLinkFields(block.Type, fields); len(missing) > 0 {
		qaTasks = append(qaTasks, QATask{
			Reason:        QAReasonIncompleteMetadata,
			FormationType: block.Type,
			Detail:        fmt.Sprintf("missing fields: %v", missing),
			Fields:        fields,
		})
	}

	link := graph.Link{
		SourceID:  sourceID,
		TargetID:  targetID,
		Type:      block.Type,
		Scope:     graphName,
		Meta:      meta,
		ValidAt:   time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	}

	confirmed, err := r.store.UpsertLink(writeCtx, link)
	if err != nil {
		return nil, qaTasks, fmt.Errorf("formation: upsert link: %w", err)
	}
	if !confirmed {
		qaTasks = append(qaTasks, QATask{Reason: QAReasonWriteNotConfirmed, FormationType: block.Type, Fields: fields})
	}

	return &link, qaTasks, nil
}

// stubConceptNode creates a minimal Concept node standing in for a missing
// link endpoint.
func (r *Router) stubConceptNode(ctx context.Context, graphName, id string) error {
	node := graph.Node{
		ID:    id,
		Label: "Concept",
		Scope: graphName,
		Properties: map[string]any{
			"confidence":       stubConfidence,
			"formation_trigger": "automated_recognition",
		},
		ValidAt:   time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.store.UpsertNode(ctx, node)
	return err
}

// applyUniversalDefaults fills in created_by and reinforcement_weight when
// absent, and maps the generic description field to/from the type-specific
// field named in typeDescriptionField.
func applyUniversalDefaults(formationType string, fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}

	if out["created_by"] == "" {
		out["created_by"] = defaultCreatedBy
	}
	if out["reinforcement_weight"] == "" {
		out["reinforcement_weight"] = fmt.Sprintf("%v", defaultReinforcementWeight)
	}

	if specific, ok := typeDescriptionField[formationType]; ok {
		if out["description"] == "" && out[specific] != "" {
			out["description"] = out[specific]
		} else if out[specific] == "" && out["description"] != "" {
			out[specific] = out["description"]
		}
	}

	return out
}

func stringFieldsToProperties(fields map[string]string) map[string]any {
	props := make(map[string]any, len(fields))
	for k, v := range fields {
		props[k] = v
	}
	return props
}

func stringFieldsToAnyMeta(fields map[string]string) map[string]any {
	meta := make(map[string]any, len(fields))
	for k, v := range fields {
		meta[k] = v
	}
	return meta
}
