// Package namespace derives and carries the hierarchical write-access
// namespace (L1 personal, L2 organizational, L3 ecosystem, L4 protocol)
// that pkg/graph/writegate enforces against.
package namespace

import (
	"context"
	"strings"
)

// Level is one of the four namespace tiers, ordered from narrowest
// (personal) to widest (protocol-wide) scope.
type Level string

const (
	LevelPersonal       Level = "L1"
	LevelOrganizational Level = "L2"
	LevelEcosystem      Level = "L3"
	LevelProtocol       Level = "L4"
	LevelUnknown        Level = "unknown"
)

// Namespace pairs a Level with the physical graph name it was derived
// from. Two namespaces are equal when both Level and Graph match.
type Namespace struct {
	Level Level
	Graph string
}

func (n Namespace) String() string {
	return string(n.Level) + ":" + n.Graph
}

// ForGraph maps a physical graph name to its namespace using the same
// prefix rules as the rest of the deployment's graph naming convention.
// An empty name maps to LevelUnknown.
func ForGraph(graphName string) Namespace {
	if graphName == "" {
		return Namespace{Level: LevelUnknown, Graph: graphName}
	}
	lower := strings.ToLower(graphName)

	switch {
	case strings.HasPrefix(lower, "citizen_"):
		return Namespace{Level: LevelPersonal, Graph: graphName}
	case lower == "org_substrate" || strings.HasPrefix(lower, "org_") || strings.HasPrefix(lower, "collective_"):
		return Namespace{Level: LevelOrganizational, Graph: graphName}
	case lower == "ecosystem_public" || strings.HasPrefix(lower, "ecosystem_"):
		return Namespace{Level: LevelEcosystem, Graph: graphName}
	case lower == "protocol":
		return Namespace{Level: LevelProtocol, Graph: graphName}
	default:
		return Namespace{Level: LevelUnknown, Graph: graphName}
	}
}

type contextKey struct{}

// WithNamespace returns a copy of ctx carrying ns, retrievable via
// [FromContext].
func WithNamespace(ctx context.Context, ns Namespace) context.Context {
	return context.WithValue(ctx, contextKey{}, ns)
}

// FromContext returns the namespace carried by ctx, or the zero
// Namespace (empty Level and Graph) and false if none was set.
func FromContext(ctx context.Context) (Namespace, bool) {
	ns, ok := ctx.Value(contextKey{}).(Namespace)
	return ns, ok
}
