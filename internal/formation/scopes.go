package formation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hearthgraph/substrate/internal/config"
)

// ErrUnknownScope is returned when a formation's scope field cannot be
// resolved to a physical graph name.
var ErrUnknownScope = errors.New("formation: unknown scope")

// ScopeRegistry resolves a formation's declared scope field to the
// physical graph name the node or link should be written into. Personal
// scopes carry the citizen id (e.g. "personal:alice"); organizational,
// ecosystem, and protocol graphs are configured singletons per deployment.
type ScopeRegistry struct {
	cfg config.NamespacesConfig
}

// NewScopeRegistry creates a ScopeRegistry bound to cfg.
func NewScopeRegistry(cfg config.NamespacesConfig) *ScopeRegistry {
	return &ScopeRegistry{cfg: cfg}
}

// GraphName resolves scope (as read from a formation block's "scope"
// field) to the physical graph name writes should target.
func (s *ScopeRegistry) GraphName(scope string) (string, error) {
	kind, arg, _ := strings.Cut(scope, ":")
	switch kind {
	case "personal":
		if arg == "" {
			return "", fmt.Errorf("%w: personal scope missing citizen id: %q", ErrUnknownScope, scope)
		}
		return s.cfg.CitizenGraphPrefix + arg, nil
	case "organizational":
		return s.cfg.OrgGraph, nil
	case "ecosystem":
		return s.cfg.EcosystemGraph, nil
	case "protocol":
		return s.cfg.ProtocolGraph, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
}

// IsPersonal reports whether scope names a personal (L1) graph.
func IsPersonal(scope string) bool {
	return strings.HasPrefix(scope, "personal:")
}
