package embedding

import (
	"context"

	"github.com/hearthgraph/substrate/internal/resilience"
	"github.com/hearthgraph/substrate/pkg/provider/embeddings"
)

// ResilientProvider wraps a primary embeddings.Provider (and any
// configured fallbacks) behind a resilience.FallbackGroup, so a failing or
// rate-limited embedding backend does not take the whole formation/
// stimulus pipeline down with it. Generate/EmbedText already treat a
// provider error as "use the zero vector"; this wrapper exists so that
// degradation, not the zero vector, is reached for first whenever a
// healthy fallback is available.
type ResilientProvider struct {
	group *resilience.FallbackGroup[embeddings.Provider]
	dims  int
	model string
}

// NewResilientProvider creates a ResilientProvider. primaryName labels the
// primary entry's circuit breaker; dims/model describe the primary
// provider (callers should only mix providers of matching dimensionality).
func NewResilientProvider(primary embeddings.Provider, primaryName string, cfg resilience.FallbackConfig) *ResilientProvider {
	return &ResilientProvider{
		group: resilience.NewFallbackGroup(primary, primaryName, cfg),
		dims:  primary.Dimensions(),
		model: primary.ModelID(),
	}
}

// AddFallback registers an additional provider tried after the primary (and
// any previously added fallbacks) when the one before it fails or its
// circuit is open.
func (p *ResilientProvider) AddFallback(name string, fallback embeddings.Provider) {
	p.group.AddFallback(name, fallback)
}

func (p *ResilientProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return resilience.ExecuteWithResult(p.group, func(inner embeddings.Provider) ([]float32, error) {
		return inner.Embed(ctx, text)
	})
}

func (p *ResilientProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return resilience.ExecuteWithResult(p.group, func(inner embeddings.Provider) ([][]float32, error) {
		return inner.EmbedBatch(ctx, texts)
	})
}

func (p *ResilientProvider) Dimensions() int { return p.dims }
func (p *ResilientProvider) ModelID() string { return p.model }

var _ embeddings.Provider = (*ResilientProvider)(nil)
