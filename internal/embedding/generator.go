// Package embedding turns formation fields into the (embeddable_text,
// embedding) pair attached to every node and link, via a single fixed text
// encoder exposed through [pkg/provider/embeddings.Provider].
package embedding

import (
	"context"
	"log/slog"

	"github.com/hearthgraph/substrate/pkg/provider/embeddings"
)

// Dimensions is the fixed embedding width used throughout the substrate.
const Dimensions = 768

// Generator produces embeddable text and embeddings for formation fields
// deterministically: the same (formationType, fields) pair always yields
// the same embeddable_text, and (absent provider nondeterminism) the same
// embedding.
type Generator struct {
	provider embeddings.Provider
}

// New wraps provider. provider.Dimensions() should be [Dimensions]; a
// mismatch is not an error here (the graph schema enforces the column
// width), but callers should configure providers at that width.
func New(provider embeddings.Provider) *Generator {
	return &Generator{provider: provider}
}

// Generate returns the embeddable text built from fields (see
// [BuildEmbeddableText]) and its embedding. A provider error yields the
// zero vector and a logged warning rather than an error return, per the
// encoder's narrow contract: callers never need to handle embedding
// failure as a formation-blocking error.
func (g *Generator) Generate(ctx context.Context, formationType string, fields map[string]string) (string, []float32) {
	text := BuildEmbeddableText(formationType, fields)
	if text == "" {
		return text, make([]float32, Dimensions)
	}

	vec, err := g.provider.Embed(ctx, text)
	if err != nil {
		slog.Warn("embedding generation failed, using zero vector",
			"formation_type", formationType, "err", err)
		return text, make([]float32, Dimensions)
	}
	return text, vec
}

// EmbedText embeds raw text directly, without the formation field templates
// used by Generate. Used by stimulus injection, which embeds free-form
// input rather than a structured formation block. Same zero-vector-on-error
// contract as Generate.
func (g *Generator) EmbedText(ctx context.Context, text string) []float32 {
	if text == "" {
		return make([]float32, Dimensions)
	}
	vec, err := g.provider.Embed(ctx, text)
	if err != nil {
		slog.Warn("embedding generation failed, using zero vector", "err", err)
		return make([]float32, Dimensions)
	}
	return vec
}
