package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"embeddings": {"openai", "ollama", "mock"},
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-valued tunables with the engine's defaults so
// that a minimal config file remains operable.
func applyDefaults(cfg *Config) {
	if cfg.Weights.AlphaGlobal == 0 {
		cfg.Weights.AlphaGlobal = 0.2
	}
	if cfg.Weights.AlphaLocal == 0 {
		cfg.Weights.AlphaLocal = 0.8
	}
	if cfg.Weights.OverlayClamp == 0 {
		cfg.Weights.OverlayClamp = 3.0
	}
	if cfg.Weights.AdaptiveTauHours == 0 {
		cfg.Weights.AdaptiveTauHours = 24.0
	}
	if cfg.Membership.TopK == 0 {
		cfg.Membership.TopK = 10
	}
	if cfg.Membership.CoactivationTauHours == 0 {
		cfg.Membership.CoactivationTauHours = 24.0
	}
	if cfg.Stimulus.MatchesPerLabel == 0 {
		cfg.Stimulus.MatchesPerLabel = 5
	}
	if cfg.Health.HistoryDays == 0 {
		cfg.Health.HistoryDays = 30
	}
	if cfg.Health.HighwayTopN == 0 {
		cfg.Health.HighwayTopN = 20
	}
	if cfg.Health.IntervalSeconds == 0 {
		cfg.Health.IntervalSeconds = 300
	}
	if cfg.Health.OrphanWeightThreshold == 0 {
		cfg.Health.OrphanWeightThreshold = 0.2
	}
	if cfg.Health.CoherenceSampleSize == 0 {
		cfg.Health.CoherenceSampleSize = 20
	}
	if cfg.Graph.WriteRetries == 0 {
		cfg.Graph.WriteRetries = 2
	}
	if cfg.Reinforce.MaxSeats == 0 {
		cfg.Reinforce.MaxSeats = 32
	}
	if cfg.Telemetry.EventBufferSize == 0 {
		cfg.Telemetry.EventBufferSize = 256
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !slices.Contains(validLogLevels, cfg.Server.LogLevel) {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: %v", cfg.Server.LogLevel, validLogLevels))
	}

	validateProviderName("embeddings", cfg.Embeddings.Name)

	if cfg.Embeddings.Name != "" && cfg.Embeddings.Dimensions <= 0 {
		slog.Warn("embeddings provider is configured but embeddings.dimensions is not set; defaulting to graph.embedding_dimensions")
	}
	if cfg.Embeddings.Dimensions > 0 && cfg.Graph.EmbeddingDimensions > 0 &&
		cfg.Embeddings.Dimensions != cfg.Graph.EmbeddingDimensions {
		errs = append(errs, fmt.Errorf("embeddings.dimensions (%d) does not match graph.embedding_dimensions (%d)",
			cfg.Embeddings.Dimensions, cfg.Graph.EmbeddingDimensions))
	}

	if cfg.Graph.PostgresDSN == "" {
		errs = append(errs, errors.New("graph.postgres_dsn is required"))
	}
	if cfg.Graph.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("graph.embedding_dimensions must be positive"))
	}

	if cfg.Namespaces.CitizenGraphPrefix == "" {
		slog.Warn("namespaces.citizen_graph_prefix is empty; personal graphs will not be distinguishable by name")
	}

	if cfg.Weights.AlphaGlobal <= 0 || cfg.Weights.AlphaGlobal > 1 {
		errs = append(errs, fmt.Errorf("weights.alpha_global %.2f must be in (0, 1]", cfg.Weights.AlphaGlobal))
	}
	if cfg.Weights.AlphaLocal <= 0 || cfg.Weights.AlphaLocal > 1 {
		errs = append(errs, fmt.Errorf("weights.alpha_local %.2f must be in (0, 1]", cfg.Weights.AlphaLocal))
	}

	if cfg.Membership.TopK <= 0 {
		errs = append(errs, errors.New("membership.top_k must be positive"))
	}

	if cfg.Stimulus.BaseBudget < 0 {
		errs = append(errs, errors.New("stimulus.base_budget must not be negative"))
	}

	for grade, quota := range cfg.Reinforce.GradeQuotas {
		if quota < 0 {
			errs = append(errs, fmt.Errorf("reinforcement.grade_quotas[%q] must not be negative", grade))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
