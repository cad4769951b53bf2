package config_test

import (
	"testing"

	"github.com/hearthgraph/substrate/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:  config.ServerConfig{LogLevel: "info"},
		Weights: config.WeightConfig{AlphaGlobal: 0.2},
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.WeightsChanged {
		t.Error("expected WeightsChanged=false for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: "info"}}
	updated := &config.Config{Server: config.ServerConfig{LogLevel: "debug"}}

	d := config.Diff(old, updated)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != "debug" {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_WeightsChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Weights: config.WeightConfig{AlphaGlobal: 0.2}}
	updated := &config.Config{Weights: config.WeightConfig{AlphaGlobal: 0.3}}

	d := config.Diff(old, updated)
	if !d.WeightsChanged {
		t.Error("expected WeightsChanged=true")
	}
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false")
	}
}

func TestDiff_StimulusAndHealthChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Stimulus: config.StimulusConfig{BaseBudget: 1.0},
		Health:   config.HealthConfig{IntervalSeconds: 300},
	}
	updated := &config.Config{
		Stimulus: config.StimulusConfig{BaseBudget: 2.0},
		Health:   config.HealthConfig{IntervalSeconds: 60},
	}

	d := config.Diff(old, updated)
	if !d.StimulusChanged {
		t.Error("expected StimulusChanged=true")
	}
	if !d.HealthChanged {
		t.Error("expected HealthChanged=true")
	}
	if d.MembershipChanged {
		t.Error("expected MembershipChanged=false")
	}
}
