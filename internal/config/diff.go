package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     string

	WeightsChanged    bool
	MembershipChanged bool
	StimulusChanged   bool
	HealthChanged     bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; changes to
// graph.postgres_dsn or embeddings.name require a process restart and are
// deliberately not reported here.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Weights != new.Weights {
		d.WeightsChanged = true
	}

	if old.Membership != new.Membership {
		d.MembershipChanged = true
	}

	if old.Stimulus != new.Stimulus {
		d.StimulusChanged = true
	}

	if old.Health != new.Health {
		d.HealthChanged = true
	}

	return d
}
