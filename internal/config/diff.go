package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked as applicable;
// everything else is reported in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ReplaceChanged is true when any option that shapes how terms are
	// applied changed (case sensitivity, regex, fuzzy, partials).
	ReplaceChanged bool

	// RestartRequired lists changed keys that only take effect after a
	// restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	o, n := old.Terms, new.Terms
	if o.CaseSensitive != n.CaseSensitive ||
		o.EnableRegex != n.EnableRegex ||
		o.EnableFuzzy != n.EnableFuzzy ||
		o.FuzzyMaxDist != n.FuzzyMaxDist ||
		o.ApplyToPartials != n.ApplyToPartials {
		d.ReplaceChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.LogFormat != new.Server.LogFormat {
		d.RestartRequired = append(d.RestartRequired, "server.log_format")
	}
	if o.File != n.File {
		d.RestartRequired = append(d.RestartRequired, "terms.file")
	}
	if o.MaxEntries != n.MaxEntries {
		d.RestartRequired = append(d.RestartRequired, "terms.max_entries")
	}
	if o.Watch != n.Watch {
		d.RestartRequired = append(d.RestartRequired, "terms.watch")
	}

	return d
}
