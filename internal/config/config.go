// Package config provides the configuration schema and loader for termsub.
//
// Configuration is read from a YAML file (see [Load]) and can be overridden
// from the environment with [ApplyEnv]. Defaults match a stand-alone
// deployment: a single terms document under data/, regex and fuzzy matching
// on, partial transcripts left untouched.
package config

import "log/slog"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the corresponding [slog.Level]. Unknown or empty
// values map to [slog.LevelInfo].
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// MaxFuzzyDistance is the largest accepted terms.fuzzy_max_dist. Larger
// thresholds match almost any short token.
const MaxFuzzyDistance = 3

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Terms  TermsConfig  `yaml:"terms"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or JSON log output.
	LogFormat LogFormat `yaml:"log_format"`
}

// TermsConfig configures the term store and how replacements are applied to
// transcripts.
type TermsConfig struct {
	// File is the path of the JSON terms document.
	File string `yaml:"file"`

	// MaxEntries caps the number of entries the store holds.
	MaxEntries int `yaml:"max_entries"`

	// CaseSensitive disables case-insensitive matching.
	CaseSensitive bool `yaml:"case_sensitive"`

	// EnableRegex runs regex entries on final transcripts.
	EnableRegex bool `yaml:"enable_regex"`

	// EnableFuzzy runs the single-token fuzzy pass on final transcripts.
	EnableFuzzy bool `yaml:"enable_fuzzy"`

	// FuzzyMaxDist is the largest edit distance accepted as a fuzzy match.
	FuzzyMaxDist int `yaml:"fuzzy_max_dist"`

	// ApplyToPartials runs exact entries on not-yet-final transcripts too.
	// Regex and fuzzy matching never run on partials.
	ApplyToPartials bool `yaml:"apply_to_partials"`

	// Watch reloads the document when it is changed on disk.
	Watch bool `yaml:"watch"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
			LogFormat:  LogFormatText,
		},
		Terms: TermsConfig{
			File:            "data/terms.json",
			MaxEntries:      10000,
			CaseSensitive:   false,
			EnableRegex:     true,
			EnableFuzzy:     true,
			FuzzyMaxDist:    1,
			ApplyToPartials: false,
			Watch:           true,
		},
	}
}
