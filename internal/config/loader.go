package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. Keys absent from the file keep their [Default] values.
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

// LoadFromReader decodes a YAML config from r over [Default] and validates
// the result. Unknown keys are rejected. An empty input yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LookupFunc has the signature of [os.LookupEnv].
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg with the recognised environment variables:
//
//	TERMS_FILE, TERMS_MAX_ENTRIES, TERMS_CASE_SENSITIVE, TERMS_ENABLE_REGEX,
//	TERMS_ENABLE_FUZZY, TERMS_FUZZY_MAX_DIST, TERMS_APPLY_TO_PARTIALS,
//	TERMS_WATCH, LOG_LEVEL, LOG_FORMAT, LISTEN_ADDR
//
// Variables that are unset or blank are ignored. Values that cannot be
// parsed are reported together; cfg is still updated with the valid ones.
// The result is not validated; call [Validate] afterwards.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
			return
		}
		*dst = n
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := parseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}

	str("TERMS_FILE", &cfg.Terms.File)
	integer("TERMS_MAX_ENTRIES", &cfg.Terms.MaxEntries)
	boolean("TERMS_CASE_SENSITIVE", &cfg.Terms.CaseSensitive)
	boolean("TERMS_ENABLE_REGEX", &cfg.Terms.EnableRegex)
	boolean("TERMS_ENABLE_FUZZY", &cfg.Terms.EnableFuzzy)
	integer("TERMS_FUZZY_MAX_DIST", &cfg.Terms.FuzzyMaxDist)
	boolean("TERMS_APPLY_TO_PARTIALS", &cfg.Terms.ApplyToPartials)
	boolean("TERMS_WATCH", &cfg.Terms.Watch)
	str("LISTEN_ADDR", &cfg.Server.ListenAddr)

	var level, format string
	str("LOG_LEVEL", &level)
	str("LOG_FORMAT", &format)
	if level != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(level))
	}
	if format != "" {
		cfg.Server.LogFormat = LogFormat(strings.ToLower(format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %w", errors.Join(errs...))
	}
	return nil
}

// parseBool accepts the spellings commonly used in environment files.
func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on", "y":
		return true, nil
	case "0", "false", "no", "off", "n":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", v)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	// Terms
	if strings.TrimSpace(cfg.Terms.File) == "" {
		errs = append(errs, errors.New("terms.file is required"))
	}
	if cfg.Terms.MaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("terms.max_entries %d must be positive", cfg.Terms.MaxEntries))
	}
	if cfg.Terms.FuzzyMaxDist < 0 || cfg.Terms.FuzzyMaxDist > MaxFuzzyDistance {
		errs = append(errs, fmt.Errorf("terms.fuzzy_max_dist %d is out of range [0, %d]", cfg.Terms.FuzzyMaxDist, MaxFuzzyDistance))
	}

	return errors.Join(errs...)
}
