package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/termsub/internal/config"
)

func mapLookup(env map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	err := config.ApplyEnv(cfg, mapLookup(map[string]string{
		"TERMS_FILE":              " /data/t.json ",
		"TERMS_MAX_ENTRIES":       "42",
		"TERMS_CASE_SENSITIVE":    "yes",
		"TERMS_ENABLE_REGEX":      "0",
		"TERMS_ENABLE_FUZZY":      "off",
		"TERMS_FUZZY_MAX_DIST":    "2",
		"TERMS_APPLY_TO_PARTIALS": "TRUE",
		"TERMS_WATCH":             "n",
		"LOG_LEVEL":               "DEBUG",
		"LOG_FORMAT":              "json",
		"LISTEN_ADDR":             "127.0.0.1:7000",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	want := config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:7000", LogLevel: config.LogDebug, LogFormat: config.LogFormatJSON},
		Terms: config.TermsConfig{
			File:            "/data/t.json",
			MaxEntries:      42,
			CaseSensitive:   true,
			EnableRegex:     false,
			EnableFuzzy:     false,
			FuzzyMaxDist:    2,
			ApplyToPartials: true,
			Watch:           false,
		},
	}
	if *cfg != want {
		t.Errorf("config = %+v, want %+v", *cfg, want)
	}
}

func TestApplyEnv_BlankAndUnsetAreIgnored(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if err := config.ApplyEnv(cfg, mapLookup(map[string]string{"TERMS_FILE": "  ", "TERMS_MAX_ENTRIES": ""})); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if *cfg != *config.Default() {
		t.Errorf("config = %+v, want defaults", *cfg)
	}
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	err := config.ApplyEnv(cfg, mapLookup(map[string]string{
		"TERMS_MAX_ENTRIES":  "many",
		"TERMS_ENABLE_REGEX": "perhaps",
		"TERMS_FILE":         "kept.json",
	}))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"TERMS_MAX_ENTRIES", "TERMS_ENABLE_REGEX"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
	if cfg.Terms.File != "kept.json" {
		t.Errorf("valid override not applied: file = %q", cfg.Terms.File)
	}
	if cfg.Terms.MaxEntries != 10000 || !cfg.Terms.EnableRegex {
		t.Errorf("invalid overrides changed the config: %+v", cfg.Terms)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("terms:\n  max_entries: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Terms.MaxEntries != 7 {
		t.Errorf("max_entries = %d, want 7", cfg.Terms.MaxEntries)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing): expected error")
	}
}

func TestLoad_InvalidValueNamesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("terms:\n  fuzzy_max_dist: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Errorf("Load: err = %v, want it to name %s", err, path)
	}
}
