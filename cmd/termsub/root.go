package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/termsub/internal/config"
	"github.com/MrWong99/termsub/internal/observe"
	"github.com/MrWong99/termsub/internal/terms"
	"github.com/MrWong99/termsub/internal/transcript"
)

// cli carries the global flags and the state shared by all subcommands.
type cli struct {
	configPath string
	termsFile  string

	// lookup reads environment overrides. nil means os.LookupEnv.
	lookup config.LookupFunc

	// setDefaultLogger installs the configured logger with slog.SetDefault.
	setDefaultLogger bool

	cfg       *config.Config
	level     *slog.LevelVar
	log       *slog.Logger
	metrics   *observe.Metrics
	logOutput io.Writer
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "termsub",
		Short: "Domain-term substitution for speech-to-text transcripts",
		Long: `termsub keeps a dictionary of domain terms in a JSON document and rewrites
transcripts with it: exact phrases, regular expressions and single-word
fuzzy matches, in priority order.

Configuration sources (in order of precedence):
1. Command line flags (--terms-file)
2. Environment variables (TERMS_*, LOG_LEVEL, LOG_FORMAT, LISTEN_ADDR)
3. The YAML config file (--config, optional)
4. Default values

Examples:
  termsub add --src "cube control" --dst kubectl
  termsub list
  echo "we deploy with cube control" | termsub replace -
  termsub serve`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&c.termsFile, "terms-file", "", "path to the terms document (overrides terms.file)")

	root.AddCommand(
		newListCmd(c),
		newStatsCmd(c),
		newAddCmd(c),
		newUpdateCmd(c),
		newDeleteCmd(c),
		newImportCmd(c),
		newExportCmd(c),
		newReplaceCmd(c),
		newReloadCmd(c),
		newSaveCmd(c),
		newServeCmd(c),
	)
	return root
}

// setup loads the configuration and sets up logging. A missing config file
// is only tolerated when --config was not given explicitly.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	switch {
	case errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
	case err != nil:
		return err
	}
	if err := config.ApplyEnv(cfg, c.lookup); err != nil {
		return err
	}
	if c.termsFile != "" {
		cfg.Terms.File = c.termsFile
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.cfg = cfg

	c.level = new(slog.LevelVar)
	c.level.Set(cfg.Server.LogLevel.SlogLevel())
	sink := c.logOutput
	if sink == nil {
		sink = cmd.ErrOrStderr()
	}
	c.log = newLogger(sink, cfg.Server.LogFormat, c.level)
	if c.setDefaultLogger {
		slog.SetDefault(c.log)
	}
	return nil
}

// openStore opens the configured terms document.
func (c *cli) openStore() (*terms.Store, error) {
	return terms.Open(c.cfg.Terms.File,
		terms.WithMaxEntries(c.cfg.Terms.MaxEntries),
		terms.WithLogger(c.log),
		terms.WithMetrics(c.metrics),
	)
}

func (c *cli) pipeline(store transcript.Replacer) *transcript.Pipeline {
	return transcript.NewPipeline(store,
		transcript.WithOptions(transcript.OptionsFromConfig(c.cfg.Terms)),
	)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
