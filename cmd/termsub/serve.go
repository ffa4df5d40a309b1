package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/termsub/internal/config"
	"github.com/MrWong99/termsub/internal/health"
	"github.com/MrWong99/termsub/internal/observe"
	"github.com/MrWong99/termsub/internal/server"
	"github.com/MrWong99/termsub/internal/terms"
	"github.com/MrWong99/termsub/internal/transcript"
)

// version is reported in telemetry. Overridden at build time via -ldflags.
var version = "dev"

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Run the HTTP service. The terms document is watched for external changes
when terms.watch is set, and the config file is re-read while running:
log level and replacement options apply immediately, everything else
needs a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version, SetGlobal: true})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			c.log.Warn("telemetry shutdown", "err", err)
		}
	}()
	c.metrics = observe.DefaultMetrics()

	store, err := c.openStore()
	if err != nil {
		return err
	}
	pipeline := c.pipeline(store)

	c.log.Info("termsub starting",
		"config", c.configPath,
		"terms_file", store.Path(),
		"entries", len(store.List()),
		"listen_addr", c.cfg.Server.ListenAddr,
		"log_level", c.cfg.Server.LogLevel,
	)

	cw := c.watchConfig(pipeline)

	var watcher *terms.Watcher
	if c.cfg.Terms.Watch {
		watcher, err = terms.NewWatcher(store,
			terms.WithWatcherLogger(c.log),
			terms.WithOnReload(func(err error) {
				if err == nil {
					c.log.Info("terms document reloaded", "entries", len(store.List()))
				}
			}),
		)
		if err != nil {
			return err
		}
		defer watcher.Close()
	}

	srv := server.New(store, pipeline,
		server.WithLogger(c.log),
		server.WithMetrics(c.metrics),
		server.WithMetricsHandler(tel.MetricsHandler()),
		server.WithCheckers(health.DocumentChecker("terms", store)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, c.cfg.Server.ListenAddr)
	})
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}
	if cw != nil {
		g.Go(func() error {
			return cw.Run(gctx)
		})
	}

	err = g.Wait()
	c.log.Info("goodbye")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchConfig returns a watcher for the config file, if there is one, that
// applies the settings which can change at runtime.
func (c *cli) watchConfig(p *transcript.Pipeline) *config.Watcher {
	if _, err := os.Stat(c.configPath); err != nil {
		return nil
	}
	w, err := config.NewWatcher(c.configPath, func(old, next *config.Config) {
		d := config.Diff(old, next)
		if d.LogLevelChanged {
			c.level.Set(d.NewLogLevel.SlogLevel())
			c.log.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.ReplaceChanged {
			p.SetOptions(transcript.OptionsFromConfig(next.Terms))
			c.log.Info("replace options changed",
				"case_sensitive", next.Terms.CaseSensitive,
				"enable_regex", next.Terms.EnableRegex,
				"enable_fuzzy", next.Terms.EnableFuzzy,
				"fuzzy_max_dist", next.Terms.FuzzyMaxDist,
				"apply_to_partials", next.Terms.ApplyToPartials,
			)
		}
		if len(d.RestartRequired) > 0 {
			c.log.Warn("config changes need a restart", "keys", d.RestartRequired)
		}
	}, config.WithEnv(c.lookup), config.WithWatcherLogger(c.log))
	if err != nil {
		c.log.Warn("config watcher disabled", "path", c.configPath, "err", err)
		return nil
	}
	return w
}
