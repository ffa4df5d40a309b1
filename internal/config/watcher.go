package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often [Watcher.Run] looks at the config file.
const DefaultWatchInterval = 5 * time.Second

// Watcher keeps the latest valid [Config] read from a file and reports
// changes to a callback. The file is polled: a cheap stat first, then a
// content hash, so in-place edits, atomic replacements and plain touches are
// told apart without a platform notification API.
type Watcher struct {
	path     string
	interval time.Duration
	lookup   LookupFunc
	log      *slog.Logger
	onChange func(old, next *Config)

	mu      sync.Mutex
	current *Config
	seen    stamp
}

// stamp identifies one version of the config file.
type stamp struct {
	mtime time.Time
	size  int64
	sum   [sha256.Size]byte
}

// sameFile reports whether the stat data is unchanged, in which case the
// content is not read again.
func (s stamp) sameFile(fi os.FileInfo) bool {
	return s.size == fi.Size() && s.mtime.Equal(fi.ModTime())
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithEnv applies environment overrides through lookup after every load,
// so a reloaded file never undoes settings pinned by the environment. A nil
// lookup reads the process environment.
func WithEnv(lookup LookupFunc) WatcherOption {
	return func(w *Watcher) {
		if lookup == nil {
			lookup = os.LookupEnv
		}
		w.lookup = lookup
	}
}

// WithWatcherLogger sets the logger for reload messages. Default:
// [slog.Default].
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher reads the config at path and returns a watcher holding it.
// onChange may be nil. Nothing is polled until [Watcher.Run] is called.
func NewWatcher(path string, onChange func(old, next *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		log:      slog.Default(),
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, st, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.seen = cfg, st
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls the file until ctx is done. Failed reads are logged and the
// previous config stays in effect. Run returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Check(); err != nil {
				w.log.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// Check looks at the file once. It reports whether a new config was
// installed; the onChange callback has already run when it returns true.
// An unreadable or invalid file returns an error and changes nothing.
func (w *Watcher) Check() (bool, error) {
	fi, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}
	w.mu.Lock()
	unchanged := w.seen.sameFile(fi)
	w.mu.Unlock()
	if unchanged {
		return false, nil
	}

	cfg, st, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if st.sum == w.seen.sum {
		w.seen = st
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	w.current, w.seen = cfg, st
	w.mu.Unlock()

	w.log.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true, nil
}

// read loads and validates the file and stamps the version it read.
func (w *Watcher) read() (*Config, stamp, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, stamp{}, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, stamp{}, err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, stamp{}, err
	}

	cfg, err := LoadFromReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, stamp{}, err
	}
	if w.lookup != nil {
		if err := ApplyEnv(cfg, w.lookup); err != nil {
			return nil, stamp{}, err
		}
		if err := Validate(cfg); err != nil {
			return nil, stamp{}, err
		}
	}
	return cfg, stamp{mtime: fi.ModTime(), size: fi.Size(), sum: sha256.Sum256(buf.Bytes())}, nil
}
