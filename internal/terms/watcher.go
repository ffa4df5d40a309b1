package terms

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before it looks at the document.
const DefaultDebounce = 250 * time.Millisecond

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period after the last event. Default: 250ms.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the watcher's logger. Default: [slog.Default].
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithOnReload registers fn to be called after every reload the watcher
// triggers, with the reload's error.
func WithOnReload(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// Watcher reloads a [Store] when its backing document is changed by someone
// else. Changes are detected with fsnotify on the document's directory, so
// atomic replacements (write temp file, rename) are seen as well. Events are
// debounced, and a file whose content hash equals [Store.Digest] is ignored;
// that covers the store's own writes and no-op touches.
type Watcher struct {
	store    *Store
	path     string
	fsw      *fsnotify.Watcher
	debounce time.Duration
	log      *slog.Logger
	onReload func(error)
}

// NewWatcher starts watching the directory of store's document. Call
// [Watcher.Run] to process events and [Watcher.Close] to release the OS
// resources.
func NewWatcher(store *Store, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		store:    store,
		path:     filepath.Clean(store.Path()),
		debounce: DefaultDebounce,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("terms: watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("terms: watcher: watch %s: %w", filepath.Dir(w.path), err)
	}
	w.fsw = fsw
	return w, nil
}

// Run processes file events until ctx is cancelled or the watcher is
// closed. It always returns nil in those cases.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.Debug("terms watcher: event", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("terms watcher: fsnotify error", "err", err)

		case <-fire:
			fire = nil
			w.check()
		}
	}
}

// Close stops watching. A running [Watcher.Run] returns.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

// check reloads the store if the document's content differs from what the
// store last read or wrote.
func (w *Watcher) check() {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, fs.ErrNotExist) {
		w.log.Debug("terms watcher: document is gone, keeping current entries", "path", w.path)
		return
	}
	if err != nil {
		w.log.Warn("terms watcher: cannot read document", "path", w.path, "err", err)
		return
	}
	if digest(data) == w.store.Digest() {
		w.log.Debug("terms watcher: document unchanged", "path", w.path)
		return
	}

	err = w.store.Reload()
	if err != nil {
		w.log.Error("terms watcher: reload failed", "path", w.path, "err", err)
	} else {
		w.log.Info("terms watcher: document reloaded", "path", w.path, "entries", len(w.store.List()))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}
