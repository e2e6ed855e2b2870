package workout

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long the watcher waits after the last file event
// before reloading, so editors that write in several steps reload once.
const DefaultSettle = 250 * time.Millisecond

// Watcher reloads a custom workout directory into a registry when its TOML
// files change.
type Watcher struct {
	dir      string
	registry *Registry
	logger   *slog.Logger
	settle   time.Duration
	onReload func(ids []string, err error)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithSettle overrides DefaultSettle.
func WithSettle(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.settle = d }
}

// WithReloadHook is called after every reload attempt.
func WithReloadHook(fn func(ids []string, err error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher creates a watcher for dir feeding registry.
func NewWatcher(dir string, registry *Registry, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:      dir,
		registry: registry,
		logger:   slog.Default(),
		settle:   DefaultSettle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run loads the directory once, then reloads on change until ctx is done.
// A file that fails to parse leaves the previously loaded workouts in place.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.reload()

	timer := time.NewTimer(w.settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".toml" {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				w.logger.Debug("workout file changed", "file", ev.Name, "op", ev.Op.String())
				timer.Reset(w.settle)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("workout watcher error", "error", err)

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	ids, err := w.registry.LoadDir(w.dir)
	if err != nil {
		w.logger.Warn("workout reload failed", "dir", w.dir, "error", err)
	} else {
		w.logger.Info("workouts loaded", "dir", w.dir, "ids", ids)
	}
	if w.onReload != nil {
		w.onReload(ids, err)
	}
}
