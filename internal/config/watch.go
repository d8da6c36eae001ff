package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a team configuration file whenever it changes on disk.
// Only events on the file itself trigger a reload; a change to a file it
// $includes is not watched. Grounded on the teacher's
// internal/templates/registry.go hot-reload loop: one fsnotify.Watcher,
// one goroutine, a short debounce so editors that write-then-rename don't
// fire the callback twice for a single save.
type Watcher struct {
	path    string
	onLoad  func(*Team)
	onError func(error)
	logger  *slog.Logger
}

// NewWatcher returns a Watcher for path. onLoad is called with every
// successfully reloaded Team, including the first load performed by
// Start; onError is called (instead) when a reload fails, leaving the
// previously loaded Team in effect. Either callback may be nil.
func NewWatcher(path string, onLoad func(*Team), onError func(error), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, onLoad: onLoad, onError: onError, logger: logger.With("component", "config_watcher")}
}

// Start performs an initial load, then watches path's directory for
// changes until ctx is canceled. It blocks; run it in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.reload(); err != nil {
		return fmt.Errorf("initial config load: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	var debounce *time.Timer
	const debounceWindow = 200 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, func() {
				if err := w.reload(); err != nil {
					w.logger.Error("reloading config", "path", w.path, "error", err)
					if w.onError != nil {
						w.onError(err)
					}
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() error {
	team, err := Load(w.path)
	if err != nil {
		return err
	}
	w.logger.Info("config reloaded", "path", w.path, "team", team.Name)
	if w.onLoad != nil {
		w.onLoad(team)
	}
	return nil
}
