package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file from disk whenever it changes, handing the
// freshly validated Config to OnChange. Reused from the teacher's direct
// fsnotify dependency (originally used to scan the local sync directory);
// here it watches the config file itself, since Orchard's local-change
// observation is the FUSE layer, not a directory scanner.
type Watcher struct {
	path     string
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	OnChange func(*Config)
}

// NewWatcher creates a Watcher for the config file at path.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{path: path, logger: logger, watcher: fw}, nil
}

// Run processes filesystem events until the watcher is closed. Intended to
// run in its own goroutine for the lifetime of the daemon.
func (w *Watcher) Run() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			w.logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

// reload re-reads and validates the config file, invoking OnChange only on
// success so a transient partial write never propagates a broken config.
func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous config",
			slog.String("path", w.path), slog.String("error", err.Error()))

		return
	}

	w.logger.Info("config reloaded", slog.String("path", w.path))

	if w.OnChange != nil {
		w.OnChange(cfg)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
