// Package watch implements the autopilot loop: it watches the build
// directories through fsnotify and triggers a rebuild after each settled
// burst of filesystem events.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDelay is the debounce interval between the last filesystem event
// and the triggered rebuild.
const DefaultDelay = 100 * time.Millisecond

// Watcher triggers rebuilds on filesystem changes under Dirs.
type Watcher struct {
	Dirs  []string
	Delay time.Duration
	Log   *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
	fire  chan struct{}
}

// Run watches until the context is cancelled, invoking trigger after each
// debounced burst of changes. State files are ignored so the rebuild's own
// writes do not retrigger it. Trigger errors are logged, not fatal: the loop
// keeps watching so the user can fix the problem and save again.
func (w *Watcher) Run(ctx context.Context, trigger func(context.Context) error) error {
	if w.Delay <= 0 {
		w.Delay = DefaultDelay
	}
	log := w.Log
	if log == nil {
		log = slog.Default()
	}
	w.fire = make(chan struct{}, 1)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, dir := range w.Dirs {
		if err := addRecursive(fsw, dir); err != nil {
			return err
		}
		log.Info("watching", "dir", dir)
	}

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ignored(event.Name) {
				continue
			}
			// New directories join the watch so nested creations are seen.
			if event.Op.Has(fsnotify.Create) {
				_ = addRecursive(fsw, event.Name)
			}
			log.Debug("fs event", "op", event.Op.String(), "path", event.Name)
			w.bump()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Error("watch error", "error", err)
		case <-w.fire:
			if err := trigger(ctx); err != nil {
				log.Error("build failed", "error", err)
			}
		}
	}
}

// bump starts or resets the debounce timer.
func (w *Watcher) bump() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.Delay, func() {
		select {
		case w.fire <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// ignored filters events that must not retrigger builds: the state database
// and its WAL siblings, plus editor swap files.
func ignored(path string) bool {
	base := filepath.Base(path)
	if strings.Contains(base, ".state") {
		return true
	}
	return strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, "~")
}

// addRecursive registers dir and every subdirectory. Non-directories and
// vanished paths are skipped silently; events race with the filesystem.
func addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			return err
		}
		return nil
	})
}
