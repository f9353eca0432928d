package project

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads the registry when project files change on disk, so edits
// made outside the daemon (or by another i3pm instance) are picked up
// without a restart. Reloads are debounced: a burst of writes triggers one
// reload after the quiet window.
type Watcher struct {
	registry *Registry
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	cancel  context.CancelFunc
	running bool
}

// NewWatcher creates a watcher for the registry's directory.
func NewWatcher(registry *Registry, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{registry: registry, debounce: debounce}
}

// Start begins watching. The projects directory must exist; a missing
// directory disables the watcher with a warning rather than failing the
// daemon.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.registry.Dir()); err != nil {
		fsw.Close()
		log.Warn().Err(err).Str("dir", w.registry.Dir()).Msg("projects directory not watchable")
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.watcher = fsw
	w.cancel = cancel
	w.running = true

	go w.loop(watchCtx)
	log.Debug().Str("dir", w.registry.Dir()).Msg("project watcher started")
	return nil
}

// Stop stops watching.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	w.cancel()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("project watcher error")
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.registry.Load(); err != nil {
			log.Warn().Err(err).Msg("project reload failed")
		}
	})
}
