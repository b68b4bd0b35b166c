package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches the store's data file for external changes and
// reloads the store when the file settles. The application layer uses
// the callback to rebind the active provider (LoadConfig is idempotent,
// so reacting to the store's own writes is harmless).
type Watcher struct {
	log      *zap.Logger
	store    *Store
	watcher  *fsnotify.Watcher
	onChange func(UnifiedSettings)

	debounce time.Duration

	mu      sync.Mutex
	pending time.Time
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcher creates a watcher over the store's data file. onChange
// may be nil.
func NewWatcher(store *Store, log *zap.Logger, onChange func(UnifiedSettings)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		log:      log.Named("watcher"),
		store:    store,
		watcher:  fsw,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in its own
// goroutine until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory: editors and the store itself replace the
	// file by rename, which drops a watch on the file itself.
	dir := filepath.Dir(w.store.DataFile())
	if err := w.watcher.Add(dir); err != nil {
		w.log.Warn("initial watch failed", zap.String("dir", dir), zap.Error(err))
	} else {
		w.log.Debug("watching settings directory", zap.String("dir", dir))
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.log.Warn("error closing watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		case <-tick.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.store.DataFile() {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	w.pending = time.Now()
	w.mu.Unlock()
}

// flushPending reloads once the last event has settled past the
// debounce window, batching rapid successive writes.
func (w *Watcher) flushPending() {
	w.mu.Lock()
	fire := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
	if fire {
		w.pending = time.Time{}
	}
	w.mu.Unlock()
	if !fire {
		return
	}

	w.log.Info("settings file changed, reloading", zap.String("path", w.store.DataFile()))
	settings := w.store.Reload()
	if w.onChange != nil {
		w.onChange(settings)
	}
}
