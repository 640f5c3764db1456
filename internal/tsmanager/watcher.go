package tsmanager

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher is an optional fsnotify-backed enhancement: subscribing to
// filesystem events on watched classpath directories
// lets a caller pre-emptively flag entries "likely stale" between explicit
// Check calls, trading a little memory for lower stale-detection latency.
// It never substitutes for Check — LikelyStale is a hint, not ground truth.
type Watcher struct {
	fsw    *fsnotify.Watcher
	logger *zap.Logger

	mu    sync.Mutex
	stale map[string]bool

	done chan struct{}
}

// NewWatcher starts the background fsnotify event loop. Call Close when done.
func NewWatcher(logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:    fsw,
		logger: logger,
		stale:  make(map[string]bool),
		done:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// WatchDirectory adds a classpath directory to the watch set.
func (w *Watcher) WatchDirectory(path string) error {
	return w.fsw.Add(path)
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.mu.Lock()
				w.stale[ev.Name] = true
				w.mu.Unlock()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("tsmanager: watcher error", zap.Error(err))
			}
		case <-w.done:
			return
		}
	}
}

// LikelyStale reports whether path has seen an fsnotify event since it was
// last cleared. It is a hint only: callers still call Check before trusting
// "unchanged".
func (w *Watcher) LikelyStale(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stale[path]
}

// ClearLikelyStale resets the hint after a caller has re-stat'd path via
// Check, so the next event is required before it is flagged again.
func (w *Watcher) ClearLikelyStale(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.stale, path)
}

// Close stops the event loop and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
