package blueprint

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"evoforge/internal/logging"
)

// Watcher reloads a Registry when its blueprint directory changes on disk.
// Rapid editor saves are debounced into a single reload.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	registry *Registry
	dirty    time.Time
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewWatcher creates a watcher over the registry's blueprint directory.
func NewWatcher(registry *Registry) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fw,
		registry: registry,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	log := logging.Get(logging.CategoryBlueprint)
	if err := w.watcher.Add(w.registry.dir); err != nil {
		// Directory may not exist yet.
		log.Warn("blueprint watch failed for %s: %v", w.registry.dir, err)
	} else {
		log.Info("watching blueprint directory: %s", w.registry.dir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
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
	_ = w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	log := logging.Get(logging.CategoryBlueprint)
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
			if !isYAML(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.dirty = time.Now()
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error("blueprint watcher error: %v", err)
		case <-ticker.C:
			w.mu.Lock()
			due := !w.dirty.IsZero() && time.Since(w.dirty) >= w.debounce
			if due {
				w.dirty = time.Time{}
			}
			w.mu.Unlock()
			if due {
				if err := w.registry.Reload(); err != nil {
					log.Error("blueprint reload failed: %v", err)
				}
			}
		}
	}
}
