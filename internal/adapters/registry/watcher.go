package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/okian/boostcalc/pkg/logger"
	"github.com/okian/boostcalc/pkg/metrics"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 500 * time.Millisecond

// Reloader is satisfied by *Registry.
type Reloader interface {
	Reload(ctx context.Context) int
}

// Watcher reloads a registry when its backing file changes. It watches the
// parent directory so atomic rename-over writes are observed.
type Watcher struct {
	path     string
	debounce time.Duration
	target   Reloader
	logger   logger.Logger
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending bool
	started bool
	done    chan struct{}
}

// NewWatcher creates a watcher for path. debounce <= 0 means DefaultDebounce.
func NewWatcher(path string, target Reloader, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		target:   target,
		logger:   logger.Get().Named("registry-watcher"),
		fsw:      fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Events are processed until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.processEvents(ctx)
	w.logger.Info(ctx, "registry watcher started",
		logger.String("path", w.path),
		logger.Duration("debounce", w.debounce),
	)
	return nil
}

// Stop closes the underlying watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	err := w.fsw.Close()
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
	return err
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error(ctx, "registry watcher error", logger.Error(err))
			metrics.RecordErrorByComponent("registry", "watch")

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}
	w.mu.Lock()
	w.pending = true
	w.mu.Unlock()
}

func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	pending := w.pending
	w.pending = false
	w.mu.Unlock()
	if !pending {
		return
	}
	n := w.target.Reload(ctx)
	w.logger.Info(ctx, "registry reloaded after file change", logger.Int("participants", n))
}
