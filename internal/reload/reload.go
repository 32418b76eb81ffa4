// Package reload keeps a live registry current while its table files change.
//
// Holder publishes the registry readers should use. Watcher rebuilds the
// registry from disk after the files settle and swaps it in only when it
// validates; a broken edit leaves the previous registry in place.
package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tinytelemetry/photon/internal/model"
	"github.com/tinytelemetry/photon/internal/registry"
	"go.uber.org/zap"
)

// Holder hands out the current registry. Safe for concurrent use.
type Holder struct {
	current atomic.Pointer[registry.Registry]
}

// NewHolder returns a holder serving reg.
func NewHolder(reg *registry.Registry) *Holder {
	h := &Holder{}
	h.current.Store(reg)
	return h
}

// Current returns the registry in effect.
func (h *Holder) Current() *registry.Registry {
	return h.current.Load()
}

// Swap publishes reg and returns the registry it replaced.
func (h *Holder) Swap(reg *registry.Registry) *registry.Registry {
	return h.current.Swap(reg)
}

// Loader builds a fresh registry, typically from the watched files.
type Loader func(ctx context.Context) (*registry.Registry, error)

// Catalog receives every registry that is swapped in.
type Catalog interface {
	ReplaceRegistry(ctx context.Context, reg model.RegistryReader) error
}

// WatcherConfig holds tunable parameters for the watcher.
type WatcherConfig struct {
	Debounce time.Duration
	Logger   *zap.Logger
	Catalog  Catalog
}

// Stats counts watcher activity.
type Stats struct {
	Events    int
	Reloads   int
	Unchanged int
	Failures  int
	LastError string
	LastSwap  time.Time
}

// Watcher rebuilds the registry when any of its files change.
type Watcher struct {
	holder   *Holder
	load     Loader
	paths    map[string]bool
	dirs     []string
	debounce time.Duration
	catalog  Catalog
	logger   *zap.Logger

	mu        sync.Mutex
	lastEvent time.Time
	pending   bool
	stats     Stats
}

// NewWatcher watches paths and reloads through load. Paths are watched via
// their directories so editors that replace files on save are still seen.
func NewWatcher(holder *Holder, paths []string, load Loader, conf ...WatcherConfig) (*Watcher, error) {
	w := &Watcher{
		holder:   holder,
		load:     load,
		paths:    make(map[string]bool, len(paths)),
		debounce: model.DefaultReloadDebounce,
		logger:   zap.NewNop(),
	}
	if len(conf) > 0 {
		if conf[0].Debounce > 0 {
			w.debounce = conf[0].Debounce
		}
		if conf[0].Logger != nil {
			w.logger = conf[0].Logger
		}
		w.catalog = conf[0].Catalog
	}

	seen := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		w.paths[abs] = true
		if dir := filepath.Dir(abs); !seen[dir] {
			seen[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	return w, nil
}

// Stats returns a snapshot of the watcher counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Run watches until ctx is done. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	for _, dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.logger.Debug("watching directory", zap.String("dir", dir))
	}

	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", zap.Error(err))

		case <-ticker.C:
			if w.settled() {
				w.Reload(ctx)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.paths[filepath.Clean(event.Name)] {
		return
	}
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Rename) && !event.Op.Has(fsnotify.Remove) {
		return
	}
	w.logger.Debug("table file changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))

	w.mu.Lock()
	w.stats.Events++
	w.lastEvent = time.Now()
	w.pending = true
	w.mu.Unlock()
}

// settled reports whether a change is pending and the debounce window has
// passed since the last event. It clears the pending flag when it fires.
func (w *Watcher) settled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.pending || time.Since(w.lastEvent) < w.debounce {
		return false
	}
	w.pending = false
	return true
}

// Reload rebuilds the registry now. On failure the current registry stays
// in place and the error is returned.
func (w *Watcher) Reload(ctx context.Context) error {
	reg, err := w.load(ctx)
	if err != nil {
		w.mu.Lock()
		w.stats.Failures++
		w.stats.LastError = err.Error()
		w.mu.Unlock()
		w.logger.Error("reload failed, keeping previous registry",
			zap.String("fingerprint", w.holder.Current().Fingerprint()),
			zap.Error(err))
		return err
	}

	if reg.Fingerprint() == w.holder.Current().Fingerprint() {
		w.mu.Lock()
		w.stats.Unchanged++
		w.mu.Unlock()
		w.logger.Debug("registry unchanged", zap.String("fingerprint", reg.Fingerprint()))
		return nil
	}

	old := w.holder.Swap(reg)
	w.mu.Lock()
	w.stats.Reloads++
	w.stats.LastError = ""
	w.stats.LastSwap = time.Now()
	w.mu.Unlock()
	w.logger.Info("registry reloaded",
		zap.String("from", old.Fingerprint()),
		zap.String("to", reg.Fingerprint()),
		zap.Int("metrics", len(reg.Metrics())))

	if w.catalog != nil {
		if err := w.catalog.ReplaceRegistry(ctx, reg); err != nil {
			w.logger.Error("catalog refresh failed", zap.Error(err))
			return err
		}
	}
	return nil
}
