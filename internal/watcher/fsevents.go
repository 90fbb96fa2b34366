package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
)

// Watcher follows a manifest tree and applies changed files to a catalog
// once per interval. The catalog is only touched from the watcher's own
// goroutine while it runs.
type Watcher struct {
	applier
	interval time.Duration
	logger   *log.Logger

	fsw     *fsnotify.Watcher
	mu      sync.Mutex
	pending map[string]struct{}
	stats   Stats
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a watcher for the manifest tree at root.
func New(c *catalog.Catalog, root string, interval time.Duration) (*Watcher, error) {
	if c == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat manifest root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("manifest root %s is not a directory", root)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", interval)
	}

	return &Watcher{
		applier:  applier{catalog: c, root: root},
		interval: interval,
		logger:   c.Logger(),
		pending:  make(map[string]struct{}),
	}, nil
}

// Start watches every directory below root and begins applying changes.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.fsw = fsw
	if err := w.addTree(w.root); err != nil {
		fsw.Close()
		return err
	}

	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(ctx)

	w.logger.Info("watching manifests", "root", w.root, "interval", w.interval)
	return nil
}

// Stop halts the watcher after applying any changes still pending.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	return w.fsw.Close()
}

// Stats returns the totals applied so far.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Flush()
			return
		case <-w.stopCh:
			w.Flush()
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "err", err)
		case <-ticker.C:
			w.Flush()
		}
	}
}

// handleEvent queues the paths an event affects. A new directory is watched
// and its manifests are queued, since files may have landed in it before the
// watch was added.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") {
				return
			}
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "err", err)
			}
			paths, err := FindManifests(event.Name)
			if err != nil {
				w.logger.Warn("failed to scan new directory", "path", event.Name, "err", err)
			}
			w.queue(paths...)
			return
		}
	}

	if isManifest(event.Name) {
		w.logger.Debug("manifest changed", "path", event.Name, "op", event.Op.String())
		w.queue(event.Name)
	}
}

func (w *Watcher) queue(paths ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range paths {
		w.pending[p] = struct{}{}
	}
}

// Flush applies every queued path now and returns what it did.
func (w *Watcher) Flush() Stats {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if len(paths) == 0 {
		return Stats{}
	}

	stats := w.apply(paths, func(path string, err error) {
		if err != nil {
			w.logger.Warn("failed to apply manifest change", "path", path, "err", err)
		}
	})
	w.logger.Info("applied manifest changes", "added", stats.Added, "updated", stats.Updated,
		"removed", stats.Removed, "errors", stats.Errors)

	w.mu.Lock()
	w.stats.add(stats)
	w.mu.Unlock()
	return stats
}

// addTree watches dir and every directory below it. Hidden directories are
// skipped.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
