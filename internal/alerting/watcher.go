package alerting

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/staleguard/internal/metrics"
)

// CatalogWatcher reloads a rules file into a CatalogHolder when it changes.
// An invalid file is logged and the previous catalog stays active.
type CatalogWatcher struct {
	path     string
	holder   *CatalogHolder
	logger   *zap.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewCatalogWatcher creates a watcher for the rules file at path.
func NewCatalogWatcher(path string, holder *CatalogHolder, logger *zap.Logger) (*CatalogWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid rules path: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &CatalogWatcher{
		path:     absPath,
		holder:   holder,
		logger:   logger,
		debounce: 250 * time.Millisecond,
		watcher:  watcher,
		done:     make(chan struct{}),
	}, nil
}

// Run watches the rules file until ctx is done or Close is called.
// The parent directory is watched so editors that replace the file are seen.
func (w *CatalogWatcher) Run(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch rules directory: %w", err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			w.Close()
			return nil
		case <-w.done:
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				pending = time.After(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("rules watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			w.Reload()
		}
	}
}

// Reload loads the rules file and swaps it in when valid.
func (w *CatalogWatcher) Reload() bool {
	cat, err := LoadCatalogFromFile(w.path)
	if err != nil {
		metrics.CatalogReloadsTotal.WithLabelValues("failure").Inc()
		w.logger.Error("rules reload failed, keeping previous catalog",
			zap.String("path", w.path), zap.Error(err))
		return false
	}

	w.holder.Store(cat)
	metrics.CatalogReloadsTotal.WithLabelValues("success").Inc()
	metrics.CatalogRules.Set(float64(cat.Len()))
	w.logger.Info("rules reloaded", zap.String("path", w.path), zap.Int("rules", cat.Len()))
	return true
}

// Close stops the watcher.
func (w *CatalogWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	return w.watcher.Close()
}
