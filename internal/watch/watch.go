// Package watch feeds document changes from a project working copy into the
// indexing gate. Filesystem events are debounced per path so editor save
// bursts collapse into one index operation.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/boundary"
	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// maxFileSize caps files read from disk for indexing.
const maxFileSize = 1024 * 1024

// Indexer receives debounced document changes. *boundary.Service satisfies
// it.
type Indexer interface {
	Index(ctx context.Context, req boundary.IndexRequest) (*knowledge.IndexResult, error)
	Delete(ctx context.Context, req boundary.DeleteRequest) (int, error)
}

// Watcher mirrors matching files under a project root into the store.
type Watcher struct {
	root    string
	cfg     config.WatchConfig
	indexer Indexer
	logger  *zap.Logger

	fsw  *fsnotify.Watcher
	stop chan struct{}
	once sync.Once

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a watcher over root. Start must be called to begin watching.
func New(root string, cfg config.WatchConfig, indexer Indexer, logger *zap.Logger) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", root)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Watcher{
		root:    root,
		cfg:     cfg,
		indexer: indexer,
		logger:  logger.Named("watch"),
		fsw:     fsw,
		stop:    make(chan struct{}),
		timers:  make(map[string]*time.Timer),
	}, nil
}

// Start registers directory watches and begins processing events in a
// background goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and cancels pending debounce timers.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stop)
		_ = w.fsw.Close()

		w.mu.Lock()
		for _, timer := range w.timers {
			timer.Stop()
		}
		w.timers = make(map[string]*time.Timer)
		w.mu.Unlock()
	})
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if skipDir(d.Name()) && path != dir {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("cannot watch directory", zap.String("dir", path), zap.Error(err))
		}
		return nil
	})
}

// skipDir filters directories that never hold indexable documents.
func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "node_modules", "vendor", "target", "dist":
		return true
	}
	return false
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			w.Stop()
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !skipDir(filepath.Base(event.Name)) {
				_ = w.addRecursive(event.Name)
			}
			return
		}
	}

	if !w.matches(event.Name) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Write), event.Op.Has(fsnotify.Create):
		w.debounce(event.Name, func() { w.index(ctx, event.Name) })
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.debounce(event.Name, func() { w.remove(ctx, event.Name) })
	}
}

func (w *Watcher) matches(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range w.cfg.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// debounce schedules fn after the configured delay, resetting any pending
// timer for the same path.
func (w *Watcher) debounce(path string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case <-w.stop:
			return
		default:
		}
		fn()
	})
}

func (w *Watcher) index(ctx context.Context, path string) {
	rel, err := w.relative(path)
	if err != nil {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// Written then removed inside the debounce window.
		w.remove(ctx, path)
		return
	}
	if info.Size() > maxFileSize {
		w.logger.Warn("skipping oversized file",
			zap.String("path", rel),
			zap.Int64("bytes", info.Size()))
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("cannot read changed file", zap.String("path", rel), zap.Error(err))
		return
	}

	result, err := w.indexer.Index(ctx, boundary.IndexRequest{
		Path:    rel,
		Content: string(content),
		Title:   titleFor(rel, string(content)),
	})
	if err != nil {
		w.logger.Warn("index failed", zap.String("path", rel), zap.Error(err))
		return
	}
	if !result.Unchanged {
		w.logger.Info("file indexed",
			zap.String("path", rel),
			zap.Int("chunks", result.ChunkCount))
	}
}

func (w *Watcher) remove(ctx context.Context, path string) {
	rel, err := w.relative(path)
	if err != nil {
		return
	}
	n, err := w.indexer.Delete(ctx, boundary.DeleteRequest{Path: rel})
	if err != nil {
		w.logger.Warn("delete failed", zap.String("path", rel), zap.Error(err))
		return
	}
	if n > 0 {
		w.logger.Info("file removed from index", zap.String("path", rel), zap.Int("records", n))
	}
}

func (w *Watcher) relative(path string) (string, error) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("outside root: %s", path)
	}
	return filepath.ToSlash(rel), nil
}

// titleFor derives a document title from the first markdown heading, falling
// back to the file name.
func titleFor(rel, content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(trimmed, "# "); ok {
			return strings.TrimSpace(after)
		}
	}
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
