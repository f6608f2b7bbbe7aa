package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/boundary"
	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
)

type recordingIndexer struct {
	mu      sync.Mutex
	indexed []boundary.IndexRequest
	deleted []string
}

func (r *recordingIndexer) Index(_ context.Context, req boundary.IndexRequest) (*knowledge.IndexResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, req)
	return &knowledge.IndexResult{ChunkCount: 1}, nil
}

func (r *recordingIndexer) Delete(_ context.Context, req boundary.DeleteRequest) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, req.Path)
	return 1, nil
}

func (r *recordingIndexer) indexedPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, len(r.indexed))
	for i, req := range r.indexed {
		paths[i] = req.Path
	}
	return paths
}

func (r *recordingIndexer) indexCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.indexed)
}

func (r *recordingIndexer) deletedPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deleted...)
}

func newTestWatcher(t *testing.T, debounce time.Duration) (*Watcher, *recordingIndexer, string) {
	t.Helper()
	root := t.TempDir()
	indexer := &recordingIndexer{}

	w, err := New(root, config.WatchConfig{
		Debounce:   debounce,
		Extensions: []string{".md"},
	}, indexer, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w, indexer, root
}

func TestWatcherIndexesNewFile(t *testing.T) {
	_, indexer, root := newTestWatcher(t, 20*time.Millisecond)

	path := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("# Deploy Notes\n\nsteps here\n"), 0644))

	require.Eventually(t, func() bool {
		return indexer.indexCount() > 0
	}, 2*time.Second, 10*time.Millisecond)

	req := indexer.indexed[0]
	assert.Equal(t, "note.md", req.Path)
	assert.Equal(t, "Deploy Notes", req.Title)
	assert.Contains(t, req.Content, "steps here")
}

func TestWatcherIgnoresOtherExtensions(t *testing.T) {
	_, indexer, root := newTestWatcher(t, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0644))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, indexer.indexCount())
}

func TestWatcherDebouncesBursts(t *testing.T) {
	_, indexer, root := newTestWatcher(t, 80*time.Millisecond)

	path := filepath.Join(root, "burst.md")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("revision\n"), 0644))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return indexer.indexCount() > 0
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, indexer.indexCount())
}

func TestWatcherRemovesDeletedFile(t *testing.T) {
	_, indexer, root := newTestWatcher(t, 20*time.Millisecond)

	path := filepath.Join(root, "gone.md")
	require.NoError(t, os.WriteFile(path, []byte("transient\n"), 0644))
	require.Eventually(t, func() bool {
		return indexer.indexCount() > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		paths := indexer.deletedPaths()
		return len(paths) > 0 && paths[0] == "gone.md"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	_, indexer, root := newTestWatcher(t, 20*time.Millisecond)

	sub := filepath.Join(root, "docs")
	require.NoError(t, os.Mkdir(sub, 0755))
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "guide.md"), []byte("# Guide\n"), 0644))
	require.Eventually(t, func() bool {
		for _, p := range indexer.indexedPaths() {
			if p == "docs/guide.md" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTitleFor(t *testing.T) {
	assert.Equal(t, "Deploy", titleFor("a/b.md", "intro\n# Deploy\nbody"))
	assert.Equal(t, "b", titleFor("a/b.md", "no heading here"))
}

func TestNewRejectsMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), config.WatchConfig{}, &recordingIndexer{}, nil)
	require.Error(t, err)
}
