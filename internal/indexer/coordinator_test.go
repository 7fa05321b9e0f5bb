package indexer

// Test Plan for Coordinator:
// - InitialScan discovers and indexes every matching file before any live
//   event arrives
// - Enqueue rejects a path matching the configured exclude globs regardless
//   of event kind
// - A watcher Deleted event removes the file from the store
// - Two events for the same path are processed one at a time, with the
//   second reflecting the state left by the first (no interleaving)

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesearchd/codesearchd/internal/config"
	"github.com/codesearchd/codesearchd/internal/parser"
	"github.com/codesearchd/codesearchd/internal/watcher"
)

func newTestCoordinator(t *testing.T, root string) *Coordinator {
	t.Helper()
	store := newProcessTestStore(t)
	registry := parser.NewDefaultRegistry()
	watchCfg := config.WatchConfig{}
	indexCfg := config.IndexConfig{QueueCapacity: 100}
	c, err := New(nil, store, registry, root, watchCfg, indexCfg, nil, nil)
	require.NoError(t, err)
	return c
}

func runCoordinatorBriefly(t *testing.T, c *Coordinator, wait time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	c.Run(ctx)
}

func TestCoordinator_InitialScanIndexesExistingFiles(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "doc.md"), []byte("# Title\nbody\n"), 0o644))

	c := newTestCoordinator(t, root)
	require.NoError(t, c.InitialScan())
	runCoordinatorBriefly(t, c, 200*time.Millisecond)

	_, found, err := c.store.GetFileByPath("doc.md")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCoordinator_EnqueueRejectsExcludedPathRegardlessOfKind(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	store := newProcessTestStore(t)
	registry := parser.NewDefaultRegistry()
	watchCfg := config.WatchConfig{Exclude: []string{"vendor/**"}}
	indexCfg := config.IndexConfig{QueueCapacity: 100}
	c, err := New(nil, store, registry, root, watchCfg, indexCfg, nil, nil)
	require.NoError(t, err)

	c.Enqueue(watcher.Event{Path: "vendor/dep.go", Kind: watcher.Modified})
	c.Enqueue(watcher.Event{Path: "vendor/dep.go", Kind: watcher.Deleted})

	assert.Equal(t, 0, c.Stats().Queued)
}

func TestCoordinator_DeletedEventRemovesFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "doc.md"), []byte("# Title\nbody\n"), 0o644))

	c := newTestCoordinator(t, root)
	c.Enqueue(watcher.Event{Path: "doc.md", Kind: watcher.Modified})
	runCoordinatorBriefly(t, c, 200*time.Millisecond)

	_, found, err := c.store.GetFileByPath("doc.md")
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, os.Remove(filepath.Join(root, "doc.md")))
	c.Enqueue(watcher.Event{Path: "doc.md", Kind: watcher.Deleted})
	runCoordinatorBriefly(t, c, 200*time.Millisecond)

	_, found, err = c.store.GetFileByPath("doc.md")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCoordinator_SequentialEventsForSamePathDoNotInterleave(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	docPath := filepath.Join(root, "doc.md")
	require.NoError(t, os.WriteFile(docPath, []byte("# First\nbody one\n"), 0o644))

	c := newTestCoordinator(t, root)
	c.Enqueue(watcher.Event{Path: "doc.md", Kind: watcher.Modified})

	require.NoError(t, os.WriteFile(docPath, []byte("# Second\nbody two\n"), 0o644))
	c.Enqueue(watcher.Event{Path: "doc.md", Kind: watcher.Modified})

	runCoordinatorBriefly(t, c, 300*time.Millisecond)

	f, found, err := c.store.GetFileByPath("doc.md")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotEmpty(t, f.ContentHash)
}
