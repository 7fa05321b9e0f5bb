package indexer

// Test Plan for discovery:
// - walk finds files not excluded, omitting every file under an excluded
//   directory
// - an include set, when configured, narrows results further
// - exclude always wins over include

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, root, rel string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("content"), 0o644))
}

func TestDiscovery_WalkSkipsExcludedDirectories(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTestFile(t, root, "main.go")
	writeTestFile(t, root, "vendor/dep/dep.go")
	writeTestFile(t, root, "sub/helper.go")

	d, err := newDiscovery(root, nil, []string{"vendor/**"})
	require.NoError(t, err)

	paths, err := d.walk()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main.go", "sub/helper.go"}, paths)
}

func TestDiscovery_IncludeNarrowsResults(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTestFile(t, root, "main.go")
	writeTestFile(t, root, "README.md")

	d, err := newDiscovery(root, []string{"**/*.go"}, nil)
	require.NoError(t, err)

	paths, err := d.walk()
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, paths)
}

func TestDiscovery_ExcludeWinsOverInclude(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTestFile(t, root, "main.go")
	writeTestFile(t, root, "generated.go")

	d, err := newDiscovery(root, []string{"**/*.go"}, []string{"generated.go"})
	require.NoError(t, err)

	paths, err := d.walk()
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, paths)
}
