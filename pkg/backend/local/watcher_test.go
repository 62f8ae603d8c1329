package local

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	snapshot := snapshotDir(dir)
	assert.Contains(t, snapshot, "a.png")
	assert.NotContains(t, snapshot, "sub")

	assert.Empty(t, snapshotDir(filepath.Join(dir, "missing")))
}

func TestDiffDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.png"), []byte("x"), 0644))

	before := snapshotDir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.png"), []byte("y"), 0644))

	t.Run("snapshot diff", func(t *testing.T) {
		paths := diffDir(dir, before, nil)
		assert.Equal(t, []string{filepath.Join(dir, "new.png")}, paths)
	})

	t.Run("watcher observations merge without duplicates", func(t *testing.T) {
		watched := []string{
			filepath.Join(dir, "new.png"),
			filepath.Join(dir, "overwritten.png"),
			filepath.Join("/elsewhere", "ignored.png"),
		}
		paths := diffDir(dir, before, watched)
		assert.ElementsMatch(t, []string{
			filepath.Join(dir, "new.png"),
			filepath.Join(dir, "overwritten.png"),
		}, paths)
	})
}

func TestPlotWatcher(t *testing.T) {
	dir := t.TempDir()
	pw, err := newPlotWatcher(dir, zerolog.Nop())
	require.NoError(t, err)

	path := filepath.Join(dir, "figure.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0644))

	// fsnotify delivery is asynchronous.
	assert.Eventually(t, func() bool {
		pw.mu.Lock()
		defer pw.mu.Unlock()
		_, ok := pw.seen[path]
		return ok
	}, time.Second, 10*time.Millisecond)

	paths := pw.Stop()
	assert.Contains(t, paths, path)
}
