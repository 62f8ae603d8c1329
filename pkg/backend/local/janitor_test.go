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

func TestJanitorSweep(t *testing.T) {
	root := t.TempDir()
	env := NewEnv(root)
	require.NoError(t, os.MkdirAll(env.PlotsDir, 0755))
	require.NoError(t, os.MkdirAll(env.TablesDir, 0755))

	expired := filepath.Join(env.PlotsDir, "req-old")
	require.NoError(t, os.Mkdir(expired, 0755))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(expired, old, old))

	fresh := filepath.Join(env.PlotsDir, "req-new")
	require.NoError(t, os.Mkdir(fresh, 0755))

	looseFile := filepath.Join(env.TablesDir, "stray.md")
	require.NoError(t, os.WriteFile(looseFile, []byte("x"), 0644))
	require.NoError(t, os.Chtimes(looseFile, old, old))

	janitor := NewJanitor(env, time.Hour, zerolog.Nop())
	janitor.Sweep()

	_, err := os.Stat(expired)
	assert.True(t, os.IsNotExist(err), "expired request dir should be removed")

	_, err = os.Stat(fresh)
	assert.NoError(t, err, "fresh request dir should survive")

	_, err = os.Stat(looseFile)
	assert.NoError(t, err, "only directories are swept")
}

func TestJanitorStartStop(t *testing.T) {
	env := NewEnv(t.TempDir())
	janitor := NewJanitor(env, time.Hour, zerolog.Nop())

	require.NoError(t, janitor.Start("@hourly"))
	janitor.Stop()
}

func TestJanitorBadSchedule(t *testing.T) {
	env := NewEnv(t.TempDir())
	janitor := NewJanitor(env, time.Hour, zerolog.Nop())

	assert.Error(t, janitor.Start("not a schedule"))
}
