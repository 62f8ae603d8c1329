package remote

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readBundleEntry(t *testing.T, bundle []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(bundle), int64(len(bundle)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			return string(data)
		}
	}
	t.Fatalf("bundle entry %s not found", name)
	return ""
}

func TestBuildBundle(t *testing.T) {
	t.Run("contains the three fixed entries", func(t *testing.T) {
		bundle, err := BuildBundle("print('hi')", nil, nil)
		require.NoError(t, err)

		dockerfile := readBundleEntry(t, bundle, "Dockerfile")
		assert.Contains(t, dockerfile, "FROM python:3.11-slim")
		assert.Contains(t, dockerfile, `CMD ["python", "main.py"]`)

		main := readBundleEntry(t, bundle, "main.py")
		assert.Contains(t, main, StartMarker)
		assert.Contains(t, main, EndMarker)
		assert.Contains(t, main, `"print('hi')"`)

		requirements := readBundleEntry(t, bundle, "requirements.txt")
		for _, pkg := range basePackages {
			assert.Contains(t, requirements, pkg+"\n")
		}
	})

	t.Run("extra packages append after base", func(t *testing.T) {
		bundle, err := BuildBundle("pass", []string{"xlsxwriter"}, nil)
		require.NoError(t, err)

		requirements := readBundleEntry(t, bundle, "requirements.txt")
		assert.True(t, strings.HasSuffix(requirements, "xlsxwriter\n"))
	})

	t.Run("attached files land at bundle root", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "sales.xlsx")
		require.NoError(t, os.WriteFile(path, []byte("binary-ish"), 0644))

		bundle, err := BuildBundle("pass", nil, []string{path})
		require.NoError(t, err)

		assert.Equal(t, "binary-ish", readBundleEntry(t, bundle, "sales.xlsx"))
	})

	t.Run("missing attachment fails", func(t *testing.T) {
		_, err := BuildBundle("pass", nil, []string{"/does/not/exist.csv"})
		assert.Error(t, err)
	})
}

func TestRenderEntrypoint(t *testing.T) {
	t.Run("user code is quoted", func(t *testing.T) {
		rendered := renderEntrypoint("print(\"a\")\nprint('b')")
		assert.Contains(t, rendered, `user_code = "print(\"a\")\nprint('b')"`)
	})

	t.Run("placeholder in user code cannot hijack markers", func(t *testing.T) {
		rendered := renderEntrypoint("x = '__START_MARKER__'")
		// The template's own placeholders are already resolved; the user's
		// copy stays inside the quoted literal.
		assert.Contains(t, rendered, StartMarker)
		assert.Contains(t, rendered, `"x = '__START_MARKER__'"`)
	})
}
