package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormPath(t *testing.T) {
	assert.Equal(t, "a/b.txt", NormPath("a/b.txt"))
	assert.Equal(t, "a/b.txt", NormPath("/a/b.txt"))
	assert.Equal(t, "a/b.txt", NormPath("a//b.txt"))
	assert.Equal(t, "b.txt", NormPath("a/../b.txt"))
}

func TestResolvePath(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		_, err := ResolvePath("")
		assert.Error(t, err)
	})

	t.Run("relative becomes absolute", func(t *testing.T) {
		resolved, err := ResolvePath("some/dir")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(resolved))
	})

	t.Run("tilde expansion", func(t *testing.T) {
		home, err := os.UserHomeDir()
		require.NoError(t, err)

		resolved, err := ResolvePath("~/stuff")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "stuff"), resolved)
	})
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, EnsureDir(dir))
	assert.True(t, DirExists(dir))

	// idempotent
	require.NoError(t, EnsureDir(dir))
}
