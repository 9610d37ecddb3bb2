package fingerprint

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/blobsync/internal/executor"
)

func writeTestFile(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, content, 0644))
}

func TestNewRecord(t *testing.T) {
	digest := md5.Sum([]byte("Hello, World!"))
	rec := NewRecord(digest[:])

	assert.Equal(t, fmt.Sprintf("%q", fmt.Sprintf("%x", digest)), rec.ETag)
	assert.Equal(t, base64.StdEncoding.EncodeToString(digest[:]), rec.ContentMD5)
}

func TestCollect(t *testing.T) {
	t.Run("fingerprints regular files", func(t *testing.T) {
		dir := t.TempDir()
		writeTestFile(t, dir, "a.txt", []byte("alpha"))
		writeTestFile(t, dir, "sub/b.txt", []byte("beta"))

		c, err := NewCollector(dir, "md5", 4)
		require.NoError(t, err)

		result, err := c.Collect(context.Background(), []string{"a.txt", "sub/b.txt"})
		require.NoError(t, err)
		require.Len(t, result, 2)

		alpha := md5.Sum([]byte("alpha"))
		assert.Equal(t, fmt.Sprintf("%q", fmt.Sprintf("%x", alpha)), result["a.txt"].ETag)
		assert.Equal(t, base64.StdEncoding.EncodeToString(alpha[:]), result["a.txt"].ContentMD5)
		assert.NotNil(t, result["sub/b.txt"])
	})

	t.Run("skips directories and missing names", func(t *testing.T) {
		dir := t.TempDir()
		writeTestFile(t, dir, "a.txt", []byte("alpha"))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "somedir"), 0755))

		c, err := NewCollector(dir, "md5", 2)
		require.NoError(t, err)

		result, err := c.Collect(context.Background(), []string{"a.txt", "somedir", "ghost.txt"})
		require.NoError(t, err)

		require.Len(t, result, 1)
		assert.Contains(t, result, "a.txt")
	})

	t.Run("skips broken symlinks", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("symlinks need privileges on windows")
		}
		dir := t.TempDir()
		require.NoError(t, os.Symlink(filepath.Join(dir, "missing"), filepath.Join(dir, "dangling")))

		c, err := NewCollector(dir, "md5", 1)
		require.NoError(t, err)

		result, err := c.Collect(context.Background(), []string{"dangling"})
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("empty name list", func(t *testing.T) {
		c, err := NewCollector(t.TempDir(), "md5", 4)
		require.NoError(t, err)

		result, err := c.Collect(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("hash failure aborts the pass", func(t *testing.T) {
		if runtime.GOOS == "windows" || os.Getuid() == 0 {
			t.Skip("needs non-root permission semantics")
		}
		dir := t.TempDir()
		writeTestFile(t, dir, "ok.txt", []byte("fine"))
		writeTestFile(t, dir, "locked.txt", []byte("secret"))
		require.NoError(t, os.Chmod(filepath.Join(dir, "locked.txt"), 0000))

		c, err := NewCollector(dir, "md5", 2)
		require.NoError(t, err)

		result, err := c.Collect(context.Background(), []string{"ok.txt", "locked.txt"})
		require.Error(t, err)
		assert.Nil(t, result, "no partial map on failure")

		var execErr *executor.Error
		assert.ErrorAs(t, err, &execErr)
		assert.Contains(t, err.Error(), "locked.txt")
	})

	t.Run("memoized digest survives repeated collection", func(t *testing.T) {
		dir := t.TempDir()
		writeTestFile(t, dir, "a.txt", []byte("alpha"))

		c, err := NewCollector(dir, "md5", 1)
		require.NoError(t, err)

		first, err := c.Collect(context.Background(), []string{"a.txt"})
		require.NoError(t, err)
		second, err := c.Collect(context.Background(), []string{"a.txt"})
		require.NoError(t, err)

		assert.Equal(t, first["a.txt"].ETag, second["a.txt"].ETag)
		assert.Equal(t, first["a.txt"].ContentMD5, second["a.txt"].ContentMD5)
	})
}

func TestNewCollectorValidation(t *testing.T) {
	_, err := NewCollector(t.TempDir(), "md5", 0)
	assert.ErrorIs(t, err, executor.ErrInvalidLimit)

	_, err = NewCollector(t.TempDir(), "whirlpool", 4)
	assert.Error(t, err)
}
