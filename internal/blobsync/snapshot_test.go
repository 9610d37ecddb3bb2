package blobsync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/blobsync/internal/fingerprint"
)

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	snap := fingerprint.Map{
		"a.txt":     {ETag: `"0cc175b9c0f1b6a831c399e269772661"`, ContentMD5: "DMF1ucDxtqgxw5niaXcmYQ=="},
		"sub/b.txt": {ETag: `"92eb5ffee6ae2fec3ad71c777531578f"`, ContentMD5: "kutf/uauL+w61xx3dTFXjw=="},
	}

	require.NoError(t, SaveSnapshot(path, snap))

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)
}

func TestSnapshotFormat(t *testing.T) {
	// the on-disk shape is a plain {path: {etag, contentMD5}} object
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a.txt":{"etag":"\"1\"","contentMD5":"AA=="}}`), 0644))

	snap, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.Contains(t, snap, "a.txt")
	assert.Equal(t, `"1"`, snap["a.txt"].ETag)
	assert.Equal(t, "AA==", snap["a.txt"].ContentMD5)
}

func TestLoadSnapshotMissing(t *testing.T) {
	snap, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestLoadSnapshotCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0644))

	_, err := LoadSnapshot(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestSnapshotObjects(t *testing.T) {
	snap := fingerprint.Map{"a": {ETag: `"1"`}}
	objects := snapshotObjects(snap)

	require.Contains(t, objects, "a")
	assert.Equal(t, "a", objects["a"].Key)
	assert.Equal(t, `"1"`, objects["a"].ETag)
}
