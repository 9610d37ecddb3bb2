package blobsync

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/openmined/blobsync/internal/fingerprint"
	"github.com/openmined/blobsync/internal/remote"
	"github.com/openmined/blobsync/internal/utils"
)

// A snapshot persists the last pushed fingerprint map as a JSON object of
// the form {"path": {"etag": "...", "contentMD5": "..."}}. The format is the
// remote-state cache contract and must stay byte-compatible.

var ErrSnapshotLocked = errors.New("snapshot is locked by another process")

// LoadSnapshot reads a snapshot file. A missing file yields an empty map.
func LoadSnapshot(path string) (fingerprint.Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fingerprint.Map{}, nil
		}
		return nil, fmt.Errorf("read snapshot '%s': %w", path, err)
	}

	var snap fingerprint.Map
	if err := jsonUnmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot '%s': %w", path, err)
	}

	return snap, nil
}

// SaveSnapshot writes the snapshot atomically (temp file + rename) under an
// advisory file lock so concurrent pushes cannot interleave writes.
func SaveSnapshot(path string, snap fingerprint.Map) error {
	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("failed to ensure parent: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock snapshot '%s': %w", path, err)
	}
	if !locked {
		return ErrSnapshotLocked
	}
	defer lock.Unlock()

	data, err := jsonMarshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	success = true
	return nil
}

// snapshotObjects converts a persisted snapshot into remote descriptors so a
// plan can be computed without a live listing.
func snapshotObjects(snap fingerprint.Map) map[string]*remote.Object {
	objects := make(map[string]*remote.Object, len(snap))
	for path, rec := range snap {
		objects[path] = &remote.Object{
			Key:  path,
			ETag: rec.ETag,
		}
	}
	return objects
}
