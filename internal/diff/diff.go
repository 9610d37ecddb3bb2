// Package diff reconciles a local fingerprint map against a remote object
// map into the minimal upload and delete sets.
package diff

import (
	"errors"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/openmined/blobsync/internal/fingerprint"
	"github.com/openmined/blobsync/internal/remote"
)

var (
	ErrNilLocal  = errors.New("local fingerprint map is nil")
	ErrNilRemote = errors.New("remote object map is nil")
)

// Result is the push plan. ToUpload holds local records that are new or
// changed; ToDelete holds remote descriptors with no local counterpart,
// preserved exactly as listed.
type Result struct {
	ToUpload map[string]*fingerprint.Record
	ToDelete map[string]*remote.Object
}

// HasChanges reports whether executing the plan would touch the store.
func (r *Result) HasChanges() bool {
	return len(r.ToUpload) > 0 || len(r.ToDelete) > 0
}

// Compute compares local against remoteObjects. Pure and single pass: a
// local key missing remotely or carrying a different etag is uploaded;
// remote-only keys (an explicit set difference) are deleted; identical etags
// need no I/O. Inputs are never mutated.
func Compute(local fingerprint.Map, remoteObjects map[string]*remote.Object) (*Result, error) {
	if local == nil {
		return nil, ErrNilLocal
	}
	if remoteObjects == nil {
		return nil, ErrNilRemote
	}

	result := &Result{
		ToUpload: make(map[string]*fingerprint.Record),
		ToDelete: make(map[string]*remote.Object),
	}

	localKeys := mapset.NewThreadUnsafeSetWithSize[string](len(local))
	for path, rec := range local {
		localKeys.Add(path)
		obj, exists := remoteObjects[path]
		if !exists || obj.ETag != rec.ETag {
			result.ToUpload[path] = rec
		}
	}

	remoteKeys := mapset.NewThreadUnsafeSetWithSize[string](len(remoteObjects))
	for path := range remoteObjects {
		remoteKeys.Add(path)
	}

	for path := range remoteKeys.Difference(localKeys).Iter() {
		result.ToDelete[path] = remoteObjects[path]
	}

	return result, nil
}
