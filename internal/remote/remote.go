package remote

import (
	"context"
	"time"
)

// Store is the remote side of a push: list the current object map, upload
// changed content, delete stale keys.
type Store interface {
	List(ctx context.Context) (map[string]*Object, error)
	Upload(ctx context.Context, params *UploadParams) (*PutResponse, error)
	Delete(ctx context.Context, keys []string) ([]string, error)
}

// Object describes one remote object. ETag keeps the store's quoting so it
// compares directly against locally computed etags. The descriptor is passed
// through diffing untouched.
type Object struct {
	Key          string    `json:"key"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	StorageClass string    `json:"storageClass,omitempty"`
}

type UploadParams struct {
	Key        string
	FilePath   string
	ContentMD5 string
	Gzip       bool
}

type PutResponse struct {
	Key  string
	ETag string
	Size int64
}
