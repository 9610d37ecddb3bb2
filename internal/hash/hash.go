// Package hash computes streaming content digests for change detection.
// Digests are content-identity fingerprints, not security primitives.
package hash

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"
)

const (
	AlgoMD5    = "md5"
	AlgoSHA1   = "sha1"
	AlgoSHA256 = "sha256"

	// DefaultAlgorithm matches the remote store's etag convention.
	DefaultAlgorithm = AlgoMD5
)

// New returns a fresh hash for the given algorithm identifier.
func New(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case AlgoMD5:
		return md5.New(), nil
	case AlgoSHA1:
		return sha1.New(), nil
	case AlgoSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", algorithm)
	}
}

// SumFile streams the file at path through the given algorithm and returns
// the raw digest bytes. The file is never fully buffered in memory. An empty
// file yields the algorithm's digest of the empty input.
func SumFile(path string, algorithm string) ([]byte, error) {
	h, err := New(algorithm)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file '%s': %w", path, err)
	}
	defer file.Close()

	if _, err := io.Copy(h, file); err != nil {
		return nil, fmt.Errorf("failed to read file content for hashing '%s': %w", path, err)
	}

	return h.Sum(nil), nil
}
