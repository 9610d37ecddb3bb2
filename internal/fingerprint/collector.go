package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/openmined/blobsync/internal/executor"
	"github.com/openmined/blobsync/internal/hash"
)

const digestMemoSize = 8192

// Collector fingerprints a list of relative file names under a base
// directory, hashing files concurrently up to a fixed ceiling.
type Collector struct {
	baseDir     string
	algorithm   string
	concurrency int
	memo        *lru.Cache[string, memoEntry]
}

// memoEntry caches a digest so unchanged files are not re-hashed on
// repeated collections. Size+mtime equality is the reuse condition.
type memoEntry struct {
	size    int64
	modTime time.Time
	digest  []byte
}

// entry is the per-name executor result. rec is nil for skipped names.
type entry struct {
	name string
	rec  *Record
}

func NewCollector(baseDir, algorithm string, concurrency int) (*Collector, error) {
	if concurrency < 1 {
		return nil, executor.ErrInvalidLimit
	}
	if _, err := hash.New(algorithm); err != nil {
		return nil, err
	}

	memo, err := lru.New[string, memoEntry](digestMemoSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create digest memo: %w", err)
	}

	return &Collector{
		baseDir:     baseDir,
		algorithm:   algorithm,
		concurrency: concurrency,
		memo:        memo,
	}, nil
}

// Collect fingerprints the given relative names and returns the resulting
// map. Non-regular files (directories, special files, broken links) produce
// no entry. Any stat or hash failure aborts the whole pass; no partial map
// is returned.
func (c *Collector) Collect(ctx context.Context, names []string) (Map, error) {
	entries, err := executor.Map(ctx, names, c.concurrency, c.process)
	if err != nil {
		return nil, fmt.Errorf("fingerprint collection failed: %w", err)
	}

	result := make(Map, len(entries))
	for _, e := range entries {
		if e.rec != nil {
			result[e.name] = e.rec
		}
	}
	return result, nil
}

func (c *Collector) process(_ context.Context, name string) (entry, error) {
	absPath := filepath.Join(c.baseDir, filepath.FromSlash(name))

	info, err := os.Stat(absPath)
	if err != nil {
		// broken links and files deleted mid-scan are skipped, not fatal
		if errors.Is(err, os.ErrNotExist) {
			return entry{name: name}, nil
		}
		return entry{}, fmt.Errorf("stat '%s': %w", absPath, err)
	}

	if !info.Mode().IsRegular() {
		return entry{name: name}, nil
	}

	if memoized, ok := c.memo.Get(name); ok &&
		memoized.size == info.Size() && memoized.modTime.Equal(info.ModTime()) {
		return entry{name: name, rec: NewRecord(memoized.digest)}, nil
	}

	digest, err := hash.SumFile(absPath, c.algorithm)
	if err != nil {
		return entry{}, err
	}

	c.memo.Add(name, memoEntry{
		size:    info.Size(),
		modTime: info.ModTime(),
		digest:  digest,
	})

	return entry{name: name, rec: NewRecord(digest)}, nil
}
