package blobsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/openmined/blobsync/internal/blobsync/config"
	"github.com/openmined/blobsync/internal/diff"
	"github.com/openmined/blobsync/internal/executor"
	"github.com/openmined/blobsync/internal/fingerprint"
	"github.com/openmined/blobsync/internal/remote"
)

const DefaultWatchInterval = 30 * time.Second

var (
	ErrPushAlreadyRunning = errors.New("push already running")
	ErrNoSnapshotPath     = errors.New("no snapshot path configured")
)

// Engine drives one-way push synchronization: scan, fingerprint, diff,
// upload and delete against the remote store.
type Engine struct {
	cfg       *config.Config
	store     remote.Store
	collector *fingerprint.Collector
	muPush    sync.Mutex
}

func NewEngine(cfg *config.Config, store remote.Store) (*Engine, error) {
	collector, err := fingerprint.NewCollector(cfg.BaseDir, cfg.Algorithm, cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create collector: %w", err)
	}

	return &Engine{
		cfg:       cfg,
		store:     store,
		collector: collector,
	}, nil
}

type PushResult struct {
	Uploaded      int
	Deleted       int
	Unchanged     int
	UploadedBytes int64
}

func (e *Engine) collectLocal(ctx context.Context) (fingerprint.Map, error) {
	names, err := Scan(e.cfg.BaseDir, e.cfg.Include, e.cfg.Exclude)
	if err != nil {
		return nil, fmt.Errorf("scan local tree: %w", err)
	}
	return e.collector.Collect(ctx, names)
}

// remoteState lists the remote store. With gzip enabled the stored objects
// hold compressed bytes, so their listed etags never equal local
// fingerprints; the snapshot's recorded etags stand in for keys that are
// still present remotely, keeping repeat pushes minimal.
func (e *Engine) remoteState(ctx context.Context) (map[string]*remote.Object, error) {
	remoteMap, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("get remote state: %w", err)
	}

	if !e.cfg.Gzip || e.cfg.SnapshotPath == "" {
		return remoteMap, nil
	}

	snap, err := LoadSnapshot(e.cfg.SnapshotPath)
	if err != nil {
		return nil, err
	}
	for key, obj := range remoteMap {
		if rec, ok := snap[key]; ok {
			etagged := *obj
			etagged.ETag = rec.ETag
			remoteMap[key] = &etagged
		}
	}
	return remoteMap, nil
}

// Plan computes the upload/delete sets against the live remote listing
// without touching the store.
func (e *Engine) Plan(ctx context.Context) (*diff.Result, error) {
	local, err := e.collectLocal(ctx)
	if err != nil {
		return nil, err
	}

	remoteMap, err := e.remoteState(ctx)
	if err != nil {
		return nil, err
	}

	return diff.Compute(local, remoteMap)
}

// PlanCached computes the plan against the persisted snapshot instead of a
// live listing, so it works offline.
func (e *Engine) PlanCached(ctx context.Context) (*diff.Result, error) {
	if e.cfg.SnapshotPath == "" {
		return nil, ErrNoSnapshotPath
	}

	local, err := e.collectLocal(ctx)
	if err != nil {
		return nil, err
	}

	snap, err := LoadSnapshot(e.cfg.SnapshotPath)
	if err != nil {
		return nil, err
	}

	return diff.Compute(local, snapshotObjects(snap))
}

// Push executes a full sync pass. Uploads run through the bounded executor
// at the configured ceiling and fail the pass on first error; the snapshot
// is only persisted after a fully successful pass.
func (e *Engine) Push(ctx context.Context) (*PushResult, error) {
	if !e.muPush.TryLock() {
		return nil, ErrPushAlreadyRunning
	}
	defer e.muPush.Unlock()

	tStart := time.Now()

	local, err := e.collectLocal(ctx)
	if err != nil {
		return nil, err
	}

	remoteMap, err := e.remoteState(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := diff.Compute(local, remoteMap)
	if err != nil {
		return nil, err
	}

	result := &PushResult{
		Unchanged: len(local) - len(plan.ToUpload),
	}

	uploads := make([]string, 0, len(plan.ToUpload))
	for path := range plan.ToUpload {
		uploads = append(uploads, path)
	}
	sort.Strings(uploads)

	sizes, err := executor.Map(ctx, uploads, e.cfg.Concurrency, func(ctx context.Context, key string) (int64, error) {
		rec := plan.ToUpload[key]
		resp, err := e.store.Upload(ctx, &remote.UploadParams{
			Key:        key,
			FilePath:   filepath.Join(e.cfg.BaseDir, filepath.FromSlash(key)),
			ContentMD5: rec.ContentMD5,
			Gzip:       e.cfg.Gzip,
		})
		if err != nil {
			return 0, err
		}
		slog.Info("push", "op", "PUT", "path", key, "size", resp.Size)
		return resp.Size, nil
	})
	if err != nil {
		return nil, fmt.Errorf("push uploads: %w", err)
	}
	result.Uploaded = len(uploads)
	for _, size := range sizes {
		result.UploadedBytes += size
	}

	if len(plan.ToDelete) > 0 {
		deleteKeys := make([]string, 0, len(plan.ToDelete))
		for path := range plan.ToDelete {
			deleteKeys = append(deleteKeys, path)
		}
		sort.Strings(deleteKeys)

		deleted, err := e.store.Delete(ctx, deleteKeys)
		if err != nil {
			return nil, fmt.Errorf("push deletes: %w", err)
		}
		for _, key := range deleted {
			slog.Info("push", "op", "DELETE", "path", key)
		}
		result.Deleted = len(deleted)
	}

	if e.cfg.SnapshotPath != "" {
		if err := SaveSnapshot(e.cfg.SnapshotPath, local); err != nil {
			slog.Warn("snapshot save failed", "error", err)
		}
	}

	slog.Info("push complete",
		"uploads", result.Uploaded,
		"deletes", result.Deleted,
		"unchanged", result.Unchanged,
		"sent", humanize.Bytes(uint64(result.UploadedBytes)),
		"took", time.Since(tStart),
	)

	return result, nil
}

// Watch pushes on filesystem changes and on a periodic full-sync timer
// until the context is cancelled.
func (e *Engine) Watch(ctx context.Context, interval time.Duration) error {
	watcher := NewWatcher(e.cfg.BaseDir)
	if e.cfg.SnapshotPath != "" {
		// pushes write the snapshot (plus its lock and temp files); those
		// events must not re-arm the watcher or watch mode loops on itself
		snapshotPath := e.cfg.SnapshotPath
		snapshotDir := filepath.Dir(snapshotPath)
		watcher.FilterPaths(func(path string) bool {
			if strings.HasPrefix(path, snapshotPath) {
				return true
			}
			return snapshotDir != e.cfg.BaseDir &&
				(path == snapshotDir || strings.HasPrefix(path, snapshotDir+string(os.PathSeparator)))
		})
	}
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Stop()

	e.pushLogged(ctx)

	// a timer and not a ticker, so a slow push does not queue ticks
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-watcher.Changes():
			e.pushLogged(ctx)
		case <-timer.C:
			e.pushLogged(ctx)
			timer.Reset(interval)
		}
	}
}

func (e *Engine) pushLogged(ctx context.Context) {
	_, err := e.Push(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrPushAlreadyRunning) {
		slog.Error("push failed", "error", err)
	}
}
