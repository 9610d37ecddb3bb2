package blobsync

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherSignalsOnWrite(t *testing.T) {
	dir := t.TempDir()

	w := NewWatcher(dir)
	w.SetDebounceTimeout(50 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	// give the platform watcher a moment to arm
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))

	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change signal")
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()

	w := NewWatcher(dir)
	w.SetDebounceTimeout(200 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	for i := range 5 {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "burst.txt"), []byte{byte(i)}, 0644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change signal")
	}

	// the burst should have collapsed into a single signal
	select {
	case <-w.Changes():
		t.Fatal("expected no second signal for a single burst")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcherFilterPaths(t *testing.T) {
	dir := t.TempDir()

	w := NewWatcher(dir)
	w.SetDebounceTimeout(50 * time.Millisecond)
	ignored := filepath.Join(dir, "state")
	w.FilterPaths(func(path string) bool {
		return strings.HasPrefix(path, ignored)
	})
	require.NoError(t, w.Start())
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.MkdirAll(ignored, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(ignored, "snapshot.json"), []byte("{}"), 0644))

	select {
	case <-w.Changes():
		t.Fatal("filtered paths must not signal")
	case <-time.After(500 * time.Millisecond):
	}

	// unfiltered paths still do
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))
	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("expected a change signal")
	}
}

func TestWatcherStop(t *testing.T) {
	dir := t.TempDir()

	w := NewWatcher(dir)
	require.NoError(t, w.Start())
	w.Stop()

	// channel stays readable but carries nothing after stop
	select {
	case <-w.Changes():
		t.Fatal("unexpected signal after stop")
	default:
	}
	assert.NotNil(t, w.Changes())
}
