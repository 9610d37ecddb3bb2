package blobsync

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	eventBufferSize        = 64
	defaultDebounceTimeout = 500 * time.Millisecond
)

// FilterCallback returns true if events for path should be ignored.
type FilterCallback func(path string) bool

// Watcher coalesces recursive filesystem events under a directory into a
// single change signal, debounced so editor save bursts trigger one push.
type Watcher struct {
	watchDir  string
	rawEvents chan notify.EventInfo
	changes   chan struct{}
	debounce  time.Duration
	done      chan struct{}
	wg        sync.WaitGroup
	filter    FilterCallback
	filterMu  sync.RWMutex
}

func NewWatcher(watchDir string) *Watcher {
	return &Watcher{
		watchDir: watchDir,
		changes:  make(chan struct{}, 1),
		debounce: defaultDebounceTimeout,
		done:     make(chan struct{}),
	}
}

func (w *Watcher) SetDebounceTimeout(timeout time.Duration) {
	w.debounce = timeout
}

// FilterPaths installs a callback that drops events for paths it returns
// true for. Used to suppress the engine's own snapshot writes.
func (w *Watcher) FilterPaths(callback FilterCallback) {
	w.filterMu.Lock()
	defer w.filterMu.Unlock()
	w.filter = callback
}

func (w *Watcher) shouldIgnore(path string) bool {
	w.filterMu.RLock()
	defer w.filterMu.RUnlock()
	return w.filter != nil && w.filter(path)
}

func (w *Watcher) Start() error {
	slog.Info("watcher start", "dir", w.watchDir)

	w.rawEvents = make(chan notify.EventInfo, eventBufferSize)

	recursivePath := w.watchDir + "/..."
	if err := notify.Watch(recursivePath, w.rawEvents, notify.Write, notify.Create, notify.Remove, notify.Rename); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.debounceEvents()

	return nil
}

func (w *Watcher) Stop() {
	slog.Info("watcher stopping")

	close(w.done)
	if w.rawEvents != nil {
		notify.Stop(w.rawEvents)
	}
	w.wg.Wait()

	slog.Info("watcher stopped")
}

// Changes delivers one signal per debounced burst of filesystem events.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

func (w *Watcher) debounceEvents() {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := false
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.rawEvents:
			if !ok {
				return
			}
			if w.shouldIgnore(event.Path()) {
				slog.Debug("watcher event ignored", "path", event.Path())
				continue
			}
			slog.Debug("watcher event", "path", event.Path(), "event", event.Event())
			if pending {
				if !timer.Stop() {
					<-timer.C
				}
			}
			timer.Reset(w.debounce)
			pending = true
		case <-timer.C:
			pending = false
			select {
			case w.changes <- struct{}{}:
			default:
				// a signal is already queued
			}
		}
	}
}
