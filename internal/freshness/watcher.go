package freshness

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nateschmiedehaus/librarian/internal/logging"
	"github.com/nateschmiedehaus/librarian/internal/model"
)

// Watcher monitors the workspace filesystem and maintains the fs-cursor
// watch state (heartbeat and reconcile timestamp; each reconcile clears the
// suspected-dead flag),
// grounded on the teacher's debounced fsnotify event loop.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	workspace   string
	store       Store
	ignore      *IgnoreSet
	debounceMap map[string]time.Time
	debounceDur time.Duration
	heartbeat   time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	dirty       map[string]bool
}

// NewWatcher constructs a Watcher for workspace, rooted on the store's
// watch_state blob.
func NewWatcher(workspace string, store Store, ignore *IgnoreSet) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		workspace:   workspace,
		store:       store,
		ignore:      ignore,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		heartbeat:   5 * time.Second,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		dirty:       make(map[string]bool),
	}, nil
}

// Start begins watching the workspace tree, skipping ignored directories.
// Non-blocking: the event loop runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	log := logging.Get(logging.CategoryFreshness)

	err := filepath.WalkDir(w.workspace, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(w.workspace, path)
		if w.ignore != nil && w.ignore.MatchDir(rel) {
			return filepath.SkipDir
		}
		if werr := w.watcher.Add(path); werr != nil {
			log.Warn("failed to watch %s: %v", path, werr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	go w.run(ctx)
	return nil
}

// Stop halts the event loop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()
	heartbeatTicker := time.NewTicker(w.heartbeat)
	defer heartbeatTicker.Stop()

	log := logging.Get(logging.CategoryFreshness)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error("watcher error: %v", err)
		case <-debounceTicker.C:
			w.reconcileDebounced(ctx)
		case <-heartbeatTicker.C:
			w.heartbeatTick(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, _ := filepath.Rel(w.workspace, event.Name)
	if w.ignore != nil && w.ignore.MatchFile(rel) {
		return
	}
	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) reconcileDebounced(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, t := range w.debounceMap {
		if now.Sub(t) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	for _, p := range settled {
		w.dirty[p] = true
	}
	w.mu.Unlock()

	if len(settled) == 0 {
		return
	}

	if _, err := w.store.UpdateWatchState(ctx, watchStateKey, func(cur model.WatchState) model.WatchState {
		cur.WorkspaceRoot = w.workspace
		cur.Cursor.Kind = model.CursorFS
		cur.Cursor.LastReconcileCompleted = time.Now()
		cur.SuspectedDead = false
		return cur
	}); err != nil {
		logging.Get(logging.CategoryFreshness).Warn("failed to persist reconcile timestamp: %v", err)
	}
}

func (w *Watcher) heartbeatTick(ctx context.Context) {
	if _, err := w.store.UpdateWatchState(ctx, watchStateKey, func(cur model.WatchState) model.WatchState {
		cur.WatchLastHeartbeatAt = time.Now()
		return cur
	}); err != nil {
		logging.Get(logging.CategoryFreshness).Warn("failed to persist heartbeat: %v", err)
	}
}

// IsWatching reports whether the event loop is active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
