// Package watch observes workspace folders with fsnotify and reports folders
// that disappear and data files that change outside the engine. It never
// mutates anything; pruning stays an explicit user action.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/capsule/internal/keys"
)

// Notice kinds.
const (
	KindMissing = "workspace.missing"
	KindChanged = "workspace.changed"
)

// Root is a workspace folder to observe.
type Root struct {
	WorkspaceID string
	Path        string
}

// Notice reports something observed about one workspace.
type Notice struct {
	Kind        string
	WorkspaceID string
	Path        string
}

// Callback receives notices. It is called from the watcher goroutine and
// from Track.
type Callback func(Notice)

// Watcher tracks a set of workspace roots.
type Watcher struct {
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration
	cb       Callback

	mu    sync.Mutex
	roots map[string]string // cleaned path -> workspace id
}

// New creates a watcher. Changes to a data file are coalesced for debounce.
func New(logger *slog.Logger, debounce time.Duration, cb Callback) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	if cb == nil {
		cb = func(Notice) {}
	}
	return &Watcher{
		fsw:      fsw,
		logger:   logger,
		debounce: debounce,
		cb:       cb,
		roots:    make(map[string]string),
	}, nil
}

// Close releases the fsnotify watcher. Run returns afterwards.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Track replaces the watched set with roots. Roots that cannot be watched
// because their folder no longer exists are reported as missing at once.
func (w *Watcher) Track(roots []Root) {
	want := make(map[string]string, len(roots))
	for _, r := range roots {
		if r.Path == "" {
			continue
		}
		want[filepath.Clean(r.Path)] = r.WorkspaceID
	}

	var missing []Notice
	w.mu.Lock()
	for path := range w.roots {
		if _, keep := want[path]; !keep {
			_ = w.fsw.Remove(path)
			delete(w.roots, path)
		}
	}
	for path, id := range want {
		if _, ok := w.roots[path]; ok {
			w.roots[path] = id
			continue
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			missing = append(missing, Notice{Kind: KindMissing, WorkspaceID: id, Path: path})
			continue
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("watch: add failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		w.roots[path] = id
	}
	n := len(w.roots)
	w.mu.Unlock()

	w.logger.Debug("watch: tracking", slog.Int("roots", n), slog.Int("missing", len(missing)))
	for _, m := range missing {
		w.cb(m)
	}
}

// Run processes fsnotify events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	pending := make(map[string]Notice)
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func(n Notice) {
		pending[n.WorkspaceID] = n
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerCh = timer.C
			return
		}
		timer.Reset(w.debounce)
	}
	flush := func() {
		ids := make([]string, 0, len(pending))
		for id := range pending {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			w.cb(pending[id])
		}
		clear(pending)
	}

	w.logger.Info("watch: started")
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("watch: stopped")
			return nil

		case <-timerCh:
			flush()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if n, ok := w.classify(ev); ok {
				if n.Kind == KindMissing {
					delete(pending, n.WorkspaceID)
					w.cb(n)
					continue
				}
				schedule(n)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch: error", slog.String("error", err.Error()))
		}
	}
}

// classify maps a raw event to a notice about a tracked workspace.
func (w *Watcher) classify(ev fsnotify.Event) (Notice, bool) {
	name := filepath.Clean(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if id, ok := w.roots[name]; ok && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if _, err := os.Stat(name); err == nil {
			return Notice{}, false
		}
		delete(w.roots, name)
		_ = w.fsw.Remove(name)
		return Notice{Kind: KindMissing, WorkspaceID: id, Path: name}, true
	}

	if filepath.Base(name) != keys.DataFileName {
		return Notice{}, false
	}
	root := filepath.Dir(name)
	id, ok := w.roots[root]
	if !ok || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return Notice{}, false
	}
	return Notice{Kind: KindChanged, WorkspaceID: id, Path: root}, true
}
