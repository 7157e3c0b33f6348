// sigil/watcher.go
// Filesystem watcher keeping the workspace index in sync with on-disk edits
// made outside the editor session.
package sigil

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reindexes source files as they change on disk. Events are
// debounced so a burst of writes (e.g. a formatter pass) triggers one
// reindex per file.
type Watcher struct {
	workspace Watched
	fsWatcher *fsnotify.Watcher
	logger    *slog.Logger

	debounce      time.Duration
	pendingMu     sync.Mutex
	pending       map[string]struct{}
	debounceTimer *time.Timer

	onReindex func(updated, removed int)

	done      chan struct{}
	closeOnce sync.Once
}

// Watched is the subset of workspace behavior the watcher drives.
type Watched interface {
	SetFile(id FileID, content []byte, version int)
	RemoveFile(id FileID)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides the event debounce interval.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithOnReindex sets a callback invoked after each debounced reindex pass.
func WithOnReindex(fn func(updated, removed int)) WatcherOption {
	return func(w *Watcher) { w.onReindex = fn }
}

// NewWatcher watches root recursively and feeds changes into workspace.
func NewWatcher(root string, workspace Watched, logger *slog.Logger, opts ...WatcherOption) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &Watcher{
		workspace: workspace,
		fsWatcher: fsWatcher,
		logger:    logger,
		debounce:  time.Duration(defaultWatchDebounceMs) * time.Millisecond,
		pending:   make(map[string]struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.addDirs(root); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}
	return w, nil
}

// Start begins delivering events. Call Stop to shut the watcher down.
func (w *Watcher) Start() {
	go w.eventLoop()
}

// Stop halts event delivery and releases the underlying watcher.
func (w *Watcher) Stop() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *Watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || name == "target" || name == "node_modules") {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Filesystem watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	// New directories need their own watch registration.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsWatcher.Add(event.Name); err != nil {
				w.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !strings.HasSuffix(event.Name, sourceFileExt) {
		return
	}

	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.pending[event.Name] = struct{}{}
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, w.flushPending)
}

// flushPending reindexes every file accumulated during the debounce window.
func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	files := make([]string, 0, len(w.pending))
	for f := range w.pending {
		files = append(files, f)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	if len(files) == 0 {
		return
	}

	updated, removed := 0, 0
	for _, path := range files {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		content, err := os.ReadFile(abs)
		if err != nil {
			if os.IsNotExist(err) {
				w.workspace.RemoveFile(FileID(abs))
				removed++
				continue
			}
			w.logger.Warn("Failed to read changed file", "path", abs, "error", err)
			continue
		}
		w.workspace.SetFile(FileID(abs), content, 0)
		updated++
	}
	w.logger.Debug("Watcher reindex pass", "updated", updated, "removed", removed)
	if w.onReindex != nil {
		w.onReindex(updated, removed)
	}
}
