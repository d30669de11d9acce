package resource

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/promptforge/promptforge/logger"
)

// ChangeType classifies a watched filesystem change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// Change is one coalesced filesystem change affecting a resource directory.
type Change struct {
	Type ChangeType
	ID   string // resource directory name
	Dir  string // absolute resource directory
	Path string // file that triggered the change
}

// debounceWindow coalesces editor write bursts into one change.
const debounceWindow = 200 * time.Millisecond

// Watcher observes a resource root for YAML and companion file changes and
// delivers coalesced per-resource Change values on C.
type Watcher struct {
	root    string
	watcher *fsnotify.Watcher

	// C delivers coalesced changes. Closed by Close.
	C chan Change

	mu      sync.Mutex
	pending map[string]*pendingChange
	done    chan struct{}
	closed  bool

	// inflight counts debounce callbacks that have committed to sending on
	// C. Close waits for them before closing the channel.
	inflight sync.WaitGroup
}

type pendingChange struct {
	change Change
	timer  *time.Timer
}

// NewWatcher starts watching root and all existing resource directories
// beneath it.
func NewWatcher(root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:    root,
		watcher: fsw,
		C:       make(chan Change, 64),
		pending: make(map[string]*pendingChange),
		done:    make(chan struct{}),
	}

	if err := fsw.Add(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := fsw.Add(filepath.Join(root, e.Name())); err != nil {
				logger.Warn("watch add failed", "dir", e.Name(), "error", err)
			}
		}
	}

	go w.loop()
	return w, nil
}

// Close stops the watcher and closes C.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, p := range w.pending {
		p.timer.Stop()
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.done
	w.inflight.Wait()
	close(w.C)
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("resource watcher error", "root", w.root, "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	id := parts[0]
	dir := filepath.Join(w.root, id)

	// A new resource directory appears: watch it and report an add once its
	// manifest lands.
	if len(parts) == 1 && event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				logger.Warn("watch add failed", "dir", event.Name, "error", err)
			}
			return
		}
	}

	// Only manifest and companion files are interesting.
	base := filepath.Base(event.Name)
	interesting := strings.HasSuffix(base, ".yaml") ||
		base == CompanionGuidance || base == CompanionUserMessage
	if len(parts) > 1 && !interesting {
		return
	}

	change := Change{ID: id, Dir: dir, Path: event.Name}
	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			change.Type = ChangeRemoved
		} else {
			change.Type = ChangeModified
		}
	case event.Op.Has(fsnotify.Create):
		change.Type = ChangeAdded
	case event.Op.Has(fsnotify.Write):
		change.Type = ChangeModified
	default:
		return
	}

	w.debounce(change)
}

// debounce coalesces rapid successive events for the same resource ID into a
// single delivery after debounceWindow of quiet. Removal outranks
// modification within a window.
func (w *Watcher) debounce(change Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if p, ok := w.pending[change.ID]; ok {
		if change.Type == ChangeRemoved {
			p.change = change
		} else if p.change.Type != ChangeRemoved {
			p.change.Path = change.Path
			if p.change.Type != ChangeAdded {
				p.change.Type = change.Type
			}
		}
		p.timer.Reset(debounceWindow)
		return
	}

	p := &pendingChange{change: change}
	p.timer = time.AfterFunc(debounceWindow, func() {
		// The closed check and the inflight registration share the mutex
		// with Close, so a callback either sends before Close closes C or
		// observes closed and drops the change.
		w.mu.Lock()
		delete(w.pending, change.ID)
		if w.closed {
			w.mu.Unlock()
			return
		}
		out := p.change
		w.inflight.Add(1)
		w.mu.Unlock()
		defer w.inflight.Done()

		// done unblocks a send stranded by a consumer that went away
		// during shutdown.
		select {
		case w.C <- out:
		case <-w.done:
		}
	})
	w.pending[change.ID] = p
}
