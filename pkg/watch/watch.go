// Package watch keeps the embedding store in step with a notes directory by
// re-indexing notes as they are saved and clearing them when they are removed.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/notevec/pkg/indexer"
	"github.com/papercomputeco/notevec/pkg/notes"
	"github.com/papercomputeco/notevec/pkg/notes/fsnotes"
	"github.com/papercomputeco/notevec/pkg/vector"
)

// DefaultDebounce is how long a path must stay quiet before it is synced.
const DefaultDebounce = 400 * time.Millisecond

// Updater applies note changes to the store. *indexer.Indexer implements it.
type Updater interface {
	UpdateNode(ctx context.Context, node *notes.Node) (*indexer.NodeResult, error)
	ClearNode(ctx context.Context, id string) error
}

// Config holds configuration for a Watcher.
type Config struct {
	Source  *fsnotes.Source
	Updater Updater

	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration

	Logger *slog.Logger
}

// Watcher watches the notes directory tree. Changes are debounced per path
// and applied one at a time.
type Watcher struct {
	source   *fsnotes.Source
	updater  Updater
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	timers  map[string]*time.Timer
	ids     map[string]string
	pending chan string
	cancel  context.CancelFunc
	done    chan struct{}
}

// New validates c and returns a Watcher. Call Start to begin watching.
func New(c Config) (*Watcher, error) {
	switch {
	case c.Source == nil:
		return nil, fmt.Errorf("%w: watcher requires a notes directory source", vector.ErrConfiguration)
	case c.Updater == nil:
		return nil, fmt.Errorf("%w: watcher requires an updater", vector.ErrConfiguration)
	case c.Logger == nil:
		return nil, fmt.Errorf("%w: watcher requires a logger", vector.ErrConfiguration)
	}

	debounce := c.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		source:   c.Source,
		updater:  c.Updater,
		debounce: debounce,
		logger:   c.Logger,
		timers:   map[string]*time.Timer{},
		ids:      map[string]string{},
		pending:  make(chan string, 64),
	}, nil
}

// Start records the current note ids, registers every directory under the
// root and begins processing events in the background. It runs until ctx is
// cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fsw != nil {
		return errors.New("watcher already started")
	}

	nodes, err := w.source.Nodes(ctx)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		w.ids[filepath.Join(w.source.Dir(), filepath.FromSlash(n.Path))] = n.ID
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	if err := addTree(fsw, w.source.Dir()); err != nil {
		_ = fsw.Close()
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.fsw = fsw
	w.done = make(chan struct{})

	w.logger.Info("watching notes", "dir", w.source.Dir(), "nodes", len(nodes))

	go w.run(ctx, fsw)
	return nil
}

// Close stops watching and waits for the change being applied, if any.
func (w *Watcher) Close() error {
	w.mu.Lock()
	fsw, cancel, done := w.fsw, w.cancel, w.done
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	if fsw == nil {
		return nil
	}
	cancel()
	<-done
	return fsw.Close()
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		case path := <-w.pending:
			w.sync(ctx, path)
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	path := ev.Name
	w.logger.Debug("file event", "op", ev.Op.String(), "path", path)

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if hidden(info.Name()) {
				return
			}
			if err := addTree(fsw, path); err != nil {
				w.logger.Warn("watching new directory failed", "path", path, "error", err)
			}
			w.scheduleTree(path)
			return
		}
	}

	if !w.source.IsNote(path) {
		return
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		w.schedule(path)
	}
}

// schedule queues path once it has been quiet for the debounce interval.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		done := w.done
		w.mu.Unlock()

		select {
		case w.pending <- path:
		case <-done:
		}
	})
}

func (w *Watcher) scheduleTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.source.IsNote(path) {
			w.schedule(path)
		}
		return nil
	})
}

// sync applies the current state of path: an existing note is re-indexed,
// a missing one is cleared.
func (w *Watcher) sync(ctx context.Context, path string) {
	w.mu.Lock()
	prevID, known := w.ids[path]
	w.mu.Unlock()

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if !known {
			return
		}
		w.mu.Lock()
		delete(w.ids, path)
		w.mu.Unlock()

		if err := w.updater.ClearNode(ctx, prevID); err != nil {
			w.logger.Warn("clearing removed note failed", "path", path, "node_id", prevID, "error", err)
		}
		return
	}

	node, err := w.source.Load(path)
	if err != nil {
		w.logger.Warn("reading changed note failed", "path", path, "error", err)
		return
	}

	if known && prevID != node.ID {
		if err := w.updater.ClearNode(ctx, prevID); err != nil {
			w.logger.Warn("clearing renamed node failed", "path", path, "node_id", prevID, "error", err)
		}
	}

	w.mu.Lock()
	w.ids[path] = node.ID
	w.mu.Unlock()

	// The indexer logs the outcome.
	_, _ = w.updater.UpdateNode(ctx, node)
}

func addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
