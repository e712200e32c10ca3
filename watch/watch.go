// Package watch ingests files dropped into a directory and removes documents
// whose files disappear.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a path must stay quiet before it is handled.
const DefaultDebounce = 500 * time.Millisecond

var (
	// ErrSinkRequired is returned when a nil sink is provided.
	ErrSinkRequired = errors.New("watch sink required")

	// ErrNotDirectory is returned when the watched path is not a directory.
	ErrNotDirectory = errors.New("not a directory")
)

// Sink receives settled file changes.
type Sink interface {
	// Ingest submits the file at path.
	Ingest(ctx context.Context, path string) error
	// Remove deletes the document that was ingested from path.
	Remove(ctx context.Context, path string) error
}

type action int

const (
	actionNone action = iota
	actionIngest
	actionRemove
)

// Watcher watches one directory, non-recursively.
type Watcher struct {
	dir      string
	sink     Sink
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher) error

// WithDebounce sets the quiet period before a change is handled.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) error {
		if d < 0 {
			return fmt.Errorf("debounce must not be negative, got %v", d)
		}
		w.debounce = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// New creates a Watcher for dir.
func New(dir string, sink Sink, opts ...Option) (*Watcher, error) {
	if sink == nil {
		return nil, ErrSinkRequired
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	w := &Watcher{
		dir:      dir,
		sink:     sink,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	w.logger = w.logger.With("component", "watch", "dir", dir)
	return w, nil
}

// Scan ingests every file already present in the directory.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, err
	}

	var errs []error
	n := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || hidden(entry.Name()) {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if err := w.sink.Ingest(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.Name(), err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Run handles file events until ctx is cancelled. Changes still waiting
// out their debounce period are dropped.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching directory")

	defer w.wg.Wait()
	defer w.stopPending()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if act := classify(ev); act != actionNone {
				w.schedule(ctx, ev.Name, act)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "err", err)
		}
	}
}

// classify maps an event to the action it triggers.
func classify(ev fsnotify.Event) action {
	if hidden(filepath.Base(ev.Name)) {
		return actionNone
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return actionRemove
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(ev.Name)
		if err != nil || !info.Mode().IsRegular() {
			return actionNone
		}
		return actionIngest
	}
	return actionNone
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}

// schedule runs act for path once the path has been quiet for the debounce
// period. A newer event for the same path replaces the pending one.
func (w *Watcher) schedule(ctx context.Context, path string, act action) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}

	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()

		w.mu.Lock()
		if w.pending[path] == timer {
			delete(w.pending, path)
		}
		w.mu.Unlock()

		var err error
		switch act {
		case actionIngest:
			err = w.sink.Ingest(ctx, path)
		case actionRemove:
			err = w.sink.Remove(ctx, path)
		}
		if err != nil && ctx.Err() == nil {
			w.logger.Error("error handling file change", "path", path, "err", err)
			return
		}
		w.logger.Debug("file change handled", "path", path, "action", act)
	})
	w.pending[path] = timer
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}
