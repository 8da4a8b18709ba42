// Package watcher reports changes under a local source tree so that the
// tree can be rebuilt. fsnotify events are debounced into sorted batches
// of slash separated paths relative to the root.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period that ends a batch.
const DefaultDebounce = 500 * time.Millisecond

// defaultSkipDirs are never watched.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"dist":         true,
	"__pycache__":  true,
	".repoindex":   true,
}

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	// SkipDir reports whether a directory, given by its base name, is
	// left unwatched. Nil uses the built-in list.
	SkipDir func(name string) bool
}

// Watcher watches a directory tree recursively.
type Watcher struct {
	root string
	opts Options
	fsw  *fsnotify.Watcher
	deb  *Debouncer
}

// New creates a Watcher for root. Call Run to start watching.
func New(root string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.SkipDir == nil {
		opts.SkipDir = func(name string) bool { return defaultSkipDirs[name] }
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{root: abs, opts: opts, fsw: fsw, deb: NewDebouncer(opts.Debounce)}, nil
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Changes delivers batches of changed paths. It is closed when Run
// returns.
func (w *Watcher) Changes() <-chan []string {
	return w.deb.Output()
}

// Run watches until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.deb.Stop()

	if err := w.addTree(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	slog.Debug("watcher_started", slog.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." {
		return
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if w.opts.SkipDir(part) {
			return
		}
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				slog.Warn("watcher_add_failed",
					slog.String("path", rel),
					slog.String("error", err.Error()))
			}
		}
	}
	w.deb.Add(rel)
}

// addTree watches dir and every directory below it that is not skipped.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.opts.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}
