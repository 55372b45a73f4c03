package hifi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps the index of one subtree current by refreshing the
// directories that filesystem events touch
type Watcher struct {
	indexer  *Indexer
	root     string
	debounce time.Duration
	fsw      *fsnotify.Watcher

	// dirty directories awaiting a refresh
	dirty map[string]struct{}

	// OnFlush, when set, is called after each batch of refreshes
	OnFlush func(runs []*ScanRun, removed int)
}

// NewWatcher creates a watcher for root. Events are collected for debounce
// before the touched directories are refreshed.
func NewWatcher(ix *Indexer, root string, debounce time.Duration) (*Watcher, error) {
	absRoot, err := resolvePath(root, false)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Path: absRoot, Err: err}
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cannot watch %s: not a directory", absRoot)
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		indexer:  ix,
		root:     absRoot,
		debounce: debounce,
		dirty:    make(map[string]struct{}),
	}, nil
}

// Run refreshes and cleans the root once, then follows filesystem events
// until ctx is cancelled. Pending changes are flushed before returning.
func (w *Watcher) Run(ctx context.Context) error {
	defer VerboseEnter()()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cannot create watcher for %s: %w", w.root, err)
	}
	w.fsw = fsw
	defer fsw.Close()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	w.dirty[w.root] = struct{}{}
	if err := w.flush(ctx); err != nil {
		return err
	}
	VerboseLog(1, "Watching %s", w.root)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return errors.New("filesystem events channel unexpectedly closed")
			}
			if w.handleEvent(event) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("filesystem errors channel unexpectedly closed")
			}
			Warnf("watcher for %s returned error: %v", w.root, err)

		case <-timer.C:
			if err := w.flush(ctx); err != nil {
				return err
			}

		case <-ctx.Done():
			if len(w.dirty) > 0 {
				VerboseLog(1, "Flushing %d pending directories before stopping", len(w.dirty))
				if err := w.flush(context.WithoutCancel(ctx)); err != nil {
					return err
				}
			}
			VerboseLog(1, "Stopped watching %s", w.root)
			return nil
		}
	}
}

// handleEvent marks the directory affected by event dirty. It returns
// false for events that need no refresh.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	switch {
	case event.Op&fsnotify.Create != 0:
		info, err := os.Lstat(event.Name)
		if err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				Warnf("%v", err)
			}
			w.markDirty(event.Name)
		}
		w.markDirty(filepath.Dir(event.Name))

	case event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0:
		w.markDirty(filepath.Dir(event.Name))

	default:
		// Chmod changes neither size nor mtime
		return false
	}

	if IsDebugEnabled("watch") {
		VerboseLog(3, "watch: %s %s", event.Op, event.Name)
	}
	return true
}

func (w *Watcher) markDirty(dir string) {
	if isPathUnder(dir, w.root) {
		w.dirty[dir] = struct{}{}
	}
}

// addRecursive watches dir and every directory below it. Symlinked
// directories are not followed.
func (w *Watcher) addRecursive(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("cannot watch directory %s: %w", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		Warnf("cannot read directory %s: %v", dir, err)
		return nil
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(dir, entry.Name())
		if w.indexer.ignore.ShouldIgnore(sub, true) {
			continue
		}
		if err := w.addRecursive(sub); err != nil {
			Warnf("%v", err)
		}
	}
	return nil
}

// flush refreshes and cleans every dirty directory, outermost first
func (w *Watcher) flush(ctx context.Context) error {
	if len(w.dirty) == 0 {
		return nil
	}
	dirs := make([]string, 0, len(w.dirty))
	for dir := range w.dirty {
		dirs = append(dirs, dir)
	}
	w.dirty = make(map[string]struct{})
	dirs = deduplicatePaths(dirs)

	var runs []*ScanRun
	for _, dir := range dirs {
		run, err := w.indexer.Refresh(ctx, dir)
		var nf *NotFoundError
		switch {
		case errors.As(err, &nf):
			// Removed before we got to it, cleanup below drops its records
		case err != nil:
			return err
		default:
			runs = append(runs, run)
		}
	}

	removed, err := w.indexer.Cleanup(ctx, dirs...)
	if err != nil {
		return err
	}
	if w.OnFlush != nil {
		w.OnFlush(runs, removed)
	}
	return nil
}
