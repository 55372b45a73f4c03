package hifi

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Classification is the outcome of comparing a walked path with the store
type Classification int

const (
	ClassNew Classification = iota
	ClassUnchanged
	ClassModified
	ClassIgnoredSymlink
	ClassIgnoredSpecial
	ClassIgnoredEncoding
	ClassIgnoredPattern
	ClassIgnoredUnreadable
)

func (c Classification) String() string {
	switch c {
	case ClassNew:
		return "NEW"
	case ClassUnchanged:
		return "UNCHANGED"
	case ClassModified:
		return "MODIFIED"
	case ClassIgnoredSymlink:
		return "IGNORED_SYMLINK"
	case ClassIgnoredSpecial:
		return "IGNORED_SPECIAL"
	case ClassIgnoredEncoding:
		return "IGNORED_ENCODING"
	case ClassIgnoredPattern:
		return "IGNORED_PATTERN"
	case ClassIgnoredUnreadable:
		return "IGNORED_UNREADABLE"
	default:
		return "UNKNOWN"
	}
}

// IsIgnored reports whether the entry was skipped rather than indexed
func (c Classification) IsIgnored() bool {
	return c >= ClassIgnoredSymlink
}

// IgnoreReason maps an ignored classification to its event reason
func (c Classification) IgnoreReason() IgnoreReason {
	switch c {
	case ClassIgnoredSymlink:
		return ReasonSymlink
	case ClassIgnoredSpecial:
		return ReasonSpecial
	case ClassIgnoredEncoding:
		return ReasonEncoding
	case ClassIgnoredPattern:
		return ReasonPattern
	case ClassIgnoredUnreadable:
		return ReasonUnreadable
	default:
		return ""
	}
}

// WalkEntry is one classified path produced by ChangeDetector.Walk
type WalkEntry struct {
	Path    string
	Size    int64
	ModTime time.Time
	Class   Classification
	Record  *FileRecord // stored record for UNCHANGED and MODIFIED
	Err     error       // cause for IGNORED_UNREADABLE and IGNORED_ENCODING
}

// ChangeDetector walks a subtree and classifies regular files against the store
type ChangeDetector struct {
	store  MetadataStore
	ignore *IgnoreManager
	sink   EventSink
}

// NewChangeDetector creates a detector. ignore and sink may be nil.
func NewChangeDetector(store MetadataStore, ignore *IgnoreManager, sink EventSink) *ChangeDetector {
	if sink == nil {
		sink = NopSink()
	}
	return &ChangeDetector{store: store, ignore: ignore, sink: sink}
}

// Walk returns a lazy sequence of classified entries under root in
// lexicographic path order. The sequence can be ranged over repeatedly, each
// pass walking the filesystem again. Ignored entries are yielded and also
// reported as FILE_IGNORED events.
//
// A missing root yields a *NotFoundError before anything else. A store
// failure yields a *StoreError and ends the sequence. Per-path problems are
// never yielded as errors.
func (cd *ChangeDetector) Walk(ctx context.Context, root string) iter.Seq2[WalkEntry, error] {
	return func(yield func(WalkEntry, error) bool) {
		defer VerboseEnter()()

		root = filepath.Clean(root)
		if _, err := os.Lstat(root); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				yield(WalkEntry{Path: root}, &NotFoundError{Path: root, Err: err})
				return
			}
			yield(WalkEntry{Path: root}, &IOReadError{Path: root, Err: err})
			return
		}

		// Sorted queue keeps output ordered without building the whole tree
		pathQueue := []string{root}
		for len(pathQueue) > 0 {
			if err := ctx.Err(); err != nil {
				yield(WalkEntry{}, err)
				return
			}

			currentPath := pathQueue[0]
			pathQueue = pathQueue[1:]

			entry, children, err := cd.visit(ctx, currentPath)
			if err != nil {
				yield(entry, err)
				return
			}
			if len(children) > 0 {
				pathQueue = insertSorted(pathQueue, children)
			}
			if entry.Path == "" {
				continue
			}
			if entry.Class.IsIgnored() {
				cd.sink.Emit(Event{Kind: EventFileIgnored, Path: entry.Path, Reason: entry.Class.IgnoreReason(), Err: entry.Err})
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// visit inspects one path. It returns an empty entry for directories that
// were descended into and for paths that vanished during the walk.
func (cd *ChangeDetector) visit(ctx context.Context, path string) (WalkEntry, []string, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			VerboseLog(2, "Vanished during walk: %s", path)
			return WalkEntry{}, nil, nil
		}
		Warnf("cannot stat %s: %v", path, err)
		return WalkEntry{Path: path, Class: ClassIgnoredUnreadable, Err: err}, nil, nil
	}

	entry := WalkEntry{Path: path, Size: info.Size(), ModTime: info.ModTime()}

	if err := ValidatePath(path); err != nil {
		entry.Class = ClassIgnoredEncoding
		entry.Err = err
		return entry, nil, nil
	}

	mode := info.Mode()
	if cd.ignore.ShouldIgnore(path, mode.IsDir()) {
		entry.Class = ClassIgnoredPattern
		return entry, nil, nil
	}

	switch {
	case mode&os.ModeSymlink != 0:
		entry.Class = ClassIgnoredSymlink
		return entry, nil, nil

	case mode.IsDir():
		dirEntries, err := os.ReadDir(path)
		if err != nil {
			Warnf("skipping unreadable directory %s: %v", path, err)
			entry.Class = ClassIgnoredUnreadable
			entry.Err = err
			return entry, nil, nil
		}
		children := make([]string, 0, len(dirEntries))
		for _, de := range dirEntries {
			children = append(children, filepath.Join(path, de.Name()))
		}
		if IsDebugEnabled("scan") {
			VerboseLog(3, "walk: %s has %d entries", path, len(children))
		}
		return WalkEntry{}, children, nil

	case mode.IsRegular():
		rec, err := cd.store.Get(ctx, path)
		switch {
		case errors.Is(err, ErrRecordNotFound):
			entry.Class = ClassNew
		case err != nil:
			return entry, nil, storeErr("get", err)
		case rec.NeedsInspection(entry.Size, entry.ModTime):
			entry.Class = ClassModified
			entry.Record = rec
		default:
			entry.Class = ClassUnchanged
			entry.Record = rec
		}
		if IsDebugEnabled("scan") {
			VerboseLog(3, "walk: %s %s", entry.Class, path)
		}
		return entry, nil, nil

	default:
		entry.Class = ClassIgnoredSpecial
		return entry, nil, nil
	}
}

// insertSorted merges newPaths into the sorted slice existing
func insertSorted(existing []string, newPaths []string) []string {
	sort.Strings(newPaths)
	if len(existing) == 0 {
		return newPaths
	}

	result := make([]string, 0, len(existing)+len(newPaths))
	i, j := 0, 0
	for i < len(existing) && j < len(newPaths) {
		if existing[i] <= newPaths[j] {
			result = append(result, existing[i])
			i++
		} else {
			result = append(result, newPaths[j])
			j++
		}
	}
	result = append(result, existing[i:]...)
	result = append(result, newPaths[j:]...)
	return result
}
