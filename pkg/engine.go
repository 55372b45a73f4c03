package hifi

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Indexer keeps a MetadataStore in step with the filesystem
type Indexer struct {
	store   MetadataStore
	hasher  HashProvider
	ignore  *IgnoreManager
	sink    EventSink
	metrics *Metrics
	workers int
	now     clock

	// serializes every store mutation
	writeMu sync.Mutex
}

// IndexerOption configures an Indexer
type IndexerOption func(*Indexer)

// WithHashWorkers sets how many files are hashed concurrently
func WithHashWorkers(n int) IndexerOption {
	return func(ix *Indexer) {
		if n < 1 {
			n = 1
		}
		if n > MaxHashWorkers {
			n = MaxHashWorkers
		}
		ix.workers = n
	}
}

// WithEventSink sets the sink receiving record and progress events
func WithEventSink(sink EventSink) IndexerOption {
	return func(ix *Indexer) {
		if sink != nil {
			ix.sink = sink
		}
	}
}

// WithMetrics records walk and hash counters into m
func WithMetrics(m *Metrics) IndexerOption {
	return func(ix *Indexer) { ix.metrics = m }
}

// WithIgnoreManager excludes paths matching im's patterns from walks
func WithIgnoreManager(im *IgnoreManager) IndexerOption {
	return func(ix *Indexer) { ix.ignore = im }
}

// WithClock replaces the time source used for check and inspection stamps
func WithClock(now func() time.Time) IndexerOption {
	return func(ix *Indexer) {
		if now != nil {
			ix.now = now
		}
	}
}

// NewIndexer creates an Indexer. The hasher must use the algorithm the
// store was created with.
func NewIndexer(store MetadataStore, hasher HashProvider, opts ...IndexerOption) (*Indexer, error) {
	if store == nil {
		return nil, errors.New("indexer requires a store")
	}
	if hasher == nil {
		return nil, errors.New("indexer requires a hash provider")
	}
	if got, want := hasher.Algorithm().TypeID, store.HashAlgorithm().TypeID; got != want {
		return nil, &ConfigError{
			Key: ConfigKeyHashMethod,
			Err: fmt.Errorf("hasher uses %s but store %s was created with %s",
				HashTypeName(got), store.Location(), HashTypeName(want)),
		}
	}

	ix := &Indexer{
		store:   store,
		hasher:  hasher,
		sink:    NopSink(),
		workers: DefaultHashWorkers,
		now:     systemClock,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Store returns the indexer's store
func (ix *Indexer) Store() MetadataStore {
	return ix.store
}

type pendingHash struct {
	path string
	size int64
}

// Refresh walks root and brings its records up to date. Unchanged files only
// get their check time bumped; new and modified files are stored unhashed
// first and hashed after the walk completes. Files that cannot be read are
// left unhashed and reported as HASH_FAILED. Store failures abort the refresh.
func (ix *Indexer) Refresh(ctx context.Context, root string) (run *ScanRun, err error) {
	defer VerboseEnter()()

	// A symlinked root is resolved here, symlinks below it are never followed
	absRoot, err := resolvePath(root, false)
	if err != nil {
		return nil, err
	}

	run = &ScanRun{ID: uuid.NewString(), Root: absRoot, StartedAt: ix.now()}
	defer func() {
		ix.metrics.RecordRefresh(ix.now().Sub(run.StartedAt), err)
	}()
	VerboseLog(1, "Refreshing %s (run %s)", absRoot, run.ID)

	detector := NewChangeDetector(ix.store, ix.ignore, ix.sink)
	checked := run.StartedAt
	var pending []pendingHash

	for entry, walkErr := range detector.Walk(ctx, absRoot) {
		if walkErr != nil {
			return run, walkErr
		}
		ix.metrics.RecordWalk(entry.Class)

		switch entry.Class {
		case ClassUnchanged:
			if err := ix.write(func() error { return ix.store.TouchChecked(ctx, entry.Path, checked) }); err != nil {
				return run, err
			}
			run.Unchanged++

		case ClassNew, ClassModified:
			rec := &FileRecord{Path: entry.Path, Size: entry.Size, LastChecked: checked}
			if err := ix.write(func() error { return ix.store.Put(ctx, rec) }); err != nil {
				return run, err
			}
			if entry.Class == ClassNew {
				run.Added++
				ix.sink.Emit(Event{Kind: EventRecordAdded, Path: entry.Path})
			} else {
				run.Updated++
				ix.sink.Emit(Event{Kind: EventRecordUpdated, Path: entry.Path})
			}
			pending = append(pending, pendingHash{path: entry.Path, size: entry.Size})

		default:
			run.Ignored++
		}
	}

	if err := ix.hashPending(ctx, pending, run); err != nil {
		return run, err
	}

	run.FinishedAt = ix.now()
	if err := ix.write(func() error { return ix.store.AddScanRun(ctx, run) }); err != nil {
		return run, err
	}

	VerboseLog(1, "Refreshed %s: %d added, %d updated, %d unchanged, %d hashed, %d failed, %d ignored in %v",
		absRoot, run.Added, run.Updated, run.Unchanged, run.Hashed, run.Failed, run.Ignored, run.Duration())
	return run, nil
}

// hashPending hashes the collected files with a bounded worker pool
func (ix *Indexer) hashPending(ctx context.Context, pending []pendingHash, run *ScanRun) error {
	if len(pending) == 0 {
		return nil
	}
	VerboseLog(2, "Hashing %d files with %d workers", len(pending), ix.workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)

	total := len(pending)
	done := 0
	for _, p := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			digest, hashErr := ix.hasher.Hash(p.path)
			inspected := ix.now()

			ix.writeMu.Lock()
			defer ix.writeMu.Unlock()

			if hashErr != nil {
				run.Failed++
				ix.metrics.RecordHash(0, false)
				ix.sink.Emit(Event{Kind: EventHashFailed, Path: p.path, Err: hashErr})
			} else {
				err := ix.store.SetHash(gctx, p.path, digest, inspected)
				if err != nil {
					return storeErr("set hash", err)
				}
				run.Hashed++
				ix.metrics.RecordHash(p.size, true)
			}

			done++
			ix.sink.Emit(Event{
				Kind:    EventProgress,
				Path:    p.path,
				Done:    done,
				Total:   total,
				Percent: float64(done) * 100 / float64(total),
			})
			return nil
		})
	}
	return g.Wait()
}

// Cleanup deletes records whose path is no longer a regular file. With
// prefixes only records under one of them are considered. It returns the
// number of records removed.
func (ix *Indexer) Cleanup(ctx context.Context, prefixes ...string) (int, error) {
	defer VerboseEnter()()

	var roots []string
	for _, prefix := range prefixes {
		// Removed prefixes are what cleanup is for, so they need not exist
		abs, err := resolvePath(prefix, true)
		if err != nil {
			return 0, err
		}
		roots = append(roots, abs)
	}
	roots = deduplicatePaths(roots)

	var stale []string
	err := ix.store.ForEach(ctx, func(rec *FileRecord) bool {
		if len(roots) > 0 && !isUnderAny(rec.Path, roots) {
			return true
		}
		if isStale(rec.Path) {
			stale = append(stale, rec.Path)
		}
		return true
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range stale {
		if err := ix.write(func() error { return ix.store.Delete(ctx, path) }); err != nil {
			return removed, err
		}
		removed++
		ix.sink.Emit(Event{Kind: EventRecordRemoved, Path: path})
	}
	ix.metrics.RecordRemoved(removed)

	if removed > 0 {
		VerboseLog(1, "Cleanup removed %d records", removed)
	}
	return removed, nil
}

func (ix *Indexer) write(fn func() error) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	return fn()
}

// isStale reports whether path no longer resolves to a regular file. Paths
// that cannot be checked, for example for lack of permission, are kept.
func isStale(path string) bool {
	info, err := os.Lstat(path)
	switch {
	case err == nil:
		return !info.Mode().IsRegular()
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return true
	default:
		Warnf("keeping %s, cannot check it: %v", path, err)
		return false
	}
}

func isUnderAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if isPathUnder(path, prefix) {
			return true
		}
	}
	return false
}

// deduplicatePaths sorts paths and removes any that lie under another
// Example: ["/home/user/docs", "/home/user/docs/file.txt", "/home/user/photos"]
//
//	-> ["/home/user/docs", "/home/user/photos"]
func deduplicatePaths(paths []string) []string {
	if len(paths) <= 1 {
		return paths
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	var deduplicated []string
	for _, path := range sorted {
		if !isUnderAny(path, deduplicated) {
			deduplicated = append(deduplicated, path)
		}
	}
	return deduplicated
}
