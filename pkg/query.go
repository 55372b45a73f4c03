package hifi

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"unicode/utf8"
)

// DuplicateGroup is a set of two or more paths sharing hash and size
type DuplicateGroup struct {
	Hash  string   `json:"hash"`
	Size  int64    `json:"size"`
	Files []string `json:"files"`
	Count int      `json:"count"`
}

// CommonPair is one file under the first path matched with one under the second
type CommonPair struct {
	A    string `json:"a"`
	B    string `json:"b"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// DatabaseInfo summarises the whole index
type DatabaseInfo struct {
	Location   string     `json:"location"`
	Algorithm  string     `json:"algorithm"`
	Files      int        `json:"files"`
	Hashed     int        `json:"hashed"`
	Unhashed   int        `json:"unhashed"`
	TotalBytes int64      `json:"total_bytes"`
	LastRuns   []*ScanRun `json:"last_runs,omitempty"`
}

// PathInfo summarises the records under one path
type PathInfo struct {
	Path       string `json:"path"`
	Files      int    `json:"files"`
	Hashed     int    `json:"hashed"`
	TotalBytes int64  `json:"total_bytes"`
}

// QueryEngine answers set queries over hashed records. Records without a
// hash never take part.
type QueryEngine struct {
	store MetadataStore
	sink  EventSink
}

// NewQueryEngine creates a query engine reading store. Stored paths that are
// not valid text are skipped and reported to sink as FILE_IGNORED.
func NewQueryEngine(store MetadataStore, sink EventSink) *QueryEngine {
	if sink == nil {
		sink = NopSink()
	}
	return &QueryEngine{store: store, sink: sink}
}

// hashedRecords calls fn with every hashed record that can be returned as text
func (qe *QueryEngine) hashedRecords(ctx context.Context, fn func(*FileRecord)) error {
	return qe.store.ForEach(ctx, func(rec *FileRecord) bool {
		if !rec.HasHash() {
			return true
		}
		if !utf8.ValidString(rec.Path) {
			qe.sink.Emit(Event{Kind: EventFileIgnored, Path: rec.Path, Reason: ReasonEncoding, Err: &EncodingError{Path: rec.Path}})
			return true
		}
		fn(rec)
		return true
	})
}

// Duplicates yields groups of paths with identical (hash, size), ordered by
// hash then size, paths sorted within each group. Each range over the
// sequence reads a fresh snapshot.
func (qe *QueryEngine) Duplicates(ctx context.Context) iter.Seq2[DuplicateGroup, error] {
	return func(yield func(DuplicateGroup, error) bool) {
		defer VerboseEnter()()

		index := newSortedIndex(16)
		err := qe.hashedRecords(ctx, func(rec *FileRecord) {
			index.Insert(rec, InsideContext)
		})
		if err != nil {
			yield(DuplicateGroup{}, err)
			return
		}
		if index.IsEmpty() {
			return
		}
		if IsDebugEnabled("query") {
			VerboseLog(3, "duplicates: %d hashed records", index.Length())
		}

		index.ForEachGroup(func(key ContentKey, entries []*contentEntry, _ []string) bool {
			if len(entries) < 2 {
				return true
			}
			files := make([]string, len(entries))
			for i, e := range entries {
				files[i] = e.Path
			}
			return yield(DuplicateGroup{Hash: key.Hash, Size: key.Size, Files: files, Count: len(files)}, nil)
		})
	}
}

// Unique yields, in path order, the paths under prefix whose (hash, size)
// has no record outside prefix. The caller is expected to have refreshed
// and cleaned prefix first.
func (qe *QueryEngine) Unique(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer VerboseEnter()()

		root, err := resolvePath(prefix, false)
		if err != nil {
			yield("", err)
			return
		}

		index := newSortedIndex(16)
		err = qe.hashedRecords(ctx, func(rec *FileRecord) {
			if isPathUnder(rec.Path, root) {
				index.Insert(rec, InsideContext)
			} else {
				index.Insert(rec, OutsideContext)
			}
		})
		if err != nil {
			yield("", err)
			return
		}

		var unique []string
		index.ForEachGroup(func(_ ContentKey, entries []*contentEntry, contexts []string) bool {
			for _, c := range contexts {
				if c == OutsideContext {
					return true
				}
			}
			for _, e := range entries {
				unique = append(unique, e.Path)
			}
			return true
		})
		sort.Strings(unique)

		for _, path := range unique {
			if !yield(path, nil) {
				return
			}
		}
	}
}

// Common yields pairs (x, y) with x under a and y under b sharing (hash, size),
// sorted by x then y. A path never pairs with itself. The caller is expected
// to have refreshed and cleaned both paths first.
func (qe *QueryEngine) Common(ctx context.Context, a, b string) iter.Seq2[CommonPair, error] {
	return func(yield func(CommonPair, error) bool) {
		defer VerboseEnter()()

		rootA, err := resolvePath(a, false)
		if err != nil {
			yield(CommonPair{}, err)
			return
		}
		rootB, err := resolvePath(b, false)
		if err != nil {
			yield(CommonPair{}, err)
			return
		}

		sideA := newSortedIndex(16)
		sideB := newSortedIndex(16)
		err = qe.hashedRecords(ctx, func(rec *FileRecord) {
			// Nested arguments put one record on both sides
			if isPathUnder(rec.Path, rootA) {
				sideA.Insert(rec, SideAContext)
			}
			if isPathUnder(rec.Path, rootB) {
				sideB.Insert(rec, SideBContext)
			}
		})
		if err != nil {
			yield(CommonPair{}, err)
			return
		}
		if err := sideA.Merge(sideB); err != nil {
			yield(CommonPair{}, fmt.Errorf("failed to merge common index: %w", err))
			return
		}

		var pairs []CommonPair
		sideA.ForEachGroup(func(key ContentKey, entries []*contentEntry, contexts []string) bool {
			var inA, inB []string
			for i, e := range entries {
				if contexts[i] == SideAContext {
					inA = append(inA, e.Path)
				} else {
					inB = append(inB, e.Path)
				}
			}
			for _, x := range inA {
				for _, y := range inB {
					if x != y {
						pairs = append(pairs, CommonPair{A: x, B: y, Hash: key.Hash, Size: key.Size})
					}
				}
			}
			return true
		})
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i].A != pairs[j].A {
				return pairs[i].A < pairs[j].A
			}
			return pairs[i].B < pairs[j].B
		})

		for _, pair := range pairs {
			if !yield(pair, nil) {
				return
			}
		}
	}
}

// FindSame hashes file with hasher and returns the indexed paths holding the
// same content, sorted. The file itself is excluded from the result.
func (qe *QueryEngine) FindSame(ctx context.Context, hasher HashProvider, file string) ([]string, error) {
	defer VerboseEnter()()

	file, err := resolvePath(file, false)
	if err != nil {
		return nil, err
	}
	info, err := lstatRegular(file)
	if err != nil {
		return nil, err
	}
	digest, err := hasher.Hash(file)
	if err != nil {
		return nil, err
	}

	want := ContentKey{Hash: digest, Size: info.Size()}
	var same []string
	err = qe.hashedRecords(ctx, func(rec *FileRecord) {
		if rec.Key() == want && rec.Path != file {
			same = append(same, rec.Path)
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(same)
	return same, nil
}

// DatabaseInfo counts every record in the store, hashed or not
func (qe *QueryEngine) DatabaseInfo(ctx context.Context, runs int) (*DatabaseInfo, error) {
	info := &DatabaseInfo{
		Location:  qe.store.Location(),
		Algorithm: qe.store.HashAlgorithm().Name,
	}
	err := qe.store.ForEach(ctx, func(rec *FileRecord) bool {
		info.Files++
		info.TotalBytes += rec.Size
		if rec.HasHash() {
			info.Hashed++
		} else {
			info.Unhashed++
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	if runs > 0 {
		if info.LastRuns, err = qe.store.ScanRuns(ctx, runs); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// PathInfo counts the records under prefix
func (qe *QueryEngine) PathInfo(ctx context.Context, prefix string) (*PathInfo, error) {
	prefix, err := resolvePath(prefix, false)
	if err != nil {
		return nil, err
	}

	info := &PathInfo{Path: prefix}
	err = qe.store.ForEach(ctx, func(rec *FileRecord) bool {
		if isPathUnder(rec.Path, prefix) {
			info.Files++
			info.TotalBytes += rec.Size
			if rec.HasHash() {
				info.Hashed++
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
