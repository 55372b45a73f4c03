package hifi

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// MemoryStore is a MetadataStore held entirely in memory, ordered by path
type MemoryStore struct {
	mu sync.RWMutex

	records   *btree.Map[string, FileRecord]
	runs      []ScanRun
	algorithm *HashAlgorithm
	closed    bool
}

// NewMemoryStore creates an empty store using the named hash algorithm
func NewMemoryStore(algorithm string) (*MemoryStore, error) {
	alg, err := GetHashAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{
		records:   btree.NewMap[string, FileRecord](0), // degree 0 = auto-optimize
		algorithm: alg,
	}, nil
}

func (ms *MemoryStore) HashAlgorithm() *HashAlgorithm { return ms.algorithm }

func (ms *MemoryStore) Location() string { return MemoryLocation }

func (ms *MemoryStore) Get(ctx context.Context, path string) (*FileRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if err := ms.check(ctx); err != nil {
		return nil, storeErr("get", err)
	}
	rec, ok := ms.records.Get(path)
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

func (ms *MemoryStore) Put(ctx context.Context, rec *FileRecord) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := ms.check(ctx); err != nil {
		return storeErr("put", err)
	}
	ms.records.Set(rec.Path, *rec)
	return nil
}

func (ms *MemoryStore) TouchChecked(ctx context.Context, path string, checked time.Time) error {
	return ms.update(ctx, "touch", path, func(rec *FileRecord) {
		rec.LastChecked = checked
	})
}

func (ms *MemoryStore) SetHash(ctx context.Context, path string, digest string, inspected time.Time) error {
	return ms.update(ctx, "set hash", path, func(rec *FileRecord) {
		rec.Hash = digest
		rec.LastInspected = inspected
	})
}

func (ms *MemoryStore) update(ctx context.Context, op, path string, fn func(*FileRecord)) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := ms.check(ctx); err != nil {
		return storeErr(op, err)
	}
	rec, ok := ms.records.Get(path)
	if !ok {
		return ErrRecordNotFound
	}
	fn(&rec)
	ms.records.Set(path, rec)
	return nil
}

func (ms *MemoryStore) Delete(ctx context.Context, path string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := ms.check(ctx); err != nil {
		return storeErr("delete", err)
	}
	ms.records.Delete(path)
	return nil
}

// ForEach iterates a copy-on-write snapshot, so fn may call back into the store
func (ms *MemoryStore) ForEach(ctx context.Context, fn func(*FileRecord) bool) error {
	// Copy marks the shared tree copy-on-write and needs exclusive access
	ms.mu.Lock()
	if err := ms.check(ctx); err != nil {
		ms.mu.Unlock()
		return storeErr("iterate", err)
	}
	snapshot := ms.records.Copy()
	ms.mu.Unlock()

	var ctxErr error
	snapshot.Scan(func(_ string, rec FileRecord) bool {
		if ctxErr = ctx.Err(); ctxErr != nil {
			return false
		}
		return fn(&rec)
	})
	return storeErr("iterate", ctxErr)
}

func (ms *MemoryStore) AddScanRun(ctx context.Context, run *ScanRun) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if err := ms.check(ctx); err != nil {
		return storeErr("add scan run", err)
	}
	ms.runs = append(ms.runs, *run)
	return nil
}

func (ms *MemoryStore) ScanRuns(ctx context.Context, limit int) ([]*ScanRun, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if err := ms.check(ctx); err != nil {
		return nil, storeErr("scan runs", err)
	}
	runs := make([]*ScanRun, 0, len(ms.runs))
	for i := range ms.runs {
		run := ms.runs[i]
		runs = append(runs, &run)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Len returns the number of stored records
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.records.Len()
}

func (ms *MemoryStore) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.records.Clear()
	ms.runs = nil
	ms.closed = true
	return nil
}

func (ms *MemoryStore) check(ctx context.Context) error {
	if ms.closed {
		return errStoreClosed
	}
	return ctx.Err()
}

var errStoreClosed = errors.New("store is closed")
