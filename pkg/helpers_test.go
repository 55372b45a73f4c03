package hifi

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// realTempDir returns a test directory with symlinks in its path resolved,
// matching the paths the indexer stores
func realTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve temp dir: %v", err)
	}
	return dir
}

// writeFile creates path with content, making parent directories as needed
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// setMtime sets both access and modification time of path
func setMtime(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Failed to set mtime of %s: %v", path, err)
	}
}

// countingHasher counts Hash calls and can fail for chosen paths
type countingHasher struct {
	HashProvider

	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
}

func newCountingHasher(t *testing.T, algorithm string) *countingHasher {
	t.Helper()
	alg, err := GetHashAlgorithm(algorithm)
	if err != nil {
		t.Fatalf("GetHashAlgorithm(%s) failed: %v", algorithm, err)
	}
	inner, err := NewFileHasher(alg, 4096)
	if err != nil {
		t.Fatalf("NewFileHasher failed: %v", err)
	}
	return &countingHasher{HashProvider: inner, calls: map[string]int{}, fail: map[string]error{}}
}

func (h *countingHasher) Hash(path string) (string, error) {
	h.mu.Lock()
	h.calls[path]++
	failErr := h.fail[path]
	h.mu.Unlock()

	if failErr != nil {
		return "", &IOReadError{Path: path, Err: failErr}
	}
	return h.HashProvider.Hash(path)
}

func (h *countingHasher) Total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		n += c
	}
	return n
}

func (h *countingHasher) Calls(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[path]
}

func (h *countingHasher) Reset() {
	h.mu.Lock()
	h.calls = map[string]int{}
	h.mu.Unlock()
}

func newTestMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	store, err := NewMemoryStore("md5")
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := CreateSQLiteStore(filepath.Join(t.TempDir(), DatabaseName), "md5")
	if err != nil {
		t.Fatalf("CreateSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// testEnv is an indexer, query engine and event collector over one store
type testEnv struct {
	store   MetadataStore
	hasher  *countingHasher
	events  *EventCollector
	indexer *Indexer
	query   *QueryEngine
}

func newTestEnv(t *testing.T, store MetadataStore, opts ...IndexerOption) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  store,
		hasher: newCountingHasher(t, store.HashAlgorithm().Name),
		events: &EventCollector{},
	}
	opts = append([]IndexerOption{WithEventSink(env.events), WithHashWorkers(2)}, opts...)
	ix, err := NewIndexer(store, env.hasher, opts...)
	if err != nil {
		t.Fatalf("NewIndexer failed: %v", err)
	}
	env.indexer = ix
	env.query = NewQueryEngine(store, env.events)
	return env
}

func (env *testEnv) refresh(t *testing.T, root string) *ScanRun {
	t.Helper()
	run, err := env.indexer.Refresh(context.Background(), root)
	if err != nil {
		t.Fatalf("Refresh(%s) failed: %v", root, err)
	}
	return run
}

func (env *testEnv) cleanup(t *testing.T, prefixes ...string) int {
	t.Helper()
	n, err := env.indexer.Cleanup(context.Background(), prefixes...)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	return n
}

func (env *testEnv) record(t *testing.T, path string) *FileRecord {
	t.Helper()
	rec, err := env.store.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", path, err)
	}
	return rec
}

// collect drains a sequence, failing the test on the first error
func collect[T any](t *testing.T, seq iter.Seq2[T, error]) []T {
	t.Helper()
	var out []T
	for v, err := range seq {
		if err != nil {
			t.Fatalf("sequence yielded error: %v", err)
		}
		out = append(out, v)
	}
	return out
}
