package hifi

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func newTestIndex(t *testing.T, overrides ...string) (*Index, *EventCollector) {
	t.Helper()
	cfg := NewDefaultConfig(realTempDir(t))
	if err := cfg.ApplyOverrides(overrides); err != nil {
		t.Fatalf("ApplyOverrides failed: %v", err)
	}
	events := &EventCollector{}
	x, err := OpenIndex(cfg, events)
	if err != nil {
		t.Fatalf("OpenIndex failed: %v", err)
	}
	return x, events
}

func TestIndex_SyncAndQuery(t *testing.T) {
	ctx := context.Background()
	x, events := newTestIndex(t, "hash_buffer:4k")
	defer x.Close()

	root, a, b := newABTree(t)
	runs, err := x.Sync(ctx, a, b)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if len(runs) != 2 || runs[0].Added != 1 || runs[1].Added != 2 {
		t.Errorf("Unexpected runs: %+v %+v", runs[0], runs[1])
	}
	if events.Count(EventRecordAdded) != 3 {
		t.Errorf("Expected 3 RECORD_ADDED events, got %d", events.Count(EventRecordAdded))
	}

	z := filepath.Join(b, "z.txt")
	if got := collect(t, x.Query.Unique(ctx, b)); !slices.Equal(got, []string{z}) {
		t.Errorf("Expected [%s], got %v", z, got)
	}

	os.Remove(z)
	if _, err := x.Sync(ctx, root); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if events.Count(EventRecordRemoved) != 1 {
		t.Errorf("Expected 1 RECORD_REMOVED event, got %d", events.Count(EventRecordRemoved))
	}

	info, err := x.DatabaseInfo(ctx, 10)
	if err != nil {
		t.Fatalf("DatabaseInfo failed: %v", err)
	}
	if info.Files != 2 || len(info.LastRuns) != 3 {
		t.Errorf("Expected 2 files and 3 runs, got %d and %d", info.Files, len(info.LastRuns))
	}
}

func TestIndex_KeepsDatabaseAlgorithm(t *testing.T) {
	configDir := realTempDir(t)
	cfg := NewDefaultConfig(configDir)
	cfg.ApplyOverrides([]string{"default:sha1"})
	x, err := OpenIndex(cfg, nil)
	if err != nil {
		t.Fatalf("OpenIndex failed: %v", err)
	}
	x.Close()

	// Changing the default afterwards does not change an existing database
	cfg.ApplyOverrides([]string{"default:sha512"})
	x, err = OpenIndex(cfg, nil)
	if err != nil {
		t.Fatalf("OpenIndex (reopen) failed: %v", err)
	}
	defer x.Close()
	if x.Hasher.Algorithm().Name != "sha1" {
		t.Errorf("Expected sha1 hasher, got %s", x.Hasher.Algorithm().Name)
	}
}

func TestIndex_IgnoresOwnDirectory(t *testing.T) {
	ctx := context.Background()
	home := realTempDir(t)
	configDir := filepath.Join(home, ".config", "hifi")
	cfg := NewDefaultConfig(configDir)

	x, err := OpenIndex(cfg, nil)
	if err != nil {
		t.Fatalf("OpenIndex failed: %v", err)
	}
	defer x.Close()

	writeFile(t, filepath.Join(home, "doc.txt"), "doc")
	run, err := x.Indexer.Refresh(ctx, home)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if run.Added != 1 {
		t.Errorf("Expected only doc.txt to be added, got %d", run.Added)
	}
}

func TestIndex_CloseWritesMetrics(t *testing.T) {
	textfile := filepath.Join(realTempDir(t), "hifi.prom")
	x, _ := newTestIndex(t, "textfile:"+textfile)

	root := realTempDir(t)
	writeFile(t, filepath.Join(root, "a"), "a")
	if _, err := x.Sync(context.Background(), root); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if err := x.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatalf("Expected metrics textfile: %v", err)
	}
	if !strings.Contains(string(data), "hifi_files_hashed_total 1") {
		t.Errorf("Expected hashed counter in textfile, got:\n%s", data)
	}
}

func TestOpenIndex_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig(realTempDir(t))
	cfg.ApplyOverrides([]string{"format:xml"})
	if _, err := OpenIndex(cfg, nil); err == nil {
		t.Error("Expected OpenIndex to reject invalid config")
	}
}
