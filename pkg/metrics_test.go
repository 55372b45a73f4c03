package hifi

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Refresh(t *testing.T) {
	root := realTempDir(t)
	writeFile(t, filepath.Join(root, "a.txt"), "aaaa")
	writeFile(t, filepath.Join(root, "b.txt"), "bb")
	writeFile(t, filepath.Join(root, "c.txt"), "c")

	m := NewMetrics()
	env := newTestEnv(t, newTestMemoryStore(t), WithMetrics(m))
	env.hasher.fail[filepath.Join(root, "c.txt")] = errors.New("injected")
	env.refresh(t, root)

	if got := testutil.ToFloat64(m.filesHashed); got != 2 {
		t.Errorf("Expected 2 files hashed, got %v", got)
	}
	if got := testutil.ToFloat64(m.bytesHashed); got != 6 {
		t.Errorf("Expected 6 bytes hashed, got %v", got)
	}
	if got := testutil.ToFloat64(m.hashFailures); got != 1 {
		t.Errorf("Expected 1 hash failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.walked.WithLabelValues("NEW")); got != 3 {
		t.Errorf("Expected 3 NEW walk entries, got %v", got)
	}
	if n := testutil.CollectAndCount(m.refreshDuration); n != 1 {
		t.Errorf("Expected one refresh duration series, got %d", n)
	}

	os.Remove(filepath.Join(root, "a.txt"))
	env.cleanup(t)
	if got := testutil.ToFloat64(m.recordsRemoved); got != 1 {
		t.Errorf("Expected 1 record removed, got %v", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordWalk(ClassNew)
	m.RecordHash(10, true)
	m.RecordRemoved(1)
	m.RecordRefresh(0, nil)
	m.SetIndexedRecords(3)
	if err := m.WriteTextfile("/nonexistent/metrics.prom"); err != nil {
		t.Errorf("Nil metrics should not write: %v", err)
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.SetIndexedRecords(42)

	filename := filepath.Join(realTempDir(t), "hifi.prom")
	if err := m.WriteTextfile(filename); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("Failed to read textfile: %v", err)
	}
	if !strings.Contains(string(data), "hifi_indexed_records 42") {
		t.Errorf("Expected gauge in textfile, got:\n%s", data)
	}
}
