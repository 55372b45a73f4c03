package hifi

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func walkAll(t *testing.T, cd *ChangeDetector, root string) map[string]Classification {
	t.Helper()
	classes := make(map[string]Classification)
	for _, entry := range collect(t, cd.Walk(context.Background(), root)) {
		classes[entry.Path] = entry.Class
	}
	return classes
}

func TestChangeDetector_Classification(t *testing.T) {
	ctx := context.Background()
	root := realTempDir(t)
	past := time.Now().Add(-time.Hour).Round(0)

	newFile := filepath.Join(root, "new.txt")
	sameFile := filepath.Join(root, "same.txt")
	resized := filepath.Join(root, "resized.txt")
	touched := filepath.Join(root, "touched.txt")
	for _, p := range []string{newFile, sameFile, resized, touched} {
		writeFile(t, p, "content")
		setMtime(t, p, past)
	}

	store := newTestMemoryStore(t)
	inspected := past.Add(time.Minute)
	for _, p := range []string{sameFile, resized, touched} {
		store.Put(ctx, &FileRecord{Path: p, Size: 7, LastChecked: inspected})
		store.SetHash(ctx, p, "h", inspected)
	}
	writeFile(t, resized, "longer content")
	setMtime(t, resized, past)
	setMtime(t, touched, inspected.Add(time.Minute))

	classes := walkAll(t, NewChangeDetector(store, nil, nil), root)

	expected := map[string]Classification{
		newFile:  ClassNew,
		sameFile: ClassUnchanged,
		resized:  ClassModified,
		touched:  ClassModified,
	}
	for path, want := range expected {
		if got := classes[path]; got != want {
			t.Errorf("%s: expected %s, got %s", filepath.Base(path), want, got)
		}
	}
	if len(classes) != len(expected) {
		t.Errorf("Expected %d entries, got %d: %v", len(expected), len(classes), classes)
	}
}

func TestChangeDetector_UnhashedRecordIsModified(t *testing.T) {
	ctx := context.Background()
	root := realTempDir(t)
	path := filepath.Join(root, "a.txt")
	writeFile(t, path, "a")

	store := newTestMemoryStore(t)
	store.Put(ctx, &FileRecord{Path: path, Size: 1, LastChecked: time.Now()})

	classes := walkAll(t, NewChangeDetector(store, nil, nil), root)
	if classes[path] != ClassModified {
		t.Errorf("Expected record without hash to be MODIFIED, got %s", classes[path])
	}
}

func TestChangeDetector_IgnoredEntries(t *testing.T) {
	root := realTempDir(t)
	target := filepath.Join(root, "real.txt")
	writeFile(t, target, "real")

	link := filepath.Join(root, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}
	dirLink := filepath.Join(root, "dirlink")
	if err := os.Symlink(root, dirLink); err != nil {
		t.Fatalf("Failed to create directory symlink: %v", err)
	}
	fifo := filepath.Join(root, "pipe")
	if err := syscall.Mkfifo(fifo, 0644); err != nil {
		t.Fatalf("Failed to create fifo: %v", err)
	}
	badName := filepath.Join(root, "bad\xffname.txt")
	if err := os.WriteFile(badName, []byte("x"), 0644); err != nil {
		t.Skipf("Filesystem rejects non-UTF-8 names: %v", err)
	}
	writeFile(t, filepath.Join(root, "skip", "inner.txt"), "inner")

	im := NewIgnoreManager("")
	if err := im.AddPattern(`/skip/`); err != nil {
		t.Fatalf("AddPattern failed: %v", err)
	}

	events := &EventCollector{}
	classes := walkAll(t, NewChangeDetector(newTestMemoryStore(t), im, events), root)

	expected := map[string]Classification{
		target:                      ClassNew,
		link:                        ClassIgnoredSymlink,
		dirLink:                     ClassIgnoredSymlink,
		fifo:                        ClassIgnoredSpecial,
		badName:                     ClassIgnoredEncoding,
		filepath.Join(root, "skip"): ClassIgnoredPattern,
	}
	for path, want := range expected {
		if got, ok := classes[path]; !ok || got != want {
			t.Errorf("%q: expected %s, got %s (present=%v)", path, want, got, ok)
		}
	}
	if _, ok := classes[filepath.Join(root, "skip", "inner.txt")]; ok {
		t.Error("Expected ignored directory not to be descended into")
	}

	if got := events.Count(EventFileIgnored); got != 5 {
		t.Errorf("Expected 5 FILE_IGNORED events, got %d", got)
	}
	for _, e := range events.Events() {
		if e.Kind == EventFileIgnored && e.Path == fifo && e.Reason != ReasonSpecial {
			t.Errorf("Expected fifo reason %q, got %q", ReasonSpecial, e.Reason)
		}
	}
}

func TestChangeDetector_UnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("Permission checks do not apply to root")
	}
	root := realTempDir(t)
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "secret.txt"), "s")
	writeFile(t, filepath.Join(root, "open.txt"), "o")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatalf("Failed to chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	events := &EventCollector{}
	classes := walkAll(t, NewChangeDetector(newTestMemoryStore(t), nil, events), root)

	if classes[locked] != ClassIgnoredUnreadable {
		t.Errorf("Expected locked directory to be IGNORED_UNREADABLE, got %s", classes[locked])
	}
	if classes[filepath.Join(root, "open.txt")] != ClassNew {
		t.Error("Expected walk to continue past unreadable directory")
	}
}

func TestChangeDetector_Order(t *testing.T) {
	root := realTempDir(t)
	for _, p := range []string{"b/2.txt", "a/1.txt", "a.txt", "c.txt", "a/z/3.txt"} {
		writeFile(t, filepath.Join(root, p), p)
	}

	entries := collect(t, NewChangeDetector(newTestMemoryStore(t), nil, nil).Walk(context.Background(), root))
	var got []string
	for _, e := range entries {
		rel, _ := filepath.Rel(root, e.Path)
		got = append(got, rel)
	}
	expected := []string{"a.txt", "a/1.txt", "a/z/3.txt", "b/2.txt", "c.txt"}
	if len(got) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("Expected %v, got %v", expected, got)
		}
	}
}

func TestChangeDetector_Roots(t *testing.T) {
	ctx := context.Background()
	root := realTempDir(t)
	file := filepath.Join(root, "only.txt")
	writeFile(t, file, "x")

	cd := NewChangeDetector(newTestMemoryStore(t), nil, nil)

	// A regular file root yields just that file
	entries := collect(t, cd.Walk(ctx, file))
	if len(entries) != 1 || entries[0].Path != file || entries[0].Class != ClassNew {
		t.Errorf("Expected single NEW entry for file root, got %+v", entries)
	}

	var nf *NotFoundError
	for _, err := range cd.Walk(ctx, filepath.Join(root, "missing")) {
		if !errors.As(err, &nf) {
			t.Errorf("Expected NotFoundError, got %v", err)
		}
	}

	// A symlink root is not followed
	link := filepath.Join(realTempDir(t), "link")
	os.Symlink(root, link)
	entries = collect(t, cd.Walk(ctx, link))
	if len(entries) != 1 || entries[0].Class != ClassIgnoredSymlink {
		t.Errorf("Expected symlink root to be ignored, got %+v", entries)
	}
}

func TestChangeDetector_Cancelled(t *testing.T) {
	root := realTempDir(t)
	writeFile(t, filepath.Join(root, "a.txt"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range NewChangeDetector(newTestMemoryStore(t), nil, nil).Walk(ctx, root) {
		if err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", gotErr)
	}
}

func TestClassification_IgnoreReason(t *testing.T) {
	tests := []struct {
		class   Classification
		ignored bool
		reason  IgnoreReason
	}{
		{ClassNew, false, ""},
		{ClassUnchanged, false, ""},
		{ClassModified, false, ""},
		{ClassIgnoredSymlink, true, ReasonSymlink},
		{ClassIgnoredSpecial, true, ReasonSpecial},
		{ClassIgnoredEncoding, true, ReasonEncoding},
		{ClassIgnoredPattern, true, ReasonPattern},
		{ClassIgnoredUnreadable, true, ReasonUnreadable},
	}
	for _, tt := range tests {
		t.Run(tt.class.String(), func(t *testing.T) {
			if tt.class.IsIgnored() != tt.ignored {
				t.Errorf("IsIgnored: expected %v", tt.ignored)
			}
			if tt.class.IgnoreReason() != tt.reason {
				t.Errorf("IgnoreReason: expected %q, got %q", tt.reason, tt.class.IgnoreReason())
			}
		})
	}
}
