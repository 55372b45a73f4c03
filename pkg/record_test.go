package hifi

import (
	"errors"
	"testing"
	"time"
)

func TestFileRecord_NeedsInspection(t *testing.T) {
	inspected := time.Unix(1700000000, 0)
	hashed := FileRecord{Path: "/f", Size: 10, Hash: "abc", LastInspected: inspected}

	tests := []struct {
		name   string
		rec    FileRecord
		size   int64
		mtime  time.Time
		expect bool
	}{
		{"unchanged", hashed, 10, inspected.Add(-time.Hour), false},
		{"mtime equal", hashed, 10, inspected, false},
		{"mtime after", hashed, 10, inspected.Add(time.Nanosecond), true},
		{"size differs", hashed, 11, inspected.Add(-time.Hour), true},
		{"no hash", FileRecord{Path: "/f", Size: 10, LastInspected: inspected}, 10, inspected.Add(-time.Hour), true},
		{"never inspected", FileRecord{Path: "/f", Size: 10, Hash: "abc"}, 10, inspected.Add(-time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.NeedsInspection(tt.size, tt.mtime); got != tt.expect {
				t.Errorf("Expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestValidatePath(t *testing.T) {
	if err := ValidatePath("/home/user/café.txt"); err != nil {
		t.Errorf("Expected valid UTF-8 path to pass: %v", err)
	}

	var encErr *EncodingError
	for _, bad := range []string{"/home/\xff", "/a\x00b"} {
		if err := ValidatePath(bad); !errors.As(err, &encErr) {
			t.Errorf("Expected EncodingError for %q, got %v", bad, err)
		}
	}
}

func TestIsPathUnder(t *testing.T) {
	tests := []struct {
		path, prefix string
		expect       bool
	}{
		{"/a", "/a", true},
		{"/a/b", "/a", true},
		{"/a/b", "/a/", true},
		{"/ab", "/a", false},
		{"/ab/c", "/a", false},
		{"/a", "/a/b", false},
		{"/anything", "/", true},
	}
	for _, tt := range tests {
		if got := isPathUnder(tt.path, tt.prefix); got != tt.expect {
			t.Errorf("isPathUnder(%q, %q) = %v, expected %v", tt.path, tt.prefix, got, tt.expect)
		}
	}
}
