package hifi

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseHumanSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int
		wantErr  bool
	}{
		{"4096", 4096, false},
		{"512k", 512 * 1024, false},
		{"2M", 2 * 1024 * 1024, false},
		{"2MB", 2 * 1024 * 1024, false},
		{" 1g ", 1024 * 1024 * 1024, false},
		{"1KiB", 1024, false},
		{"", 0, true},
		{"0", 0, true},
		{"abc", 0, true},
		{"8G", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseHumanSize(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseHumanSize(%q): expected error, got %d", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHumanSize(%q) failed: %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseHumanSize(%q) = %d, expected %d", tt.input, got, tt.expected)
		}
	}
}

func TestFormatHumanSize(t *testing.T) {
	tests := map[int64]string{
		0:       "0 B",
		1023:    "1023 B",
		1024:    "1.0 KiB",
		1536:    "1.5 KiB",
		5 << 20: "5.0 MiB",
	}
	for size, expected := range tests {
		if got := FormatHumanSize(size); got != expected {
			t.Errorf("FormatHumanSize(%d) = %q, expected %q", size, got, expected)
		}
	}
	if got := FormatCount(1234567); got != "1,234,567" {
		t.Errorf("FormatCount = %q", got)
	}
}

func TestLstatRegular(t *testing.T) {
	dir := realTempDir(t)
	file := filepath.Join(dir, "f")
	writeFile(t, file, "data")

	if info, err := lstatRegular(file); err != nil || info.Size() != 4 {
		t.Errorf("Expected regular file of size 4, got %v (err %v)", info, err)
	}

	var nf *NotFoundError
	if _, err := lstatRegular(filepath.Join(dir, "missing")); !errors.As(err, &nf) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
	if _, err := lstatRegular(dir); err == nil {
		t.Error("Expected error for directory")
	}

	link := filepath.Join(dir, "link")
	os.Symlink(file, link)
	if _, err := lstatRegular(link); err == nil {
		t.Error("Expected error for symlink")
	}
}

func TestResolvePath(t *testing.T) {
	dir := realTempDir(t)
	target := filepath.Join(dir, "target")
	writeFile(t, filepath.Join(target, "f.txt"), "f")
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	tests := []struct {
		name     string
		path     string
		lenient  bool
		want     string
		notFound bool
	}{
		{"plain directory", target, false, target, false},
		{"symlinked directory", link, false, target, false},
		{"through symlink", filepath.Join(link, "f.txt"), false, filepath.Join(target, "f.txt"), false},
		{"unclean path", link + "/./../link", false, target, false},
		{"missing strict", filepath.Join(link, "gone"), false, "", true},
		{"missing lenient", filepath.Join(link, "gone", "deeper"), true, filepath.Join(target, "gone", "deeper"), false},
		{"below a file lenient", filepath.Join(link, "f.txt", "x"), true, filepath.Join(target, "f.txt", "x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePath(tt.path, tt.lenient)
			if tt.notFound {
				var nf *NotFoundError
				if !errors.As(err, &nf) {
					t.Errorf("Expected NotFoundError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolvePath(%s) failed: %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
