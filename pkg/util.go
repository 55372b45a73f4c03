package hifi

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
)

// ParseHumanSize parses human-readable size strings (e.g., "2M", "512k", "1G").
// Single letter and two letter suffixes are binary multiples, so "2M" and
// "2MB" are both 2 MiB.
func ParseHumanSize(sizeStr string) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(sizeStr))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	if len(s) >= 2 && s[len(s)-1] == 'B' && strings.ContainsRune("KMGT", rune(s[len(s)-2])) {
		s = s[:len(s)-1]
	}
	if strings.ContainsRune("KMGT", rune(s[len(s)-1])) {
		s += "IB"
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", sizeStr, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("size must be positive: %s", sizeStr)
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("size too large: %s", sizeStr)
	}
	return int(n), nil
}

// FormatHumanSize formats a byte count using binary units
func FormatHumanSize(size int64) string {
	if size < 0 {
		return "-" + humanize.IBytes(uint64(-size))
	}
	return humanize.IBytes(uint64(size))
}

// FormatCount formats an integer with thousands separators
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}

// lstatRegular returns the info for path, failing unless it is a regular file
func lstatRegular(path string) (os.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: path, Err: err}
		}
		return nil, &IOReadError{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	return info, nil
}

// resolvePath makes path absolute and resolves every symlink in it, so
// callers see the same names the walker stores. A missing path is a
// *NotFoundError unless lenient is set, in which case the longest existing
// ancestor is resolved and the rest kept as given.
func resolvePath(path string, lenient bool) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	abs = filepath.Clean(abs)

	resolved, err := filepath.EvalSymlinks(abs)
	switch {
	case err == nil:
		return resolved, nil
	case !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR):
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	case !lenient:
		return "", &NotFoundError{Path: abs, Err: err}
	}

	parent := filepath.Dir(abs)
	if parent == abs {
		return abs, nil
	}
	resolvedParent, err := resolvePath(parent, true)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(abs)), nil
}
