package hifi

import (
	"strings"
	"time"
	"unicode/utf8"
)

// FileRecord is the stored metadata for one indexed path
type FileRecord struct {
	Path          string
	Size          int64
	Hash          string    // empty when not yet computed
	LastChecked   time.Time // last walk that saw the path
	LastInspected time.Time // last successful hash, zero when Hash is empty
}

// ContentKey identifies file content for duplicate matching
type ContentKey struct {
	Hash string
	Size int64
}

// HasHash reports whether the record carries a trusted digest
func (r *FileRecord) HasHash() bool {
	return r.Hash != ""
}

// Key returns the (hash, size) pair used by every query
func (r *FileRecord) Key() ContentKey {
	return ContentKey{Hash: r.Hash, Size: r.Size}
}

// NeedsInspection reports whether a file observed with size and mtime must be
// re-hashed. The mtime is compared against LastInspected, so moving a file's
// mtime backwards does not invalidate its hash.
func (r *FileRecord) NeedsInspection(size int64, mtime time.Time) bool {
	if r.LastInspected.IsZero() || r.Hash == "" {
		return true
	}
	if size != r.Size {
		return true
	}
	return mtime.After(r.LastInspected)
}

// ValidatePath checks that path can be stored and later handed to callers as text
func ValidatePath(path string) error {
	if !utf8.ValidString(path) || strings.IndexByte(path, 0) >= 0 {
		return &EncodingError{Path: path}
	}
	return nil
}

// isPathUnder reports whether path equals prefix or lies inside it
func isPathUnder(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return strings.HasPrefix(path, prefix+"/")
}

// clock returns wall-clock time without a monotonic reading so values
// round-trip through the store unchanged
type clock func() time.Time

func systemClock() time.Time {
	return time.Now().Round(0)
}
