package hifi

import (
	"context"
	"time"
)

// ScanRun summarises one Refresh of a root path
type ScanRun struct {
	ID         string    `json:"id"`
	Root       string    `json:"root"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Added      int       `json:"added"`
	Updated    int       `json:"updated"`
	Unchanged  int       `json:"unchanged"`
	Hashed     int       `json:"hashed"`
	Failed     int       `json:"failed"`
	Ignored    int       `json:"ignored"`
}

// Duration returns how long the run took
func (r *ScanRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// MetadataStore persists FileRecords keyed by path. Every mutating call is
// its own transaction. Implementations need not support concurrent writers;
// callers serialize mutations.
type MetadataStore interface {
	// HashAlgorithm returns the algorithm recorded when the store was created
	HashAlgorithm() *HashAlgorithm

	// Location describes where the store lives, a file path or ":memory:"
	Location() string

	// Get returns the record for path or ErrRecordNotFound
	Get(ctx context.Context, path string) (*FileRecord, error)

	// Put inserts or replaces the record keyed by rec.Path
	Put(ctx context.Context, rec *FileRecord) error

	// TouchChecked updates only LastChecked of an existing record
	TouchChecked(ctx context.Context, path string, checked time.Time) error

	// SetHash stores a computed digest and its inspection time
	SetHash(ctx context.Context, path string, digest string, inspected time.Time) error

	// Delete removes the record for path, a missing record is not an error
	Delete(ctx context.Context, path string) error

	// ForEach calls fn for every record in path order over a consistent
	// snapshot. Iteration stops when fn returns false.
	ForEach(ctx context.Context, fn func(*FileRecord) bool) error

	// AddScanRun records a completed refresh
	AddScanRun(ctx context.Context, run *ScanRun) error

	// ScanRuns returns recorded refreshes, most recent first, at most limit
	// (all when limit <= 0)
	ScanRuns(ctx context.Context, limit int) ([]*ScanRun, error)

	Close() error
}
