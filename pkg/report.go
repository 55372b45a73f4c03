package hifi

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/vectorio"
)

// Output formats
const (
	FormatHuman  = "human"
	FormatJSON   = "json"
	FormatFdupes = "fdupes"
)

// iovMax bounds the iovecs passed to one writev call, see golang/go#58623
const iovMax = 1024

// errWriter remembers the first failed write and turns every later write
// into a no-op returning that error
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return 0, ew.err
	}
	n, err := ew.w.Write(p)
	if err != nil {
		ew.err = err
	}
	return n, err
}

// Reporter renders query results in one output format. Once a write fails
// every method returns that error.
type Reporter struct {
	w      *errWriter
	format string
}

// NewReporter creates a reporter writing format to w
func NewReporter(w io.Writer, format string) (*Reporter, error) {
	format = strings.ToLower(format)
	if err := ValidateOutputFormat(format); err != nil {
		return nil, &ConfigError{Key: "output.format", Err: err}
	}
	return &Reporter{w: &errWriter{w: w}, format: format}, nil
}

// result returns the first write error, if any
func (r *Reporter) result() error {
	if r.w.err != nil {
		return fmt.Errorf("failed to write output: %w", r.w.err)
	}
	return nil
}

func (r *Reporter) writeJSON(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		if r.w.err != nil {
			return r.result()
		}
		return err
	}
	return nil
}

// Duplicates writes duplicate groups. fdupes separates groups with a blank line.
func (r *Reporter) Duplicates(groups []DuplicateGroup) error {
	switch r.format {
	case FormatJSON:
		if groups == nil {
			groups = []DuplicateGroup{}
		}
		return r.writeJSON(groups)
	case FormatFdupes:
		for _, g := range groups {
			for _, f := range g.Files {
				fmt.Fprintln(r.w, f)
			}
			fmt.Fprintln(r.w)
		}
		return r.result()
	default:
		for _, g := range groups {
			fmt.Fprintf(r.w, "%s (%d bytes):\n", g.Hash, g.Size)
			for _, f := range g.Files {
				fmt.Fprintf(r.w, "  %s\n", f)
			}
		}
		return r.result()
	}
}

// Paths writes a flat list of paths
func (r *Reporter) Paths(paths []string) error {
	if r.format == FormatJSON {
		if paths == nil {
			paths = []string{}
		}
		return r.writeJSON(paths)
	}
	for _, p := range paths {
		fmt.Fprintln(r.w, p)
	}
	return r.result()
}

// Common writes matched pairs. fdupes prints each pair as a two-line group.
func (r *Reporter) Common(pairs []CommonPair) error {
	switch r.format {
	case FormatJSON:
		if pairs == nil {
			pairs = []CommonPair{}
		}
		return r.writeJSON(pairs)
	case FormatFdupes:
		for _, p := range pairs {
			fmt.Fprintf(r.w, "%s\n%s\n\n", p.A, p.B)
		}
		return r.result()
	default:
		for _, p := range pairs {
			fmt.Fprintf(r.w, "%s = %s\n", p.A, p.B)
		}
		return r.result()
	}
}

// DatabaseInfo writes the database summary
func (r *Reporter) DatabaseInfo(info *DatabaseInfo) error {
	if r.format == FormatJSON {
		return r.writeJSON(info)
	}
	fmt.Fprintf(r.w, "Database:  %s\n", info.Location)
	fmt.Fprintf(r.w, "Algorithm: %s\n", info.Algorithm)
	fmt.Fprintf(r.w, "Files:     %s (%s hashed, %s pending)\n",
		FormatCount(info.Files), FormatCount(info.Hashed), FormatCount(info.Unhashed))
	fmt.Fprintf(r.w, "Size:      %s\n", FormatHumanSize(info.TotalBytes))
	if len(info.LastRuns) > 0 {
		fmt.Fprintln(r.w, "Recent scans:")
		for _, run := range info.LastRuns {
			fmt.Fprintf(r.w, "  %s  %s  +%d ~%d =%d !%d  %v\n",
				run.StartedAt.Format(time.DateTime), run.Root,
				run.Added, run.Updated, run.Unchanged, run.Failed,
				run.Duration().Round(time.Millisecond))
		}
	}
	return r.result()
}

// PathInfo writes the summary of one path
func (r *Reporter) PathInfo(info *PathInfo) error {
	if r.format == FormatJSON {
		return r.writeJSON(info)
	}
	fmt.Fprintf(r.w, "%s: %s files, %s (%s hashed)\n",
		info.Path, FormatCount(info.Files), FormatHumanSize(info.TotalBytes), FormatCount(info.Hashed))
	return r.result()
}

// ScanRun writes the outcome of a refresh
func (r *Reporter) ScanRun(run *ScanRun) error {
	if r.format == FormatJSON {
		return r.writeJSON(run)
	}
	fmt.Fprintf(r.w, "%s: %d added, %d updated, %d unchanged, %d hashed, %d failed, %d ignored (%v)\n",
		run.Root, run.Added, run.Updated, run.Unchanged, run.Hashed, run.Failed, run.Ignored,
		run.Duration().Round(time.Millisecond))
	return r.result()
}

// exportRecord is the JSON lines form of a FileRecord
type exportRecord struct {
	Path          string     `json:"path"`
	Size          int64      `json:"size"`
	Hash          *string    `json:"hash"`
	LastChecked   time.Time  `json:"last_checked"`
	LastInspected *time.Time `json:"last_inspected"`
}

// Export writes every record of store to filename as JSON lines, one record
// per line in path order. Records whose path is not valid text are skipped
// and reported to sink as FILE_IGNORED. The file is written next to its
// destination and renamed into place. It returns the number of records written.
func Export(ctx context.Context, store MetadataStore, filename string, sink EventSink) (int, error) {
	defer VerboseEnter()()

	if sink == nil {
		sink = NopSink()
	}

	var (
		lines   [][]byte
		lineErr error
	)
	err := store.ForEach(ctx, func(rec *FileRecord) bool {
		if err := ValidatePath(rec.Path); err != nil {
			sink.Emit(Event{Kind: EventFileIgnored, Path: rec.Path, Reason: ReasonEncoding, Err: err})
			return true
		}
		out := exportRecord{Path: rec.Path, Size: rec.Size, LastChecked: rec.LastChecked.UTC()}
		if rec.HasHash() {
			hash := rec.Hash
			out.Hash = &hash
		}
		if !rec.LastInspected.IsZero() {
			inspected := rec.LastInspected.UTC()
			out.LastInspected = &inspected
		}
		line, err := json.Marshal(out)
		if err != nil {
			lineErr = fmt.Errorf("failed to encode %s: %w", rec.Path, err)
			return false
		}
		lines = append(lines, append(line, '\n'))
		return true
	})
	if err != nil {
		return 0, err
	}
	if lineErr != nil {
		return 0, lineErr
	}

	tempPath := filepath.Join(filepath.Dir(filename),
		fmt.Sprintf(".%s-%d-%d.tmp", filepath.Base(filename), os.Getpid(), time.Now().UnixNano()))
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create export file %s: %w", tempPath, err)
	}
	defer os.Remove(tempPath)

	if err := writevAll(file, lines); err != nil {
		file.Close()
		return 0, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return 0, fmt.Errorf("failed to sync export: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("failed to close export: %w", err)
	}
	if err := os.Rename(tempPath, filename); err != nil {
		return 0, fmt.Errorf("failed to move export into place: %w", err)
	}

	VerboseLog(1, "Exported %d records to %s", len(lines), filename)
	return len(lines), nil
}

// writevAll writes bufs to file with vectored writes, chunked to iovMax.
// A short writev is completed with plain writes.
func writevAll(file *os.File, bufs [][]byte) error {
	for offset := 0; offset < len(bufs); offset += iovMax {
		end := min(offset+iovMax, len(bufs))
		chunk := bufs[offset:end]

		iovecs := make([]syscall.Iovec, 0, len(chunk))
		expected := 0
		for _, b := range chunk {
			if len(b) == 0 {
				continue
			}
			iov := syscall.Iovec{Base: &b[0]}
			iov.SetLen(len(b))
			iovecs = append(iovecs, iov)
			expected += len(b)
		}
		if len(iovecs) == 0 {
			continue
		}

		nw, err := vectorio.WritevRaw(uintptr(file.Fd()), iovecs)
		if err != nil {
			return fmt.Errorf("failed to write export chunk with vectorio: %w", err)
		}
		if nw < expected {
			if err := writeRemainder(file, chunk, nw); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeRemainder writes what a short writev left out of chunk
func writeRemainder(file *os.File, chunk [][]byte, written int) error {
	for _, b := range chunk {
		if written >= len(b) {
			written -= len(b)
			continue
		}
		if _, err := file.Write(b[written:]); err != nil {
			return fmt.Errorf("failed to complete export write: %w", err)
		}
		written = 0
	}
	return nil
}
