package main

import (
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/fatih/color"
	hifi "github.com/mattkeenan/hifi/pkg"
)

// eventPrinter writes record events to a terminal, one colored line each
type eventPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	level int

	added   func(w io.Writer, format string, a ...interface{})
	updated func(w io.Writer, format string, a ...interface{})
	removed func(w io.Writer, format string, a ...interface{})
	failed  func(w io.Writer, format string, a ...interface{})
	ignored func(w io.Writer, format string, a ...interface{})
}

// newEventSink returns the sink used by every command. Terminals get colored
// lines; anything else gets the structured log.
func newEventSink(w io.Writer, level int) hifi.EventSink {
	if color.NoColor {
		return hifi.LogSink()
	}
	return &eventPrinter{
		w:       w,
		level:   level,
		added:   color.New(color.FgGreen).FprintfFunc(),
		updated: color.New(color.FgYellow).FprintfFunc(),
		removed: color.New(color.FgRed).FprintfFunc(),
		failed:  color.New(color.FgRed, color.Bold).FprintfFunc(),
		ignored: color.New(color.Faint).FprintfFunc(),
	}
}

func (p *eventPrinter) Emit(e hifi.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Kind {
	case hifi.EventHashFailed:
		p.failed(p.w, "! %s: %v\n", e.Path, e.Err)
	case hifi.EventRecordAdded:
		if p.level >= 1 {
			p.added(p.w, "+ %s\n", e.Path)
		}
	case hifi.EventRecordUpdated:
		if p.level >= 1 {
			p.updated(p.w, "~ %s\n", e.Path)
		}
	case hifi.EventRecordRemoved:
		if p.level >= 1 {
			p.removed(p.w, "- %s\n", e.Path)
		}
	case hifi.EventFileIgnored:
		if p.level >= 2 {
			p.ignored(p.w, "  %s (%s)\n", e.Path, e.Reason)
		}
	case hifi.EventProgress:
		if p.level >= 3 {
			fmt.Fprintf(p.w, "  [%d/%d %.0f%%] %s\n", e.Done, e.Total, e.Percent, e.Path)
		}
	}
}

func disableColor() {
	color.NoColor = true
}

// collectSeq drains a query sequence, stopping at the first error
func collectSeq[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
