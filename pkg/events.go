package hifi

import (
	"sync"
)

// EventKind identifies what happened to a path during a refresh, cleanup or query
type EventKind int

const (
	EventRecordAdded EventKind = iota
	EventRecordUpdated
	EventRecordRemoved
	EventFileIgnored
	EventHashFailed
	EventProgress
)

func (k EventKind) String() string {
	switch k {
	case EventRecordAdded:
		return "RECORD_ADDED"
	case EventRecordUpdated:
		return "RECORD_UPDATED"
	case EventRecordRemoved:
		return "RECORD_REMOVED"
	case EventFileIgnored:
		return "FILE_IGNORED"
	case EventHashFailed:
		return "HASH_FAILED"
	case EventProgress:
		return "PROGRESS"
	default:
		return "UNKNOWN"
	}
}

// IgnoreReason explains why a FILE_IGNORED event was emitted
type IgnoreReason string

const (
	ReasonSymlink    IgnoreReason = "symlink"
	ReasonSpecial    IgnoreReason = "special"
	ReasonEncoding   IgnoreReason = "encoding"
	ReasonUnreadable IgnoreReason = "unreadable"
	ReasonPattern    IgnoreReason = "pattern"
)

// Event is a single report emitted to an EventSink
type Event struct {
	Kind    EventKind
	Path    string
	Reason  IgnoreReason // FILE_IGNORED only
	Err     error        // HASH_FAILED and unreadable directories
	Done    int          // PROGRESS only
	Total   int          // PROGRESS only
	Percent float64      // PROGRESS only
}

// EventSink receives events. Implementations must be safe for concurrent use,
// hash workers emit from their own goroutines.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to an EventSink
type SinkFunc func(Event)

// Emit calls f(e)
func (f SinkFunc) Emit(e Event) { f(e) }

type nopSink struct{}

func (nopSink) Emit(Event) {}

// NopSink returns a sink that drops every event
func NopSink() EventSink { return nopSink{} }

// EventCollector records events in memory
type EventCollector struct {
	mu     sync.Mutex
	events []Event
}

// Emit records e
func (c *EventCollector) Emit(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

// Events returns a copy of the recorded events
func (c *EventCollector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Count returns how many events of kind were recorded
func (c *EventCollector) Count(kind EventKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Paths returns the paths of recorded events of kind, in emission order
func (c *EventCollector) Paths(kind EventKind) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var paths []string
	for _, e := range c.events {
		if e.Kind == kind {
			paths = append(paths, e.Path)
		}
	}
	return paths
}

// Reset drops every recorded event
func (c *EventCollector) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}

// MultiSink fans each event out to every non-nil sink
func MultiSink(sinks ...EventSink) EventSink {
	var live []EventSink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return SinkFunc(func(e Event) {
		for _, s := range live {
			s.Emit(e)
		}
	})
}

// LogSink reports events through the verbose logger
func LogSink() EventSink {
	return SinkFunc(func(e Event) {
		switch e.Kind {
		case EventFileIgnored:
			VerboseLog(2, "%s (%s): %s", e.Kind, e.Reason, e.Path)
		case EventHashFailed:
			Warnf("%s: %s: %v", e.Kind, e.Path, e.Err)
		case EventProgress:
			VerboseLog(3, "%s %d/%d (%.1f%%)", e.Kind, e.Done, e.Total, e.Percent)
		default:
			VerboseLog(1, "%s: %s", e.Kind, e.Path)
		}
	})
}
