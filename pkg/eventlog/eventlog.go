// Package eventlog implements the dashboard's user-facing event log: an
// append-only, bounded list of timestamped lines.
package eventlog

import (
	"strings"
	"sync"
	"time"

	"github.com/pmicdash/pmicdash/pkg/clock"
)

// DefaultCapacity is the number of entries kept before the oldest is evicted.
const DefaultCapacity = 100

const timestampLayout = "15:04:05"

// Entry is a single log line.
type Entry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// String renders the entry as "[15:04:05] message".
func (e Entry) String() string {
	return "[" + e.Time.Format(timestampLayout) + "] " + e.Message
}

// Sink accepts event log messages.
type Sink interface {
	Append(message string)
}

// Log is a FIFO-bounded event log. It is safe for concurrent use.
type Log struct {
	mu       sync.RWMutex
	clock    clock.Clock
	capacity int
	entries  []Entry
}

// New creates a log holding at most capacity entries. A non-positive
// capacity uses DefaultCapacity. A nil clock uses real time.
func New(capacity int, clk clock.Clock) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Log{
		clock:    clk,
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
	}
}

// Append adds a message stamped with the current time, evicting the oldest
// entry once the log is full.
func (l *Log) Append(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, Entry{Time: l.clock.Now(), Message: message})
	if over := len(l.entries) - l.capacity; over > 0 {
		l.entries = append(l.entries[:0], l.entries[over:]...)
	}
}

// Entries returns a copy of the current entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Lines returns the formatted entries, oldest first.
func (l *Log) Lines() []string {
	entries := l.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return lines
}

// String joins all formatted entries with newlines for display.
func (l *Log) String() string {
	return strings.Join(l.Lines(), "\n")
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Capacity returns the maximum number of entries.
func (l *Log) Capacity() int {
	return l.capacity
}
