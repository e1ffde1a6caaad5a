package logging

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultMaxEntries bounds the entries kept per activity.
const DefaultMaxEntries = 1000

// LogEntry is one captured log record.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LogCollector stores captured log entries per activity. It is safe for
// concurrent use. When an activity exceeds its limit the oldest entries are
// dropped and counted.
type LogCollector struct {
	mu         sync.RWMutex
	maxEntries int
	logs       map[string][]LogEntry
	dropped    map[string]int
}

// NewLogCollector creates a collector keeping up to DefaultMaxEntries per activity.
func NewLogCollector() *LogCollector {
	return NewLogCollectorWithLimit(DefaultMaxEntries)
}

// NewLogCollectorWithLimit creates a collector keeping up to max entries per
// activity. A non-positive max keeps everything.
func NewLogCollectorWithLimit(max int) *LogCollector {
	return &LogCollector{
		maxEntries: max,
		logs:       make(map[string][]LogEntry),
		dropped:    make(map[string]int),
	}
}

// Logger returns a logger that captures into the collector under activityID
// and forwards to base.
func (c *LogCollector) Logger(base *slog.Logger, activityID string) *slog.Logger {
	return slog.New(NewCapturingHandler(base.Handler(), c, activityID))
}

func (c *LogCollector) add(activityID string, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := append(c.logs[activityID], entry)
	if c.maxEntries > 0 && len(entries) > c.maxEntries {
		over := len(entries) - c.maxEntries
		entries = append([]LogEntry(nil), entries[over:]...)
		c.dropped[activityID] += over
	}
	c.logs[activityID] = entries
}

// Entries returns a copy of the entries captured for activityID.
func (c *LogCollector) Entries(activityID string) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	logs, ok := c.logs[activityID]
	if !ok {
		return nil
	}
	return append([]LogEntry(nil), logs...)
}

// Dropped returns how many entries were discarded for activityID.
func (c *LogCollector) Dropped(activityID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dropped[activityID]
}

// All returns a copy of every activity's entries.
func (c *LogCollector) All() map[string][]LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]LogEntry, len(c.logs))
	for id, logs := range c.logs {
		out[id] = append([]LogEntry(nil), logs...)
	}
	return out
}

// Reset discards everything.
func (c *LogCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = make(map[string][]LogEntry)
	c.dropped = make(map[string]int)
}
