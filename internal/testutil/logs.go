package testutil

import (
	"context"
	"log/slog"
	"sync"
)

// LogCapture is a slog.Handler that keeps every record it handles.
//
// Thread-safety: safe for concurrent use via internal mutex. Handlers derived
// with WithAttrs or WithGroup share the same record list.
type LogCapture struct {
	mu      *sync.Mutex
	records *[]slog.Record
	level   slog.Level
}

// NewLogger returns a logger writing to a fresh LogCapture at level.
func NewLogger(level slog.Level) (*slog.Logger, *LogCapture) {
	c := &LogCapture{
		mu:      &sync.Mutex{},
		records: &[]slog.Record{},
		level:   level,
	}
	return slog.New(c), c
}

// Enabled implements slog.Handler.
func (c *LogCapture) Enabled(_ context.Context, level slog.Level) bool {
	return level >= c.level
}

// Handle implements slog.Handler.
func (c *LogCapture) Handle(_ context.Context, r slog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.records = append(*c.records, r.Clone())
	return nil
}

// WithAttrs implements slog.Handler. Attributes are not retained.
func (c *LogCapture) WithAttrs([]slog.Attr) slog.Handler { return c }

// WithGroup implements slog.Handler. Groups are not retained.
func (c *LogCapture) WithGroup(string) slog.Handler { return c }

// Messages returns the message of every captured record at or above level.
func (c *LogCapture) Messages(level slog.Level) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, r := range *c.records {
		if r.Level >= level {
			out = append(out, r.Message)
		}
	}
	return out
}

// Attr returns the value of key on the first record with message msg.
func (c *LogCapture) Attr(msg, key string) (slog.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range *c.records {
		if r.Message != msg {
			continue
		}
		var v slog.Value
		found := false
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == key {
				v, found = a.Value, true
				return false
			}
			return true
		})
		if found {
			return v, true
		}
	}
	return slog.Value{}, false
}
