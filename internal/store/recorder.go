package store

import (
	"context"
	"slices"

	"github.com/roach88/mpisim/internal/trace"
)

// EventLog is a trace.Recorder that buffers a run's events in memory and
// writes them to the store on Flush.
//
// Record runs under the World lock, so it never touches the database.
//
// Thread-safety: safe for concurrent use.
type EventLog struct {
	store *Store
	runID string
	buf   *trace.Log
}

// NewEventLog creates a recorder for runID.
func (s *Store) NewEventLog(runID string) *EventLog {
	return &EventLog{store: s, runID: runID, buf: trace.NewLog()}
}

// Record buffers e.
func (l *EventLog) Record(e trace.Event) {
	l.buf.Record(e)
}

// Len returns the number of buffered events.
func (l *EventLog) Len() int {
	return l.buf.Len()
}

// Flush writes every buffered event in seq order. Flushing twice is
// harmless: events already stored are skipped.
func (l *EventLog) Flush(ctx context.Context) error {
	events := l.buf.Events()
	slices.SortFunc(events, func(a, b trace.Event) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return l.store.WriteEvents(ctx, l.runID, events)
}
