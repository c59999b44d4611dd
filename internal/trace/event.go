package trace

import (
	"fmt"
	"sync"
)

// Kind distinguishes coordination events.
type Kind string

const (
	// KindPosted: a Send or Recv found no match and queued a pending message.
	KindPosted Kind = "posted"
	// KindMatched: a pending message was matched and its data transferred.
	KindMatched Kind = "matched"
	// KindJoined: a participant joined the active collective.
	KindJoined Kind = "joined"
	// KindFired: the last participant joined and the collective ran.
	KindFired Kind = "fired"
	// KindDiagnostic: a diagnostic was reported.
	KindDiagnostic Kind = "diagnostic"
	// KindStopped: a participant's program returned.
	KindStopped Kind = "stopped"
)

// NoPeer marks Event.Peer when the event has no counterpart.
const NoPeer = -1

// Event is one coordination step.
type Event struct {
	Seq        int64  `json:"seq"`
	Kind       Kind   `json:"kind"`
	Rank       int    `json:"rank"`
	Peer       int    `json:"peer"`
	Tag        int    `json:"tag"`
	Collective string `json:"collective,omitempty"`
	Count      int    `json:"count"`
	Detail     string `json:"detail,omitempty"`
}

func (e Event) String() string {
	s := fmt.Sprintf("#%d %s rank=%d", e.Seq, e.Kind, e.Rank)
	if e.Peer != NoPeer {
		s += fmt.Sprintf(" peer=%d", e.Peer)
	}
	switch e.Kind {
	case KindPosted, KindMatched:
		s += fmt.Sprintf(" tag=%d count=%d", e.Tag, e.Count)
	}
	if e.Collective != "" {
		s += " " + e.Collective
	}
	if e.Detail != "" {
		s += " " + e.Detail
	}
	return s
}

// Recorder receives events from the engine.
//
// Record is called while the world lock is held: implementations must not
// block and must not call back into the world.
type Recorder interface {
	Record(Event)
}

// Discard is a Recorder that drops every event.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Event) {}

// Log is an in-memory Recorder.
//
// Thread-safety: Log is safe for concurrent use via internal mutex.
type Log struct {
	mu     sync.Mutex
	events []Event
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{events: make([]Event, 0, 64)}
}

// Record appends an event.
func (l *Log) Record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

// Events returns a copy of all recorded events in sequence order.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Filter returns the recorded events of the given kinds, in order.
func (l *Log) Filter(kinds ...Kind) []Event {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []Event
	for _, e := range l.Events() {
		if want[e.Kind] {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
