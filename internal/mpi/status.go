package mpi

import (
	"fmt"
	"io"
)

// ProcStatus is a point-in-time view of one participant.
type ProcStatus struct {
	Rank       int           `json:"rank"`
	State      State         `json:"-"`
	StateName  string        `json:"state"`
	BlockedFor int           `json:"blocked_for"` // -1 when not blocked on a peer
	Collective string        `json:"collective,omitempty"`
	Messages   []MessageInfo `json:"messages,omitempty"`
}

// MessageInfo describes one pending message on a participant's list, newest
// first.
type MessageInfo struct {
	From       int  `json:"from"` // AnySource for an unresolved wildcard receive
	To         int  `json:"to"`
	Tag        int  `json:"tag"`
	SrcBlocked bool `json:"src_blocked"`
	DstBlocked bool `json:"dst_blocked"`
	HasSource  bool `json:"has_source"`
	HasDest    bool `json:"has_dest"`
}

// Snapshot captures every participant's status under the World lock.
func (w *World) Snapshot() []ProcStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]ProcStatus, len(w.procs))
	for i, p := range w.procs {
		out[i] = p.snapshot()
	}
	return out
}

// ActiveCollective returns the kind of the collective currently
// accumulating participants, or "" when none is.
func (w *World) ActiveCollective() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == nil {
		return ""
	}
	return w.active.kind.String()
}

// WriteStatus prints the status dump: one line per participant followed by
// its pending messages.
func (w *World) WriteStatus(out io.Writer) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range w.procs {
		for _, line := range p.statusLines() {
			if _, err := fmt.Fprintln(out, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// snapshot requires mu.
func (p *Proc) snapshot() ProcStatus {
	s := ProcStatus{
		Rank:       p.rank,
		State:      p.state,
		StateName:  p.state.String(),
		BlockedFor: -1,
	}
	if p.blockedFor != nil {
		s.BlockedFor = p.blockedFor.rank
	}
	if p.blockedForCollective != nil {
		s.Collective = p.blockedForCollective.kind.String()
	}
	for m := p.messages; m != nil; m = m.next {
		s.Messages = append(s.Messages, MessageInfo{
			From:       m.sourceRank(),
			To:         m.to.rank,
			Tag:        m.tag,
			SrcBlocked: m.srcBlocked,
			DstBlocked: m.dstBlocked,
			HasSource:  m.src != nil,
			HasDest:    m.dst != nil,
		})
	}
	return s
}

// statusLines renders p and its pending messages. mu must be held.
func (p *Proc) statusLines() []string {
	line := fmt.Sprintf("  Process %d: state %s", p.rank, p.state)
	if p.blockedFor != nil {
		line += fmt.Sprintf(", blocked for %d", p.blockedFor.rank)
	}
	if p.blockedForCollective != nil {
		line += fmt.Sprintf(", in %s", p.blockedForCollective.kind)
	}
	lines := []string{line}
	for m := p.messages; m != nil; m = m.next {
		lines = append(lines, m.statusLine())
	}
	return lines
}
