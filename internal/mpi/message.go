package mpi

import (
	"fmt"
	"strings"
)

// pendingMessage is a queued, not yet matched half of a rendezvous. It lives
// on the destination's list until the transfer completes.
//
// A message created by Recv carries only dst; one created by Send carries
// only src. from is nil and tag is AnyTag while a wildcard receive is still
// unresolved.
type pendingMessage struct {
	next *pendingMessage

	from *Proc
	to   *Proc
	tag  int

	src *Conn
	dst *Conn

	srcBlocked bool
	dstBlocked bool
}

// datatype resolves from whichever side already has a connection.
func (m *pendingMessage) datatype() Datatype {
	if m.src != nil {
		return m.src.Datatype()
	}
	return m.dst.Datatype()
}

func (m *pendingMessage) sourceRank() int {
	if m.from == nil {
		return AnySource
	}
	return m.from.rank
}

// acceptsSender reports whether a Send from rank with tag and dt can complete
// or queue behind m.
func (m *pendingMessage) acceptsSender(rank, tag int, dt Datatype) bool {
	if m.from != nil && m.from.rank != rank {
		return false
	}
	if m.tag != AnyTag && m.tag != tag {
		return false
	}
	return m.datatype() == dt
}

// acceptsReceiver reports whether a Recv for (source, tag, dt) can consume m.
func (m *pendingMessage) acceptsReceiver(source, tag int, dt Datatype) bool {
	if m.src == nil {
		return false
	}
	if source != AnySource && m.from.rank != source {
		return false
	}
	if tag != AnyTag && m.tag != tag {
		return false
	}
	return m.datatype() == dt
}

// deliver copies the source into the destination and unlinks m. The message
// is unlinked even when the copy fails so nobody waits on it forever.
func (m *pendingMessage) deliver() *Error {
	defer m.to.removeMessage(m)

	n := m.src.Count()
	if n > m.dst.Count() {
		return newError(ErrCodeCapacity, m.to.rank,
			"Message of %d elements from process %d truncated by a receive of %d", n, m.from.rank, m.dst.Count())
	}
	return asError(m.dst.TransferAll(m.src, n), m.to.rank)
}

// statusLine renders m the way the world status dump prints it.
func (m *pendingMessage) statusLine() string {
	var b strings.Builder
	if m.from == nil {
		b.WriteString("...[From: any")
	} else {
		fmt.Fprintf(&b, "...[From: %d", m.from.rank)
	}
	if m.srcBlocked {
		b.WriteString("(blocked)")
	}
	fmt.Fprintf(&b, ", To: %d", m.to.rank)
	if m.dstBlocked {
		b.WriteString("(blocked)")
	}
	fmt.Fprintf(&b, ", Tag: %d]", m.tag)
	if m.src != nil {
		b.WriteString(" has source conn")
	}
	if m.dst != nil {
		b.WriteString(" has destination conn")
	}
	return b.String()
}

// pushMessage links a new message at the head of p's list. mu must be held.
func (p *Proc) pushMessage(from *Proc, tag int) *pendingMessage {
	m := &pendingMessage{next: p.messages, from: from, to: p, tag: tag}
	p.messages = m
	return m
}

// findForSender scans p's list head to tail. mu must be held.
func (p *Proc) findForSender(rank, tag int, dt Datatype) *pendingMessage {
	for m := p.messages; m != nil; m = m.next {
		if m.acceptsSender(rank, tag, dt) {
			return m
		}
	}
	return nil
}

// findForReceiver scans p's list head to tail, so the newest compatible
// message wins. mu must be held.
func (p *Proc) findForReceiver(source, tag int, dt Datatype) *pendingMessage {
	for m := p.messages; m != nil; m = m.next {
		if m.acceptsReceiver(source, tag, dt) {
			return m
		}
	}
	return nil
}

// removeMessage unlinks m from p's list. mu must be held.
func (p *Proc) removeMessage(m *pendingMessage) {
	if p.messages == m {
		p.messages = m.next
		return
	}
	for q := p.messages; q != nil; q = q.next {
		if q.next == m {
			q.next = m.next
			return
		}
	}
}
