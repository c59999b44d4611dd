package mpi

import (
	"github.com/roach88/mpisim/internal/trace"
)

// Send transfers count elements of buf to dest and blocks until a matching
// Recv has consumed them.
func (p *Proc) Send(buf any, count int, dt Datatype, dest, tag int, comm Comm) error {
	return p.send(buf, count, dt, dest, tag, comm, true)
}

// Ssend is the synchronous send. It behaves exactly like Send.
func (p *Proc) Ssend(buf any, count int, dt Datatype, dest, tag int, comm Comm) error {
	return p.send(buf, count, dt, dest, tag, comm, true)
}

// Isend queues count elements of buf for dest and returns without waiting.
// The buffer is copied, so the caller may reuse it immediately.
func (p *Proc) Isend(buf any, count int, dt Datatype, dest, tag int, comm Comm) error {
	return p.send(buf, count, dt, dest, tag, comm, false)
}

func (p *Proc) send(buf any, count int, dt Datatype, destRank, tag int, comm Comm, blocking bool) error {
	w := p.world
	w.checkAborted(p.rank)

	errState := p.expectState(Running)
	conn, errConn := p.newConn(buf, count, !blocking)
	if conn == nil {
		return errConn
	}
	if err := p.expectType(conn, dt, "Sending"); err != nil {
		return err
	}
	errComm := p.expectComm(comm)
	dest, err := p.peer(destRank)
	if dest == nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// An earlier unconsumed message from us to dest is delivered first.
	msg := dest.findForSender(p.rank, tag, dt)
	for msg != nil && msg.src != nil {
		if err := p.checkForDeadlock(dest, true); err != nil {
			return err
		}
		msg.srcBlocked = true
		p.blockedFor = dest
		for msg.srcBlocked {
			w.wait(p.rank)
		}
		p.blockedFor = nil
		w.wakeAll()
		msg = dest.findForSender(p.rank, tag, dt)
	}

	if msg != nil {
		// dest is parked in Recv waiting for us.
		msg.src = conn
		msg.from = p
		msg.tag = tag
		msg.dstBlocked = false
		errDeliver := msg.deliver()
		dest.blockedFor = nil
		w.record(trace.Event{Kind: trace.KindMatched, Rank: p.rank, Peer: dest.rank, Tag: tag, Count: conn.Count(), Detail: "send"})
		w.logger.Debug("message matched", "from", p.rank, "to", dest.rank, "tag", tag)
		w.wakeAll()
		if errDeliver != nil {
			return w.report(errDeliver)
		}
		return firstErr(errState, errConn, errComm)
	}

	if blocking {
		if err := p.checkForDeadlock(dest, true); err != nil {
			return err
		}
	}

	msg = dest.pushMessage(p, tag)
	msg.src = conn
	detail := "isend"
	if blocking {
		detail = "send"
	}
	w.record(trace.Event{Kind: trace.KindPosted, Rank: p.rank, Peer: dest.rank, Tag: tag, Count: conn.Count(), Detail: detail})
	w.logger.Debug("message posted", "from", p.rank, "to", dest.rank, "tag", tag, "blocking", blocking)

	if blocking {
		msg.srcBlocked = true
		p.blockedFor = dest
		for msg.srcBlocked {
			w.wait(p.rank)
		}
		p.blockedFor = nil
		w.wakeAll()
	}
	return firstErr(errState, errConn, errComm)
}

// Recv blocks until a message from source with tag arrives and copies it into
// buf. source may be AnySource and tag may be AnyTag. When status is non-nil
// it receives the resolved source, tag and element count.
func (p *Proc) Recv(buf any, count int, dt Datatype, source, tag int, comm Comm, status *Status) error {
	w := p.world
	w.checkAborted(p.rank)

	errState := p.expectState(Running)
	conn, errConn := p.newConn(buf, count, false)
	if conn == nil {
		return errConn
	}
	if err := p.expectType(conn, dt, "Receiving"); err != nil {
		return err
	}
	errComm := p.expectComm(comm)
	var src *Proc
	if source != AnySource {
		var err error
		if src, err = p.peer(source); src == nil {
			return err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if msg := p.findForReceiver(source, tag, dt); msg != nil {
		msg.dst = conn
		wasBlocked := msg.srcBlocked
		msg.srcBlocked = false
		errDeliver := msg.deliver()
		if wasBlocked {
			msg.from.blockedFor = nil
		}
		fillStatus(status, msg)
		w.record(trace.Event{Kind: trace.KindMatched, Rank: p.rank, Peer: msg.from.rank, Tag: msg.tag, Count: msg.src.Count(), Detail: "recv"})
		w.logger.Debug("message matched", "from", msg.from.rank, "to", p.rank, "tag", msg.tag)
		w.wakeAll()
		if errDeliver != nil {
			return w.report(errDeliver)
		}
		return firstErr(errState, errConn, errComm)
	}

	if src != nil {
		if err := p.checkForDeadlock(src, false); err != nil {
			return err
		}
	}

	msg := p.pushMessage(src, tag)
	msg.dst = conn
	msg.dstBlocked = true
	p.blockedFor = src
	peer := trace.NoPeer
	if src != nil {
		peer = src.rank
	}
	w.record(trace.Event{Kind: trace.KindPosted, Rank: p.rank, Peer: peer, Tag: tag, Count: conn.Count(), Detail: "recv"})
	w.logger.Debug("receive posted", "rank", p.rank, "source", source, "tag", tag)

	for msg.dstBlocked {
		w.wait(p.rank)
	}
	p.blockedFor = nil
	fillStatus(status, msg)
	w.wakeAll()
	return firstErr(errState, errConn, errComm)
}

func fillStatus(status *Status, msg *pendingMessage) {
	if status == nil {
		return
	}
	status.Source = msg.from.rank
	status.Tag = msg.tag
	status.Count = msg.src.Count()
}
