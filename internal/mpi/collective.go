package mpi

import (
	"github.com/roach88/mpisim/internal/trace"
)

// collective is a group operation accumulating participants. It fires when
// the countdown reaches zero.
type collective struct {
	kind      CollectiveKind
	op        ReduceOp
	root      *Proc
	remaining int
}

func (c *collective) done() bool { return c.remaining == 0 }

// joinIn counts one participant in. The last joiner detaches c from the
// World, clears every blockedForCollective link, runs the data movement and
// reports true. mu must be held.
func (c *collective) joinIn(w *World) bool {
	c.remaining--
	if c.remaining > 0 {
		return false
	}

	w.active = nil
	for _, q := range w.procs {
		q.blockedForCollective = nil
	}
	root := trace.NoPeer
	if c.root != nil {
		root = c.root.rank
	}
	w.record(trace.Event{Kind: trace.KindFired, Rank: root, Peer: trace.NoPeer, Collective: c.kind.String()})
	w.logger.Debug("collective fired", "kind", c.kind.String())

	c.move(w)
	return true
}

// move performs the kind-specific data movement over ranks 0..N-1. Slots
// left empty by a participant's argument errors are skipped.
func (c *collective) move(w *World) {
	procs := w.procs
	n := len(procs)

	fail := func(err error, rank int) {
		if e := asError(err, rank); e != nil {
			w.report(e)
		}
	}

	switch c.kind {
	case CollInit, CollFinalize, CollBarrier:

	case CollBcast:
		if c.root == nil || c.root.conn1 == nil {
			return
		}
		for _, q := range procs {
			if q == c.root || q.conn1 == nil {
				continue
			}
			fail(q.conn1.TransferFrom(c.root.conn1, 0, 0), q.rank)
		}

	case CollReduce:
		if c.root == nil || c.root.conn2 == nil {
			return
		}
		reduce(c.root.conn2, procs, c.op, fail)

	case CollReduceAll:
		acc := procs[0].conn2
		if acc == nil {
			return
		}
		if !reduce(acc, procs, c.op, fail) {
			return
		}
		for _, q := range procs[1:] {
			if q.conn2 != nil {
				fail(q.conn2.TransferFrom(acc, 0, 0), q.rank)
			}
		}

	case CollScatter:
		if c.root == nil || c.root.conn1 == nil {
			return
		}
		src := c.root.conn1
		for i, q := range procs {
			if q.conn2 == nil {
				continue
			}
			step := q.conn2.Count()
			fail(q.conn2.TransferFrom(src, i*step, 0), q.rank)
		}

	case CollGather:
		if c.root == nil || c.root.conn2 == nil {
			return
		}
		gather(c.root.conn2, procs, fail)

	case CollGatherAll:
		acc := procs[0].conn2
		if acc == nil {
			return
		}
		gather(acc, procs, fail)
		total := n * acc.Count()
		for _, q := range procs[1:] {
			if q.conn2 != nil {
				fail(q.conn2.TransferAll(acc, total), q.rank)
			}
		}
	}
}

// reduce folds every participant's conn1 into acc in rank order. The loop
// index is the rank passed to ReduceFrom, so index 0 seeds the accumulator.
// Without index 0's conn1 there is no seed: nothing is folded and reduce
// reports false.
func reduce(acc *Conn, procs []*Proc, op ReduceOp, fail func(error, int)) bool {
	if len(procs) == 0 || procs[0].conn1 == nil {
		return false
	}
	for i, q := range procs {
		if q.conn1 == nil {
			continue
		}
		fail(acc.ReduceFrom(q.conn1, i, op), q.rank)
	}
	return true
}

// gather copies participant i's conn1 to dst at offset i*step, where step is
// dst's own count.
func gather(dst *Conn, procs []*Proc, fail func(error, int)) {
	step := dst.Count()
	for i, q := range procs {
		if q.conn1 == nil {
			continue
		}
		fail(dst.TransferFrom(q.conn1, 0, i*step), q.rank)
	}
}

// joinCollective parks p in the collective of the given kind, with c1 and c2
// attached to its slots until the collective fires. p ends in state after,
// whatever the outcome.
func (p *Proc) joinCollective(kind CollectiveKind, op ReduceOp, root *Proc, c1, c2 *Conn, after State) error {
	w := p.world
	w.mu.Lock()
	defer w.mu.Unlock()

	p.state = Blocked
	p.conn1, p.conn2 = c1, c2
	defer func() {
		p.conn1, p.conn2 = nil, nil
		p.state = after
	}()

	return p.startCollective(kind, op, root)
}

// startCollective joins the active collective, creating it when none is
// active, and waits for it to fire. mu must be held.
func (p *Proc) startCollective(kind CollectiveKind, op ReduceOp, root *Proc) error {
	w := p.world

	for _, q := range w.procs {
		if q.blockedFor == p {
			return w.report(newError(ErrCodeCollectiveHazard, p.rank,
				"Process %d cannot enter %s because process %d is blocked on it", p.rank, kind, q.rank))
		}
	}

	c := w.active
	if c != nil && c.kind != kind {
		return w.report(newError(ErrCodeCollectiveConflict, p.rank,
			"Process %d cannot start %s because there is already a %s started", p.rank, kind, c.kind))
	}
	if c == nil {
		c = &collective{kind: kind, op: op, root: root, remaining: len(w.procs)}
		w.active = c
	}

	w.record(trace.Event{Kind: trace.KindJoined, Rank: p.rank, Peer: trace.NoPeer, Collective: kind.String()})
	if c.joinIn(w) {
		w.wakeAll()
		return nil
	}

	p.blockedForCollective = c
	for !c.done() {
		w.wait(p.rank)
	}
	p.blockedForCollective = nil
	return nil
}
