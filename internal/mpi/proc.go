package mpi

import (
	"errors"

	"github.com/roach88/mpisim/internal/trace"
)

// Proc is one participant: a simulated rank with its own goroutine.
//
// Every field except world, rank and view is guarded by world.mu. view is
// owned by the participant's goroutine.
type Proc struct {
	world *World
	rank  int

	state                State
	blockedFor           *Proc
	blockedForCollective *collective
	messages             *pendingMessage

	// Collective slots, set only while a collective is in flight.
	conn1 *Conn
	conn2 *Conn

	view *View
}

// Rank returns the participant's rank.
func (p *Proc) Rank() int { return p.rank }

// World returns the World the participant belongs to.
func (p *Proc) World() *World { return p.world }

// State returns the current lifecycle state.
func (p *Proc) State() State {
	p.world.mu.Lock()
	defer p.world.mu.Unlock()
	return p.state
}

// Init joins the INIT collective. The participant must be STARTED.
func (p *Proc) Init() error {
	p.world.checkAborted(p.rank)
	errState := p.expectState(Started)
	return firstErr(errState, p.joinCollective(CollInit, 0, nil, nil, nil, Running))
}

// Finalize joins the FINALIZE collective. The participant must be RUNNING.
func (p *Proc) Finalize() error {
	p.world.checkAborted(p.rank)
	errState := p.expectState(Running)
	return firstErr(errState, p.joinCollective(CollFinalize, 0, nil, nil, nil, Finalized))
}

// Barrier returns once every participant has called Barrier.
func (p *Proc) Barrier() error {
	p.world.checkAborted(p.rank)
	errState := p.expectState(Running)
	return firstErr(errState, p.joinCollective(CollBarrier, 0, nil, nil, nil, Running))
}

// CommSize returns the number of participants in comm.
func (p *Proc) CommSize(comm Comm) (int, error) {
	p.world.checkAborted(p.rank)
	errState := p.expectState(Running)
	errComm := p.expectComm(comm)
	return len(p.world.procs), firstErr(errState, errComm)
}

// CommRank returns the participant's rank in comm.
func (p *Proc) CommRank(comm Comm) (int, error) {
	p.world.checkAborted(p.rank)
	errState := p.expectState(Running)
	errComm := p.expectComm(comm)
	return p.rank, firstErr(errState, errComm)
}

// expectState reports a state violation when p is not in want. Execution
// continues either way.
func (p *Proc) expectState(want State) error {
	p.world.mu.Lock()
	got := p.state
	p.world.mu.Unlock()
	if got == want {
		return nil
	}
	return p.world.report(newError(ErrCodeState, p.rank,
		"Process %d in state %s but expected %s", p.rank, got, want))
}

func (p *Proc) expectComm(comm Comm) error {
	if comm == CommWorld {
		return nil
	}
	return p.world.report(newError(ErrCodeComm, p.rank,
		"Process %d Communicator not set to MPI_COMM_WORLD", p.rank))
}

// expectType reports a type mismatch between the declared datatype and the
// buffer behind c. verb names the role of the buffer in the message.
func (p *Proc) expectType(c *Conn, declared Datatype, verb string) error {
	if c == nil || c.Datatype() == declared {
		return nil
	}
	return p.world.report(newError(ErrCodeTypeMismatch, p.rank,
		"%s %s data, but request says %s", verb, c.Datatype(), declared))
}

// peer resolves a peer or root rank, reporting unknown ranks.
func (p *Proc) peer(rank int) (*Proc, error) {
	if q := p.world.Proc(rank); q != nil {
		return q, nil
	}
	return nil, p.world.report(newError(ErrCodeUnknownRank, p.rank, "No process with rank %d", rank))
}

// newConn wraps buf, reporting construction errors. A nil Conn means the
// buffer type is unsupported.
func (p *Proc) newConn(buf any, count int, buffered bool) (*Conn, error) {
	c, err := NewConn(buf, count, buffered)
	if err == nil {
		return c, nil
	}
	var e *Error
	if errors.As(err, &e) {
		e.Rank = p.rank
		return c, p.world.report(e)
	}
	return c, err
}

// stop marks p STOPPED and releases its view. It runs once the
// participant's program has returned, or been unwound by an abort.
func (p *Proc) stop() {
	w := p.world
	w.mu.Lock()
	p.state = Stopped
	w.record(trace.Event{Kind: trace.KindStopped, Rank: p.rank, Peer: trace.NoPeer})
	w.wakeAll()
	w.mu.Unlock()

	p.view.Dispose()
	p.view = nil
	w.logger.Debug("process stopped", "rank", p.rank)
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
