package mpi

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/mpisim/internal/trace"
)

// Program is the workload a participant executes. Exec is invoked once per
// participant, on that participant's own goroutine.
type Program interface {
	Exec(p *Proc) error
}

// ProgramFunc adapts a function to the Program interface.
type ProgramFunc func(p *Proc) error

// Exec calls f(p).
func (f ProgramFunc) Exec(p *Proc) error { return f(p) }

// World is the registry of participants and the single monitor that guards
// all coordination state.
//
// Thread-safety model:
//   - procs is immutable after New
//   - active, and every Proc's state, links, message list and collective
//     slots are guarded by mu
//   - cond is the only condition variable; every release is a Broadcast
//
// INVARIANTS:
//   - at most one collective is active
//   - a collective is detached from the World before its data movement runs
type World struct {
	mu     sync.Mutex
	cond   *sync.Cond
	procs  []*Proc
	active *collective

	strict   bool
	reporter Reporter
	logger   *slog.Logger
	recorder trace.Recorder
	clock    *trace.Clock
	views    ViewSink

	diagMu  sync.Mutex
	diags   []*Error
	aborted atomic.Pointer[Error]

	started atomic.Bool
	group   errgroup.Group
	done    chan struct{}
	err     error
}

// New creates a World of n participants with ranks 0..n-1.
func New(n int, opts ...Option) (*World, error) {
	if n < 1 {
		return nil, fmt.Errorf("world needs at least one process, got %d", n)
	}

	w := &World{
		procs:    make([]*Proc, n),
		logger:   slog.Default(),
		recorder: trace.Discard,
		clock:    trace.NewClock(),
		done:     make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	for i := range w.procs {
		w.procs[i] = &Proc{world: w, rank: i, state: Initialized}
	}

	for _, opt := range opts {
		opt(w)
	}
	if w.reporter == nil {
		w.reporter = logReporter{logger: w.logger}
	}

	return w, nil
}

// Size returns the number of participants.
func (w *World) Size() int { return len(w.procs) }

// Proc returns the participant with the given rank, or nil.
func (w *World) Proc(rank int) *Proc {
	if rank < 0 || rank >= len(w.procs) {
		return nil
	}
	return w.procs[rank]
}

// Strict reports whether diagnostics abort the World.
func (w *World) Strict() bool { return w.strict }

// Start launches one goroutine per participant, each executing prog.
// Start returns immediately; use Wait for completion.
func (w *World) Start(prog Program) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("world already started")
	}

	w.logger.Info("world starting", "procs", len(w.procs), "strict", w.strict)
	for _, p := range w.procs {
		p := p
		w.group.Go(func() error {
			return w.runProc(p, prog)
		})
	}
	go func() {
		w.err = w.group.Wait()
		close(w.done)
	}()
	return nil
}

// Wait blocks until every participant's program has returned.
//
// In strict mode the first diagnostic is returned. Otherwise the first error
// returned by a program is returned; diagnostics are available from
// Diagnostics.
func (w *World) Wait() error {
	<-w.done
	if e := w.aborted.Load(); e != nil {
		return e
	}
	w.logger.Info("world stopped", "diagnostics", len(w.Diagnostics()))
	return w.err
}

// Done is closed once every participant's program has returned.
func (w *World) Done() <-chan struct{} { return w.done }

// Run is Start followed by Wait.
func (w *World) Run(prog Program) error {
	if err := w.Start(prog); err != nil {
		return err
	}
	return w.Wait()
}

// Diagnostics returns every diagnostic reported so far, in report order.
func (w *World) Diagnostics() []*Error {
	w.diagMu.Lock()
	defer w.diagMu.Unlock()
	out := make([]*Error, len(w.diags))
	copy(out, w.diags)
	return out
}

// abortSignal unwinds a participant goroutine after a strict-mode abort.
type abortSignal struct {
	err *Error
}

func (w *World) runProc(p *Proc, prog Program) (err error) {
	defer func() {
		if r := recover(); r != nil {
			sig, ok := r.(abortSignal)
			if !ok {
				panic(r)
			}
			err = sig.err
		}
		p.stop()
	}()

	w.mu.Lock()
	p.state = Started
	w.mu.Unlock()

	if execErr := prog.Exec(p); execErr != nil {
		err = fmt.Errorf("process %d: %w", p.rank, execErr)
	}
	// A program must finalize before it returns.
	_ = p.expectState(Finalized)
	return err
}

// report sends a diagnostic to the sink. In strict mode it aborts the World
// and unwinds the calling goroutine; otherwise it returns e.
//
// report may be called with or without mu held.
func (w *World) report(e *Error) error {
	if e.Caller == "" {
		e.Caller = callSite()
	}

	w.diagMu.Lock()
	w.diags = append(w.diags, e)
	w.diagMu.Unlock()

	w.recorder.Record(trace.Event{
		Seq:    w.clock.Next(),
		Kind:   trace.KindDiagnostic,
		Rank:   e.Rank,
		Peer:   trace.NoPeer,
		Detail: string(e.Code),
	})
	w.reporter.Report(e)

	if w.strict {
		w.abort(e)
		panic(abortSignal{err: e})
	}
	return e
}

// abort records the first strict-mode diagnostic and wakes every waiter.
// The broadcast runs under mu on its own goroutine, so a waiter that checked
// the abort flag before it was set is guaranteed to be in Wait by then.
func (w *World) abort(e *Error) {
	if !w.aborted.CompareAndSwap(nil, e) {
		return
	}
	w.logger.Error("world aborted", "code", string(e.Code), "rank", e.Rank)
	go func() {
		w.mu.Lock()
		w.cond.Broadcast()
		w.mu.Unlock()
	}()
}

// checkAborted unwinds the calling participant if the World was aborted.
func (w *World) checkAborted(rank int) {
	if cause := w.aborted.Load(); cause != nil {
		panic(abortSignal{err: newError(ErrCodeAborted, rank, "world aborted: %s", cause.Message)})
	}
}

// wait parks the caller on the monitor. mu must be held.
func (w *World) wait(rank int) {
	w.checkAborted(rank)
	w.cond.Wait()
	w.checkAborted(rank)
}

// wakeAll releases every parked participant. mu must be held.
func (w *World) wakeAll() {
	w.cond.Broadcast()
}

// record stamps and forwards an event. mu must be held so the sequence
// follows the order of coordination state changes.
func (w *World) record(e trace.Event) {
	e.Seq = w.clock.Next()
	w.recorder.Record(e)
}
