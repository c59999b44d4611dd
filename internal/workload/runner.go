package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/mpisim/internal/mpi"
)

// DefaultAwaitTimeout bounds how long an await step waits for its peer.
const DefaultAwaitTimeout = 5 * time.Second

// Runner executes scenarios.
type Runner struct {
	// Logger receives per-step debug output. Nil uses slog.Default().
	Logger *slog.Logger

	// Options are applied to every World after the scenario's own settings,
	// so they may override strict mode.
	Options []mpi.Option

	// AwaitTimeout defaults to DefaultAwaitTimeout.
	AwaitTimeout time.Duration
}

// Diagnostic is a reported diagnostic as it appears in a Result.
type Diagnostic struct {
	Code    string `json:"code"`
	Rank    int    `json:"rank"`
	Message string `json:"message"`
}

// Result is the outcome of one scenario execution.
type Result struct {
	Name   string `json:"name"`
	Procs  int    `json:"procs"`
	Strict bool   `json:"strict"`

	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Err is the error World.Wait returned: the aborting diagnostic in strict
	// mode or the first program error.
	Err string `json:"error,omitempty"`

	// Errors lists every failed expectation.
	Errors []string `json:"errors"`

	Diagnostics []Diagnostic `json:"diagnostics"`

	// Buffers holds each rank's final buffer contents.
	Buffers map[int]map[string]any `json:"buffers"`
}

// NewResult creates a passing result.
func NewResult(name string) *Result {
	return &Result{
		Name:        name,
		Pass:        true,
		Errors:      []string{},
		Diagnostics: []Diagnostic{},
		Buffers:     make(map[int]map[string]any),
	}
}

// AddError records a failed expectation.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Run executes s with the default Runner.
func Run(ctx context.Context, s *Scenario, opts ...mpi.Option) (*Result, error) {
	return (&Runner{Options: opts}).Run(ctx, s)
}

// Run executes s in a fresh World and checks its expectations. The returned
// error is non-nil only when the scenario could not be run to completion.
//
// Cancelling ctx abandons the World: participants still parked stay parked.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := append([]mpi.Option{mpi.WithStrict(s.Strict), mpi.WithLogger(logger)}, r.Options...)
	world, err := mpi.New(s.Procs, opts...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	ex := &executor{
		scenario: s,
		world:    world,
		logger:   logger,
		timeout:  r.AwaitTimeout,
		buffers:  make(map[int]map[string]any),
	}
	if ex.timeout <= 0 {
		ex.timeout = DefaultAwaitTimeout
	}

	logger.Info("running scenario", "name", s.Name, "procs", s.Procs)
	if err := world.Start(ex); err != nil {
		return nil, err
	}
	select {
	case <-world.Done():
	case <-ctx.Done():
		return nil, fmt.Errorf("scenario %s: %w", s.Name, ctx.Err())
	}
	waitErr := world.Wait()

	result := NewResult(s.Name)
	result.Procs = s.Procs
	result.Strict = world.Strict()
	result.Buffers = ex.buffers
	for _, d := range world.Diagnostics() {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{Code: string(d.Code), Rank: d.Rank, Message: d.Message})
	}

	var diag *mpi.Error
	if waitErr != nil {
		result.Err = waitErr.Error()
		if !errors.As(waitErr, &diag) {
			result.AddError(waitErr.Error())
		}
	}

	if s.Expect == nil {
		if len(result.Diagnostics) > 0 {
			result.AddError(fmt.Sprintf("%d unexpected diagnostics, first: %s", len(result.Diagnostics), result.Diagnostics[0].Message))
		}
		return result, nil
	}
	checkBuffers(result, s, s.Expect.Buffers)
	checkDiagnostics(result, s.Expect.Diagnostics)
	return result, nil
}

func checkBuffers(result *Result, s *Scenario, expects []BufferExpect) {
	for _, be := range expects {
		got, ok := result.Buffers[be.Rank][be.Buf]
		if !ok {
			result.AddError(fmt.Sprintf("rank %d buffer %s: not recorded", be.Rank, be.Buf))
			continue
		}
		want, err := fill(s.programFor(be.Rank).Buffers[be.Buf].Type, be.Values, be.Rank, s.Procs)
		if err != nil {
			result.AddError(fmt.Sprintf("rank %d buffer %s: %v", be.Rank, be.Buf, err))
			continue
		}
		if !hasPrefix(got, want) {
			result.AddError(fmt.Sprintf("rank %d buffer %s: expected prefix %v, got %v", be.Rank, be.Buf, want, got))
		}
	}
}

func checkDiagnostics(result *Result, want map[string]int) {
	got := make(map[string]int)
	for _, d := range result.Diagnostics {
		got[d.Code]++
	}
	codes := make([]string, 0, len(got)+len(want))
	for code := range got {
		codes = append(codes, code)
	}
	for code := range want {
		if _, seen := got[code]; !seen {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	for _, code := range codes {
		if got[code] != want[code] {
			result.AddError(fmt.Sprintf("diagnostic %s: expected %d, got %d", code, want[code], got[code]))
		}
	}
}

// executor is the mpi.Program every participant of a scenario runs.
type executor struct {
	scenario *Scenario
	world    *mpi.World
	logger   *slog.Logger
	timeout  time.Duration

	mu      sync.Mutex
	buffers map[int]map[string]any
}

func (ex *executor) Exec(p *mpi.Proc) error {
	rank, size := p.Rank(), ex.world.Size()
	prog := ex.scenario.programFor(rank)

	bufs := make(map[string]any, len(prog.Buffers))
	for name, decl := range prog.Buffers {
		buf, err := allocate(decl, rank, size)
		if err != nil {
			return fmt.Errorf("buffer %s: %w", name, err)
		}
		bufs[name] = buf
	}
	// Deferred so buffers are kept when a strict abort unwinds the steps.
	defer ex.keep(rank, bufs)

	for i := range prog.Steps {
		if err := ex.step(p, &prog.Steps[i], prog.Buffers, bufs); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, prog.Steps[i].Op, err)
		}
	}
	return nil
}

func (ex *executor) keep(rank int, bufs map[string]any) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.buffers[rank] = bufs
}

// step runs one step. Diagnostics raised by the call are reported by the
// World; only malformed steps return an error.
func (ex *executor) step(p *mpi.Proc, st *Step, decls map[string]Buffer, bufs map[string]any) error {
	rank, size := p.Rank(), ex.world.Size()

	comm := mpi.CommWorld
	if st.Comm != nil {
		comm = mpi.Comm(*st.Comm)
	}
	count := 1
	if st.Count != nil {
		count = *st.Count
	}
	recvCount := count
	if st.RecvCount != nil {
		recvCount = *st.RecvCount
	}
	dt, err := stepType(st.Type, decls[st.Buf])
	if err != nil {
		return err
	}
	recvType, err := stepType(st.RecvType, decls[st.Recv])
	if err != nil {
		return err
	}
	peer, root := 0, 0
	if st.Peer != "" {
		if peer, err = st.Peer.Eval(rank, size); err != nil {
			return err
		}
	}
	if st.Root != "" {
		if root, err = st.Root.Eval(rank, size); err != nil {
			return err
		}
	}
	var op mpi.ReduceOp
	if st.Op == OpReduce || st.Op == OpAllreduce {
		if op, err = mpi.ParseReduceOp(st.Reduce); err != nil {
			return err
		}
	}
	buf, recv := bufs[st.Buf], bufs[st.Recv]

	var callErr error
	switch st.Op {
	case OpInit:
		callErr = p.Init()
	case OpFinalize:
		callErr = p.Finalize()
	case OpBarrier:
		callErr = p.Barrier()
	case OpSend:
		callErr = p.Send(buf, count, dt, peer, st.Tag, comm)
	case OpSsend:
		callErr = p.Ssend(buf, count, dt, peer, st.Tag, comm)
	case OpIsend:
		callErr = p.Isend(buf, count, dt, peer, st.Tag, comm)
	case OpRecv:
		callErr = p.Recv(buf, count, dt, peer, st.Tag, comm, nil)
	case OpBcast:
		callErr = p.Bcast(buf, count, dt, root, comm)
	case OpReduce:
		callErr = p.Reduce(buf, recv, count, dt, op, root, comm)
	case OpAllreduce:
		callErr = p.Allreduce(buf, recv, count, dt, op, comm)
	case OpScatter:
		callErr = p.Scatter(buf, count, dt, recv, recvCount, recvType, root, comm)
	case OpGather:
		callErr = p.Gather(buf, count, dt, recv, recvCount, recvType, root, comm)
	case OpAllgather:
		callErr = p.Allgather(buf, count, dt, recv, recvCount, recvType, comm)
	case OpAwait:
		return ex.await(peer)
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}

	if callErr != nil {
		ex.logger.Debug("step reported a diagnostic", "rank", rank, "op", st.Op, "code", string(mpi.CodeOf(callErr)))
	}
	return nil
}

// await polls until rank is parked in a blocking call.
func (ex *executor) await(rank int) error {
	if ex.world.Proc(rank) == nil {
		return fmt.Errorf("await: no process with rank %d", rank)
	}
	deadline := time.Now().Add(ex.timeout)
	for !parked(ex.world.Snapshot(), rank) {
		if time.Now().After(deadline) {
			return fmt.Errorf("await: process %d did not block within %s", rank, ex.timeout)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

// parked reports whether rank waits in a collective, on a peer, or in a
// wildcard receive.
func parked(status []mpi.ProcStatus, rank int) bool {
	if s := status[rank]; s.State == mpi.Blocked || s.BlockedFor >= 0 {
		return true
	}
	for _, s := range status {
		for _, m := range s.Messages {
			if m.To == rank && m.DstBlocked || m.From == rank && m.SrcBlocked {
				return true
			}
		}
	}
	return false
}

func stepType(declared string, buf Buffer) (mpi.Datatype, error) {
	if declared == "" {
		declared = buf.Type
	}
	if declared == "" {
		return 0, nil
	}
	return mpi.ParseDatatype(declared)
}

// allocate creates the buffer decl describes, evaluated for rank.
func allocate(decl Buffer, rank, size int) (any, error) {
	init, err := fill(decl.Type, decl.Init, rank, size)
	if err != nil {
		return nil, err
	}
	switch v := init.(type) {
	case []int:
		buf := make([]int, decl.Size)
		copy(buf, v)
		return buf, nil
	case []float64:
		buf := make([]float64, decl.Size)
		copy(buf, v)
		return buf, nil
	case []string:
		buf := make([]string, decl.Size)
		copy(buf, v)
		return buf, nil
	}
	return nil, fmt.Errorf("unsupported buffer type %q", decl.Type)
}

// fill converts scenario values to a typed slice.
func fill(typ string, values []Expr, rank, size int) (any, error) {
	dt, err := mpi.ParseDatatype(typ)
	if err != nil {
		return nil, err
	}
	switch dt {
	case mpi.Int:
		out := make([]int, len(values))
		for i, e := range values {
			if out[i], err = e.Eval(rank, size); err != nil {
				return nil, err
			}
		}
		return out, nil
	case mpi.Double:
		out := make([]float64, len(values))
		for i, e := range values {
			if out[i], err = strconv.ParseFloat(string(e), 64); err != nil {
				return nil, fmt.Errorf("bad double %q", string(e))
			}
		}
		return out, nil
	default:
		out := make([]string, len(values))
		for i, e := range values {
			out[i] = string(e)
		}
		return out, nil
	}
}

func hasPrefix(got, want any) bool {
	switch w := want.(type) {
	case []int:
		g, ok := got.([]int)
		return ok && len(g) >= len(w) && slices.Equal(g[:len(w)], w)
	case []float64:
		g, ok := got.([]float64)
		return ok && len(g) >= len(w) && slices.Equal(g[:len(w)], w)
	case []string:
		g, ok := got.([]string)
		return ok && len(g) >= len(w) && slices.Equal(g[:len(w)], w)
	}
	return false
}
