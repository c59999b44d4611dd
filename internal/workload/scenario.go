package workload

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/mpisim/internal/mpi"
)

// Scenario is a declarative workload: one step list per group of ranks and
// the outcome expected once every participant has returned.
type Scenario struct {
	// Name identifies the scenario in results and golden files.
	Name string `yaml:"name"`

	Description string `yaml:"description,omitempty"`

	// Procs is the World size.
	Procs int `yaml:"procs"`

	// Strict aborts the World on the first diagnostic.
	Strict bool `yaml:"strict,omitempty"`

	// Programs assigns step lists to ranks. A program without ranks applies
	// to every rank no earlier program claimed.
	Programs []Program `yaml:"programs"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Program is the step list run by a group of ranks.
type Program struct {
	Ranks   []int             `yaml:"ranks,omitempty"`
	Buffers map[string]Buffer `yaml:"buffers,omitempty"`
	Steps   []Step            `yaml:"steps"`
}

// Buffer declares one named buffer of a participant. Init fills a prefix of
// it; int values may be expressions.
type Buffer struct {
	Type string `yaml:"type"`
	Size int    `yaml:"size"`
	Init []Expr `yaml:"init,omitempty"`
}

// Step is one call made by a participant.
type Step struct {
	// Op is the operation; see the Op constants.
	Op string `yaml:"op"`

	// Buf is the send (or only) buffer, Recv the receive buffer of
	// two-buffer collectives.
	Buf  string `yaml:"buf,omitempty"`
	Recv string `yaml:"recv,omitempty"`

	// Count defaults to 1, RecvCount to Count.
	Count     *int `yaml:"count,omitempty"`
	RecvCount *int `yaml:"recv_count,omitempty"`

	// Type and RecvType default to the declared type of their buffer.
	// Setting them differently provokes a type mismatch.
	Type     string `yaml:"type,omitempty"`
	RecvType string `yaml:"recv_type,omitempty"`

	// Peer is the destination of sends, the source of receives ("any" for
	// the wildcard) and the rank waited for by await.
	Peer Expr `yaml:"peer,omitempty"`

	// Tag is the message tag; -1 is the receive wildcard.
	Tag int `yaml:"tag,omitempty"`

	// Root defaults to 0.
	Root Expr `yaml:"root,omitempty"`

	// Reduce is the reduction operator, "sum" or "MPI_SUM" style.
	Reduce string `yaml:"reduce,omitempty"`

	// Comm overrides the communicator token.
	Comm *int `yaml:"comm,omitempty"`
}

// Step operations.
const (
	OpInit      = "init"
	OpFinalize  = "finalize"
	OpBarrier   = "barrier"
	OpSend      = "send"
	OpSsend     = "ssend"
	OpIsend     = "isend"
	OpRecv      = "recv"
	OpBcast     = "bcast"
	OpReduce    = "reduce"
	OpAllreduce = "allreduce"
	OpScatter   = "scatter"
	OpGather    = "gather"
	OpAllgather = "allgather"

	// OpAwait waits until Peer is parked in a blocking call. It orders
	// steps across participants without communicating.
	OpAwait = "await"
)

var knownOps = []string{
	OpInit, OpFinalize, OpBarrier,
	OpSend, OpSsend, OpIsend, OpRecv,
	OpBcast, OpReduce, OpAllreduce, OpScatter, OpGather, OpAllgather,
	OpAwait,
}

// Expect is checked after the World stops.
type Expect struct {
	Buffers []BufferExpect `yaml:"buffers,omitempty"`

	// Diagnostics maps a diagnostic code to the exact number of times it
	// must be reported. When Expect is present, any code not listed must
	// not occur at all.
	Diagnostics map[string]int `yaml:"diagnostics,omitempty"`
}

// BufferExpect pins a prefix of one participant's buffer.
type BufferExpect struct {
	Rank   int    `yaml:"rank"`
	Buf    string `yaml:"buf"`
	Values []Expr `yaml:"values"`
}

// LoadScenario reads, decodes and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes a scenario document. Unknown fields are rejected,
// the document is checked against the CUE schema and then against the
// cross-field rules the schema cannot express.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := CheckSchema(data); err != nil {
		return nil, err
	}

	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// Validate checks the rules the schema cannot express: rank ranges, buffer
// references and per-op required fields. Call it again after changing Procs.
func (s *Scenario) Validate() error {
	if err := validateScenario(s); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}
	return nil
}

// programFor returns the program rank runs, or nil.
func (s *Scenario) programFor(rank int) *Program {
	for i := range s.Programs {
		prog := &s.Programs[i]
		if len(prog.Ranks) == 0 || slices.Contains(prog.Ranks, rank) {
			return prog
		}
	}
	return nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Procs < 1 {
		return fmt.Errorf("procs must be at least 1")
	}
	if len(s.Programs) == 0 {
		return fmt.Errorf("programs list is required and must be non-empty")
	}

	claimed := make(map[int]int)
	for i, prog := range s.Programs {
		for _, r := range prog.Ranks {
			if r < 0 || r >= s.Procs {
				return fmt.Errorf("programs[%d]: rank %d outside 0..%d", i, r, s.Procs-1)
			}
			if j, dup := claimed[r]; dup {
				return fmt.Errorf("programs[%d]: rank %d already assigned by programs[%d]", i, r, j)
			}
			claimed[r] = i
		}
		for name, buf := range prog.Buffers {
			if _, err := mpi.ParseDatatype(buf.Type); err != nil {
				return fmt.Errorf("programs[%d].buffers.%s: %w", i, name, err)
			}
			if len(buf.Init) > buf.Size {
				return fmt.Errorf("programs[%d].buffers.%s: %d init values for size %d", i, name, len(buf.Init), buf.Size)
			}
		}
		for j, step := range prog.Steps {
			if err := validateStep(&step, prog.Buffers); err != nil {
				return fmt.Errorf("programs[%d].steps[%d]: %w", i, j, err)
			}
		}
	}
	for r := 0; r < s.Procs; r++ {
		if s.programFor(r) == nil {
			return fmt.Errorf("rank %d has no program", r)
		}
	}

	if s.Expect != nil {
		for i, be := range s.Expect.Buffers {
			if be.Rank < 0 || be.Rank >= s.Procs {
				return fmt.Errorf("expect.buffers[%d]: rank %d outside 0..%d", i, be.Rank, s.Procs-1)
			}
			if _, ok := s.programFor(be.Rank).Buffers[be.Buf]; !ok {
				return fmt.Errorf("expect.buffers[%d]: rank %d has no buffer %q", i, be.Rank, be.Buf)
			}
		}
		for code := range s.Expect.Diagnostics {
			if !knownCode(code) {
				return fmt.Errorf("expect.diagnostics: unknown code %q", code)
			}
		}
	}
	return nil
}

func validateStep(step *Step, buffers map[string]Buffer) error {
	if !slices.Contains(knownOps, step.Op) {
		return fmt.Errorf("unknown op %q", step.Op)
	}

	need := func(field, name string) error {
		if name == "" {
			return fmt.Errorf("%s requires %s", step.Op, field)
		}
		if _, ok := buffers[name]; !ok {
			return fmt.Errorf("%s: unknown buffer %q", step.Op, name)
		}
		return nil
	}

	switch step.Op {
	case OpSend, OpSsend, OpIsend, OpRecv:
		if step.Peer == "" {
			return fmt.Errorf("%s requires peer", step.Op)
		}
		return need("buf", step.Buf)
	case OpBcast:
		return need("buf", step.Buf)
	case OpReduce, OpAllreduce:
		if _, err := mpi.ParseReduceOp(step.Reduce); err != nil {
			return err
		}
		if err := need("buf", step.Buf); err != nil {
			return err
		}
		return need("recv", step.Recv)
	case OpScatter, OpGather, OpAllgather:
		if err := need("buf", step.Buf); err != nil {
			return err
		}
		return need("recv", step.Recv)
	case OpAwait:
		if step.Peer == "" {
			return fmt.Errorf("await requires peer")
		}
	}
	return nil
}

func knownCode(code string) bool {
	switch mpi.ErrorCode(code) {
	case mpi.ErrCodeState, mpi.ErrCodeTypeMismatch, mpi.ErrCodeCapacity,
		mpi.ErrCodeComm, mpi.ErrCodeUnknownRank, mpi.ErrCodeCollectiveConflict,
		mpi.ErrCodeCollectiveHazard, mpi.ErrCodeDeadlock, mpi.ErrCodeUnsupportedOp,
		mpi.ErrCodeAborted:
		return true
	}
	return false
}
