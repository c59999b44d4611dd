package mpi

import (
	"fmt"
	"strings"
)

// Comm is a communicator token. Only CommWorld exists.
type Comm int

// CommWorld is the communicator spanning every participant of the World.
const CommWorld Comm = 82736154

// Wildcards accepted by Recv.
const (
	AnySource = -1
	AnyTag    = -1
)

// Datatype is the declared element type of a buffer.
type Datatype int

const (
	// Int is a signed integer element ([]int).
	Int Datatype = iota + 1
	// Double is a double precision element ([]float64).
	Double
	// String is a text element ([]string).
	String
)

func (d Datatype) String() string {
	switch d {
	case Int:
		return "MPI_INT"
	case Double:
		return "MPI_DOUBLE"
	case String:
		return "MPI_STRING"
	}
	return "UNKNOWN_DATATYPE"
}

// ParseDatatype maps the short names used in scenario files ("int",
// "double", "string") and the MPI names to a Datatype.
func ParseDatatype(s string) (Datatype, error) {
	switch s {
	case "int", "MPI_INT":
		return Int, nil
	case "double", "MPI_DOUBLE":
		return Double, nil
	case "string", "MPI_STRING":
		return String, nil
	}
	return 0, fmt.Errorf("unknown datatype %q", s)
}

// ReduceOp is a reduction operator.
type ReduceOp int

const (
	Max ReduceOp = iota + 1
	Min
	Sum
	Prod
	LAnd
	LOr
	BAnd
	BOr
	MaxLoc
	MinLoc
)

var reduceOpNames = map[ReduceOp]string{
	Max:    "MPI_MAX",
	Min:    "MPI_MIN",
	Sum:    "MPI_SUM",
	Prod:   "MPI_PROD",
	LAnd:   "MPI_LAND",
	LOr:    "MPI_LOR",
	BAnd:   "MPI_BAND",
	BOr:    "MPI_BOR",
	MaxLoc: "MPI_MAXLOC",
	MinLoc: "MPI_MINLOC",
}

func (op ReduceOp) String() string {
	if name, ok := reduceOpNames[op]; ok {
		return name
	}
	return "UNKNOWN_OP"
}

// ParseReduceOp accepts both "sum" and "MPI_SUM" spellings.
func ParseReduceOp(s string) (ReduceOp, error) {
	for op, name := range reduceOpNames {
		if s == name || "MPI_"+strings.ToUpper(s) == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown reduce op %q", s)
}

func (op ReduceOp) tracksLocation() bool {
	return op == MaxLoc || op == MinLoc
}

// State is the lifecycle state of a participant.
type State int

const (
	Initialized State = iota
	Started
	Running
	Blocked
	Finalized
	Stopped
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "INITIALIZED"
	case Started:
		return "STARTED"
	case Running:
		return "RUNNING"
	case Blocked:
		return "BLOCKED"
	case Finalized:
		return "FINALIZED"
	case Stopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

// CollectiveKind identifies the group operation a collective performs.
type CollectiveKind int

const (
	CollInit CollectiveKind = iota + 1
	CollFinalize
	CollBarrier
	CollBcast
	CollReduce
	CollScatter
	CollGather
	CollReduceAll
	CollGatherAll
)

func (k CollectiveKind) String() string {
	switch k {
	case CollInit:
		return "INIT"
	case CollFinalize:
		return "FINALIZE"
	case CollBarrier:
		return "BARRIER"
	case CollBcast:
		return "BCAST"
	case CollReduce:
		return "REDUCE"
	case CollScatter:
		return "SCATTER"
	case CollGather:
		return "GATHER"
	case CollReduceAll:
		return "REDUCEALL"
	case CollGatherAll:
		return "GATHERALL"
	}
	return "UNKNOWN"
}

// Status receives the resolved envelope of a completed Recv.
type Status struct {
	Source int
	Tag    int
	Count  int
}
