// Package workload holds the programs participants run inside a World.
//
// Two kinds of workload exist:
//
//   - Built-in programs, registered by name and written directly against the
//     mpi API (sample, ring, idle).
//   - Scenarios: YAML documents listing per-rank steps together with the
//     expected final buffers and diagnostics. A scenario is checked against
//     an embedded CUE schema, then executed by Run, which returns a Result.
//
// Scenario example:
//
//	name: ring-pass
//	procs: 2
//	programs:
//	  - ranks: [0]
//	    buffers:
//	      a: {type: int, size: 1, init: [41]}
//	    steps:
//	      - op: init
//	      - {op: send, buf: a, peer: 1}
//	      - op: finalize
//	  - ranks: [1]
//	    buffers:
//	      a: {type: int, size: 1}
//	    steps:
//	      - op: init
//	      - {op: recv, buf: a, peer: 0}
//	      - op: finalize
//	expect:
//	  buffers:
//	    - {rank: 1, buf: a, values: [41]}
//
// Integer fields that depend on the executing rank (peer, root, init and
// expected values of int buffers) accept small expressions such as
// "rank+1", "size-1" or "rank+1%size". See Eval.
package workload
