// Package mpi implements an in-process simulator of an MPI-style message
// passing runtime.
//
// A World owns a fixed set of participants (Proc), one goroutine each. The
// participants coordinate only through the entry points on Proc: blocking and
// non-blocking point-to-point Send/Recv, and the group collectives Init,
// Finalize, Barrier, Bcast, Reduce, Allreduce, Scatter, Gather and Allgather.
//
// ARCHITECTURE:
//
// Single Monitor:
// All coordination state (pending message lists, blocked-for links, the active
// collective) lives behind one mutex owned by the World, paired with one
// condition variable. Every state change that could release a waiter wakes all
// waiters (Broadcast), and each waiter re-checks its own predicate in a loop.
// There are no per-waiter conditions and no timeouts.
//
// Rendezvous:
// A Send or Recv that finds no matching pending message pushes a new one onto
// the destination's list (newest first) and parks until the other side fills
// in its Data Connection and performs the transfer. Matching scans from the
// head, so the most recently posted compatible message wins.
//
// Collectives:
// At most one collective is active at a time. Each participant joins it; the
// last joiner detaches it from the World, runs its data movement on its own
// goroutine while still holding the lock, and wakes everybody.
//
// Deadlock Detection:
// Before parking on a peer the engine walks the blocked-for chain starting at
// that peer. A chain leading back to the caller is a cycle; it is reported,
// with every implicated participant's state and pending messages, and the call
// fails instead of parking forever.
//
// DIAGNOSTICS:
//
// Misuse is reported through a single Reporter and execution continues (the
// call returns the reported *Error). WithStrict turns the first diagnostic
// into an abort of the whole World.
package mpi
