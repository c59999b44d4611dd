package mpi

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Error is a diagnostic reported by the engine.
//
// Diagnostics include:
//   - State violations: an entry point called in the wrong lifecycle state
//   - Type mismatches: declared datatype differs from the buffer's type
//   - Capacity violations: a buffer too small for the requested transfer
//   - Deadlocks: a blocked-for cycle, or a peer parked in a collective
//
// Error includes structured fields so callers can branch on Code rather
// than on the message text.
type Error struct {
	// Code identifies the diagnostic category.
	Code ErrorCode

	// Rank is the participant that triggered the diagnostic, or -1.
	Rank int

	// Message is a human-readable description.
	Message string

	// Caller is the logical call site ("file.go:42 pkg.Func"), if known.
	Caller string

	// Chain holds the status lines of every participant implicated in a
	// deadlock report. Empty for other codes.
	Chain []string
}

// ErrorCode categorizes diagnostics.
type ErrorCode string

const (
	// ErrCodeState indicates an entry point was called in the wrong state.
	ErrCodeState ErrorCode = "STATE_VIOLATION"

	// ErrCodeTypeMismatch indicates a datatype does not match a buffer.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeCapacity indicates a buffer is too short for a transfer.
	ErrCodeCapacity ErrorCode = "CAPACITY_VIOLATION"

	// ErrCodeComm indicates a communicator other than CommWorld was used.
	ErrCodeComm ErrorCode = "COMM_MISMATCH"

	// ErrCodeUnknownRank indicates a peer or root rank outside the World.
	ErrCodeUnknownRank ErrorCode = "UNKNOWN_RANK"

	// ErrCodeCollectiveConflict indicates a different collective is active.
	ErrCodeCollectiveConflict ErrorCode = "COLLECTIVE_CONFLICT"

	// ErrCodeCollectiveHazard indicates a participant tried to enter a
	// collective while another participant is blocked waiting on it.
	ErrCodeCollectiveHazard ErrorCode = "COLLECTIVE_HAZARD"

	// ErrCodeDeadlock indicates parking would never be released.
	ErrCodeDeadlock ErrorCode = "DEADLOCK"

	// ErrCodeUnsupportedOp indicates a reduction the datatype cannot perform.
	ErrCodeUnsupportedOp ErrorCode = "UNSUPPORTED_OP"

	// ErrCodeAborted indicates the World was aborted by a strict-mode
	// diagnostic raised by another participant.
	ErrCodeAborted ErrorCode = "ABORTED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Rank >= 0 {
		return fmt.Sprintf("%s: %s (rank=%d)", e.Code, e.Message, e.Rank)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Report renders the diagnostic the way the console prints it: the caller
// prefix, the message, then one line per chain entry.
func (e *Error) Report() string {
	var b strings.Builder
	if e.Caller != "" {
		b.WriteString(e.Caller)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	for _, line := range e.Chain {
		b.WriteByte('\n')
		b.WriteString(line)
	}
	return b.String()
}

func newError(code ErrorCode, rank int, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Rank:    rank,
		Message: fmt.Sprintf(format, args...),
	}
}

// asError attributes a Conn error to rank. It returns nil for a nil err.
func asError(err error, rank int) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		e = newError(ErrCodeCapacity, rank, "%v", err)
	}
	e.Rank = rank
	return e
}

// CodeOf returns the diagnostic code of err, or "" when err is not an *Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsDeadlock returns true if the error is a deadlock diagnostic.
func IsDeadlock(err error) bool {
	return CodeOf(err) == ErrCodeDeadlock
}

// IsTypeMismatch returns true if the error is a type mismatch diagnostic.
func IsTypeMismatch(err error) bool {
	return CodeOf(err) == ErrCodeTypeMismatch
}

// IsAborted returns true if the error reports a strict-mode abort.
func IsAborted(err error) bool {
	return CodeOf(err) == ErrCodeAborted
}

const enginePkg = "github.com/roach88/mpisim/internal/mpi."

// callSite finds the first stack frame outside the engine, so diagnostics
// point at the workload line that misused the API.
func callSite() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		engine := strings.HasPrefix(f.Function, enginePkg) && !strings.HasSuffix(f.File, "_test.go")
		if !engine && f.Function != "" {
			return fmt.Sprintf("%s:%d %s", shortFile(f.File), f.Line, shortFunc(f.Function))
		}
		if !more {
			return ""
		}
	}
}

func shortFile(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func shortFunc(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}
