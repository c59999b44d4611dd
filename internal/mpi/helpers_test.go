package mpi

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/mpisim/internal/testutil"
	"github.com/roach88/mpisim/internal/trace"
)

const testTimeout = 5 * time.Second

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// newTestWorld builds a World that logs nowhere and records every event.
func newTestWorld(t *testing.T, n int, opts ...Option) (*World, *trace.Log) {
	t.Helper()
	log := trace.NewLog()
	opts = append([]Option{WithLogger(quiet), WithRecorder(log)}, opts...)
	w, err := New(n, opts...)
	require.NoError(t, err)
	return w, log
}

// runWorld runs prog to completion, failing the test if it hangs.
func runWorld(t *testing.T, w *World, prog ProgramFunc) error {
	t.Helper()
	var err error
	testutil.Within(t, testTimeout, func() {
		err = w.Run(prog)
	})
	return err
}

// waitUntil parks the calling participant until cond holds for the world
// snapshot. Used to force an interleaving between participants.
func waitUntil(t *testing.T, w *World, cond func([]ProcStatus) bool) {
	if !testutil.WaitFor(testTimeout, func() bool { return cond(w.Snapshot()) }) {
		t.Errorf("condition never held; status:\n%v", w.Snapshot())
	}
}

func blockedFor(rank, peer int) func([]ProcStatus) bool {
	return func(s []ProcStatus) bool { return s[rank].BlockedFor == peer }
}

func inCollective(rank int, kind CollectiveKind) func([]ProcStatus) bool {
	return func(s []ProcStatus) bool { return s[rank].Collective == kind.String() }
}

func pending(rank, n int) func([]ProcStatus) bool {
	return func(s []ProcStatus) bool { return len(s[rank].Messages) == n }
}

func codes(errs []*Error) []ErrorCode {
	out := make([]ErrorCode, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func firedKinds(log *trace.Log) []string {
	var out []string
	for _, e := range log.Filter(trace.KindFired) {
		out = append(out, e.Collective)
	}
	return out
}
