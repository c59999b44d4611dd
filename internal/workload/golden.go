package workload

import (
	"sort"
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/mpisim/internal/trace"
)

// Snapshot renders the deterministic part of r as a canonical JSON value.
// Diagnostics are ordered by rank, then code, then message, since
// participants report concurrently.
func (r *Result) Snapshot() map[string]any {
	diags := make([]Diagnostic, len(r.Diagnostics))
	copy(diags, r.Diagnostics)
	sort.Slice(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})
	diagList := make([]any, len(diags))
	for i, d := range diags {
		diagList[i] = map[string]any{"code": d.Code, "rank": d.Rank, "message": d.Message}
	}

	errs := make([]any, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}

	buffers := make(map[string]any, len(r.Buffers))
	for rank, bufs := range r.Buffers {
		named := make(map[string]any, len(bufs))
		for name, b := range bufs {
			named[name] = b
		}
		buffers[strconv.Itoa(rank)] = named
	}

	snap := map[string]any{
		"name":        r.Name,
		"procs":       r.Procs,
		"strict":      r.Strict,
		"pass":        r.Pass,
		"errors":      errs,
		"diagnostics": diagList,
		"buffers":     buffers,
	}
	if r.Err != "" {
		snap["error"] = r.Err
	}
	return snap
}

// AssertGolden compares r's snapshot against testdata/golden/{r.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/workload -update
func AssertGolden(t *testing.T, r *Result) {
	t.Helper()

	data, err := trace.MarshalCanonical(r.Snapshot())
	if err != nil {
		t.Fatalf("snapshot of %s: %v", r.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, r.Name, data)
}
