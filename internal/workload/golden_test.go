package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGolden_Scenarios(t *testing.T) {
	for _, file := range []string{"ring_pass.yaml", "collectives.yaml", "deadlock.yaml", "strict_abort.yaml", "wildcard.yaml"} {
		t.Run(file, func(t *testing.T) {
			result := runScenario(t, loadTestScenario(t, file))
			AssertGolden(t, result)
		})
	}
}

func TestResult_SnapshotOrdersDiagnostics(t *testing.T) {
	r := NewResult("order")
	r.Diagnostics = []Diagnostic{
		{Code: "DEADLOCK", Rank: 2, Message: "b"},
		{Code: "CAPACITY_VIOLATION", Rank: 2, Message: "a"},
		{Code: "DEADLOCK", Rank: 0, Message: "c"},
	}

	diags := r.Snapshot()["diagnostics"].([]any)
	var ranks []any
	var codes []any
	for _, d := range diags {
		m := d.(map[string]any)
		ranks = append(ranks, m["rank"])
		codes = append(codes, m["code"])
	}
	assert.Equal(t, []any{0, 2, 2}, ranks)
	assert.Equal(t, []any{"DEADLOCK", "CAPACITY_VIOLATION", "DEADLOCK"}, codes)
	// The result itself keeps report order.
	assert.Equal(t, 2, r.Diagnostics[0].Rank)
}
