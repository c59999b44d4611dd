package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mpisim/internal/mpi"
	"github.com/roach88/mpisim/internal/store"
	"github.com/roach88/mpisim/internal/testutil"
	"github.com/roach88/mpisim/internal/trace"
)

const cmdTimeout = 10 * time.Second

func scenarioPath(name string) string {
	return filepath.Join("..", "workload", "testdata", "scenarios", name)
}

// executeRun runs the run command and returns stdout, stderr and the error.
func executeRun(t *testing.T, format string, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: format})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)

	var err error
	testutil.Within(t, cmdTimeout, func() {
		err = cmd.Execute()
	})
	return out.String(), errOut.String(), err
}

func TestRunIdleWorkload(t *testing.T) {
	stdout, _, err := executeRun(t, "text", "--procs", "2", "--workload", "idle")
	require.NoError(t, err)
	assert.Contains(t, stdout, "idle: ok (2 processes)")
}

func TestRunSampleWorkload(t *testing.T) {
	stdout, _, err := executeRun(t, "text", "--procs", "4")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Node 3 received 950")
	assert.Contains(t, stdout, "Allgather for 0 returned [0 1 2 3]")
	assert.Contains(t, stdout, "sample: ok (4 processes)")
}

func TestRunSampleWorkloadJSON(t *testing.T) {
	stdout, stderr, err := executeRun(t, "json", "--procs", "3")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), "stdout must hold only the JSON document")
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sample", data["workload"])
	assert.Equal(t, float64(3), data["procs"])
	assert.Equal(t, "ok", data["status"])

	// Program output moves to stderr in JSON mode.
	assert.Contains(t, stderr, "Allreduce for 0 returned")
}

func TestRunUnknownWorkload(t *testing.T) {
	stdout, _, err := executeRun(t, "text", "--workload", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, ErrCodeNotFound)
	assert.Contains(t, stdout, "ring")
}

func TestRunInvalidProcs(t *testing.T) {
	_, _, err := executeRun(t, "text", "--procs", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunViewsLogsFrames(t *testing.T) {
	_, stderr, err := executeRun(t, "text", "--procs", "2", "--views")
	require.NoError(t, err)
	assert.Contains(t, stderr, "msg=frame")
	assert.Contains(t, stderr, "Hi")
}

func TestRunRecordsToDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	stdout, _, err := executeRun(t, "text", "--procs", "3", "--workload", "ring", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "ring: ok (3 processes) run ")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	runs, err := st.ReadRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "ring", runs[0].Workload)
	assert.Equal(t, 3, runs[0].Procs)
	assert.Equal(t, store.StatusOK, runs[0].Status)
	assert.Contains(t, stdout, runs[0].ID)

	stopped, err := st.ReadEvents(ctx, runs[0].ID, trace.KindStopped)
	require.NoError(t, err)
	assert.Len(t, stopped, 3)
}

func TestRunScenario(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		args     []string
		wantCode int
		want     []string
	}{
		{
			name: "passing ring",
			file: "ring_pass.yaml",
			want: []string{"PASS ring-pass (3 processes)"},
		},
		{
			name: "expected deadlock",
			file: "deadlock.yaml",
			want: []string{"PASS deadlock (2 processes)", "[DEADLOCK] rank 1"},
		},
		{
			name:     "strict flag overrides the file",
			file:     "deadlock.yaml",
			args:     []string{"--strict"},
			wantCode: ExitFailure,
			want:     []string{"FAIL deadlock", "✗ rank 0 buffer x"},
		},
		{
			name:     "procs flag revalidates",
			file:     "ring_pass.yaml",
			args:     []string{"--procs", "2"},
			wantCode: ExitFailure,
			want:     []string{ErrCodeInvalid, "rank 2 outside 0..1"},
		},
		{
			name:     "schema violation",
			file:     "bad_schema.yaml",
			wantCode: ExitFailure,
			want:     []string{ErrCodeInvalid},
		},
		{
			name:     "missing file",
			file:     "missing.yaml",
			wantCode: ExitCommandError,
			want:     []string{ErrCodeNotFound},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{scenarioPath(tt.file)}, tt.args...)
			stdout, _, err := executeRun(t, "text", args...)
			assert.Equal(t, tt.wantCode, GetExitCode(err))
			for _, w := range tt.want {
				assert.Contains(t, stdout, w)
			}
		})
	}
}

func TestRunScenarioJSON(t *testing.T) {
	stdout, _, err := executeRun(t, "json", scenarioPath("collectives.yaml"))
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["pass"])
}

func TestRunScenarioRecordsAbort(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	stdout, _, err := executeRun(t, "text", scenarioPath("strict_abort.yaml"), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "PASS strict-abort")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ReadRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "scenario:strict-abort", runs[0].Workload)
	assert.True(t, runs[0].Strict)
	assert.Equal(t, store.StatusAborted, runs[0].Status)
	require.Len(t, runs[0].Diagnostics, 1)
	assert.Equal(t, string(mpi.ErrCodeTypeMismatch), runs[0].Diagnostics[0].Code)
}

func TestRunStatus(t *testing.T) {
	diag := &mpi.Error{Code: mpi.ErrCodeDeadlock, Rank: 1, Message: "deadlock"}

	tests := []struct {
		name   string
		err    error
		diags  int
		strict bool
		want   store.RunStatus
	}{
		{"clean", nil, 0, false, store.StatusOK},
		{"diagnostics", nil, 2, false, store.StatusDiagnostics},
		{"strict abort", diag, 1, true, store.StatusAborted},
		{"program error", errors.New("boom"), 0, false, store.StatusFailed},
		{"program error in strict world", errors.New("boom"), 0, true, store.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runStatus(tt.err, tt.diags, tt.strict))
		})
	}
}

func TestStatusErrCode(t *testing.T) {
	assert.Equal(t, ErrCodeDiagnostics, statusErrCode(store.StatusDiagnostics))
	assert.Equal(t, ErrCodeAborted, statusErrCode(store.StatusAborted))
	assert.Equal(t, ErrCodeGeneric, statusErrCode(store.StatusFailed))
}

func TestReportSummaryDiagnostics(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}
	summary := RunSummary{
		Workload: "sample",
		Procs:    2,
		Status:   store.StatusDiagnostics,
		Diagnostics: []store.Diagnostic{
			{Code: "CAPACITY", Rank: 1, Message: "receive buffer too small"},
		},
	}

	err := reportSummary(formatter, summary)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "sample: diagnostics (2 processes)")
	assert.Contains(t, buf.String(), "[CAPACITY] rank 1: receive buffer too small")
}
