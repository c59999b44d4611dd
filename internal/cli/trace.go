package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/mpisim/internal/store"
	"github.com/roach88/mpisim/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Kinds    []string // optional - filter to specific event kinds
}

// RunInfo is a stored run as the trace command reports it.
type RunInfo struct {
	ID          string             `json:"id"`
	Workload    string             `json:"workload"`
	Procs       int                `json:"procs"`
	Strict      bool               `json:"strict"`
	Status      store.RunStatus    `json:"status"`
	Error       string             `json:"error,omitempty"`
	Diagnostics []store.Diagnostic `json:"diagnostics,omitempty"`
}

// TraceResult holds one run and its events.
type TraceResult struct {
	Run    RunInfo       `json:"run"`
	Events []trace.Event `json:"events"`
}

var knownKinds = []trace.Kind{
	trace.KindPosted, trace.KindMatched, trace.KindJoined,
	trace.KindFired, trace.KindDiagnostic, trace.KindStopped,
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "List recorded runs or print a run's events",
		Long: `Read runs recorded with "mpisim run --db".

Without a run ID, lists every recorded run oldest first. With one (any
unambiguous prefix), prints the run's coordination events in order:
posted and matched messages, collective joins and firings, diagnostics,
and processes returning.

Examples:
  mpisim trace --db ./runs.db
  mpisim trace --db ./runs.db 0192a4
  mpisim trace --db ./runs.db 0192a4 --kind diagnostic --kind fired
  mpisim trace --db ./runs.db 0192a4 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListRuns(opts, cmd)
			}
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "only show events of this kind (repeatable)")

	return cmd
}

func openTraceStore(opts *TraceOptions, formatter *OutputFormatter) (*store.Store, error) {
	// store.Open creates missing databases; a trace of nothing is a typo.
	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runListRuns(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := context.Background()

	st, err := openTraceStore(opts, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ReadRuns(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read runs", err)
	}

	infos := make([]RunInfo, len(runs))
	for i, r := range runs {
		infos[i] = runInfo(r)
	}
	if formatter.JSON() {
		return formatter.Success(infos)
	}

	if len(infos) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}
	for _, r := range infos {
		fmt.Fprintf(formatter.Writer, "%s  %-12s %-16s procs=%d", r.ID, r.Status, r.Workload, r.Procs)
		if r.Strict {
			fmt.Fprint(formatter.Writer, " strict")
		}
		if n := len(r.Diagnostics); n > 0 {
			fmt.Fprintf(formatter.Writer, " diagnostics=%d", n)
		}
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}

func runTrace(opts *TraceOptions, prefix string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := context.Background()

	kinds, err := parseKinds(opts.Kinds)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --kind", err)
	}

	st, err := openTraceStore(opts, formatter)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.FindRun(ctx, prefix)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "run not found", err)
		}
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to find run", err)
	}
	formatter.VerboseLog("Resolved %s to run %s", prefix, run.ID)

	events, err := st.ReadEvents(ctx, run.ID, kinds...)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read events", err)
	}

	result := TraceResult{Run: runInfo(run), Events: events}
	if formatter.JSON() {
		return formatter.Success(result)
	}

	info := result.Run
	fmt.Fprintf(formatter.Writer, "Run %s\n", info.ID)
	fmt.Fprintf(formatter.Writer, "  workload: %s\n", info.Workload)
	fmt.Fprintf(formatter.Writer, "  procs:    %d\n", info.Procs)
	fmt.Fprintf(formatter.Writer, "  strict:   %t\n", info.Strict)
	fmt.Fprintf(formatter.Writer, "  status:   %s\n", info.Status)
	if info.Error != "" {
		fmt.Fprintf(formatter.Writer, "  error:    %s\n", info.Error)
	}
	fmt.Fprintf(formatter.Writer, "\nEvents (%d):\n", len(events))
	for _, e := range events {
		fmt.Fprintf(formatter.Writer, "  %s\n", e)
	}
	return nil
}

func parseKinds(names []string) ([]trace.Kind, error) {
	kinds := make([]trace.Kind, 0, len(names))
	for _, name := range names {
		k := trace.Kind(name)
		if !slices.Contains(knownKinds, k) {
			return nil, fmt.Errorf("unknown event kind %q (want one of %v)", name, knownKinds)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func runInfo(r store.Run) RunInfo {
	return RunInfo{
		ID:          r.ID,
		Workload:    r.Workload,
		Procs:       r.Procs,
		Strict:      r.Strict,
		Status:      r.Status,
		Error:       r.Error,
		Diagnostics: r.Diagnostics,
	}
}
