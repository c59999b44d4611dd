package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/mpisim/internal/mpi"
	"github.com/roach88/mpisim/internal/store"
	"github.com/roach88/mpisim/internal/workload"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Procs    int
	Workload string
	Strict   bool
	Database string
	Views    bool
}

// RunSummary is the outcome of a built-in workload run.
type RunSummary struct {
	RunID       string             `json:"run_id,omitempty"`
	Workload    string             `json:"workload"`
	Procs       int                `json:"procs"`
	Strict      bool               `json:"strict"`
	Status      store.RunStatus    `json:"status"`
	Error       string             `json:"error,omitempty"`
	Diagnostics []store.Diagnostic `json:"diagnostics"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [scenario.yaml]",
		Short: "Run a world of simulated MPI processes",
		Long: `Run a built-in workload, or a scenario file, in a simulated MPI world.

Every diagnostic the world reports is listed once all processes have
returned. With --strict the first diagnostic stops the whole world.
With --db the run and its coordination events are stored for "mpisim trace".

Exit codes:
  0 - world finished without diagnostics (or scenario expectations held)
  1 - diagnostics reported, expectations failed, or world aborted
  2 - command error (bad flags, unknown workload, unreadable file)

Examples:
  mpisim run --procs 4
  mpisim run --workload ring --procs 8 --db ./runs.db
  mpisim run ./scenarios/deadlock.yaml --strict`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runScenario(opts, args[0], cmd)
			}
			return runWorkload(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Procs, "procs", "n", 4, "number of processes")
	cmd.Flags().StringVarP(&opts.Workload, "workload", "w", "sample", "built-in workload ("+strings.Join(workload.Names(), ", ")+")")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "abort the world on the first diagnostic")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to record the run in")
	cmd.Flags().BoolVar(&opts.Views, "views", false, "log the frames processes draw")

	return cmd
}

func runWorkload(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose, nil)

	if opts.Procs < 1 {
		_ = formatter.Error(ErrCodeGeneric, "--procs must be at least 1", nil)
		return NewExitError(ExitCommandError, "--procs must be at least 1")
	}

	// Program output would corrupt the JSON document.
	var progOut io.Writer = cmd.OutOrStdout()
	if formatter.JSON() {
		progOut = cmd.ErrOrStderr()
	}
	prog, err := workload.Lookup(opts.Workload, workload.Env{Out: progOut, Logger: logger})
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to select workload", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	rec, err := startRecording(ctx, opts.Database, opts.Workload, opts.Procs, opts.Strict, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer rec.close()

	world, err := mpi.New(opts.Procs, worldOptions(opts, logger, rec)...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create world", err)
	}

	logger.Debug("running workload", "workload", opts.Workload)
	if err := world.Start(prog); err != nil {
		return WrapExitError(ExitFailure, "failed to start world", err)
	}

	select {
	case <-world.Done():
	case <-ctx.Done():
		return interrupted(world, rec, cmd.ErrOrStderr())
	}
	waitErr := world.Wait()

	summary := RunSummary{
		Workload:    opts.Workload,
		Procs:       opts.Procs,
		Strict:      world.Strict(),
		Diagnostics: storeDiagnostics(world.Diagnostics()),
		Status:      runStatus(waitErr, len(world.Diagnostics()), world.Strict()),
	}
	if waitErr != nil {
		summary.Error = waitErr.Error()
	}
	summary.RunID = rec.finish(ctx, summary.Status, summary.Error, summary.Diagnostics)

	return reportSummary(formatter, summary)
}

func reportSummary(formatter *OutputFormatter, summary RunSummary) error {
	if summary.Status == store.StatusOK {
		if formatter.JSON() {
			return formatter.Success(summary)
		}
		fmt.Fprintf(formatter.Writer, "%s: %s (%d processes)%s\n", summary.Workload, summary.Status, summary.Procs, runIDSuffix(summary.RunID))
		return nil
	}

	msg := fmt.Sprintf("run finished with status %s", summary.Status)
	if formatter.JSON() {
		_ = formatter.Failure(statusErrCode(summary.Status), msg, summary)
		return NewExitError(ExitFailure, msg)
	}

	fmt.Fprintf(formatter.Writer, "%s: %s (%d processes)%s\n", summary.Workload, summary.Status, summary.Procs, runIDSuffix(summary.RunID))
	for _, d := range summary.Diagnostics {
		fmt.Fprintf(formatter.Writer, "  [%s] rank %d: %s\n", d.Code, d.Rank, d.Message)
	}
	if summary.Error != "" && summary.Status == store.StatusFailed {
		fmt.Fprintf(formatter.Writer, "  error: %s\n", summary.Error)
	}
	return NewExitError(ExitFailure, msg)
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose, nil)

	s, err := workload.LoadScenario(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to load scenario", err)
		}
		_ = formatter.Error(ErrCodeInvalid, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid scenario", err)
	}

	// Flags override the file only when given explicitly.
	if cmd.Flags().Changed("procs") {
		s.Procs = opts.Procs
		if err := s.Validate(); err != nil {
			_ = formatter.Error(ErrCodeInvalid, err.Error(), nil)
			return WrapExitError(ExitFailure, "invalid scenario", err)
		}
	}
	strict := s.Strict
	if cmd.Flags().Changed("strict") {
		strict = opts.Strict
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	rec, err := startRecording(ctx, opts.Database, "scenario:"+s.Name, s.Procs, strict, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer rec.close()

	runner := &workload.Runner{
		Logger:  logger,
		Options: append(worldOptions(opts, logger, rec), mpi.WithStrict(strict)),
	}
	result, err := runner.Run(ctx, s)
	if err != nil {
		rec.finish(context.Background(), store.StatusFailed, err.Error(), nil)
		if ctx.Err() != nil {
			return WrapExitError(ExitFailure, "interrupted", err)
		}
		return WrapExitError(ExitFailure, "scenario failed to run", err)
	}

	diags := make([]store.Diagnostic, len(result.Diagnostics))
	for i, d := range result.Diagnostics {
		diags[i] = store.Diagnostic{Code: d.Code, Rank: d.Rank, Message: d.Message}
	}
	status := store.StatusOK
	switch {
	case result.Err != "" && strict && len(diags) > 0:
		status = store.StatusAborted
	case result.Err != "":
		status = store.StatusFailed
	case len(diags) > 0:
		status = store.StatusDiagnostics
	}
	if id := rec.finish(ctx, status, result.Err, diags); id != "" {
		logger.Info("run recorded", "run", id)
	}

	if formatter.JSON() {
		if result.Pass {
			return formatter.Success(result)
		}
		_ = formatter.Failure(ErrCodeExpectation, "scenario expectations failed", result)
		return NewExitError(ExitFailure, "scenario expectations failed")
	}

	verdict := "PASS"
	if !result.Pass {
		verdict = "FAIL"
	}
	fmt.Fprintf(formatter.Writer, "%s %s (%d processes)\n", verdict, result.Name, result.Procs)
	for _, d := range result.Diagnostics {
		fmt.Fprintf(formatter.Writer, "  [%s] rank %d: %s\n", d.Code, d.Rank, d.Message)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(formatter.Writer, "  ✗ %s\n", e)
	}
	if !result.Pass {
		return NewExitError(ExitFailure, "scenario expectations failed")
	}
	return nil
}

func worldOptions(opts *RunOptions, logger *slog.Logger, rec *recording) []mpi.Option {
	worldOpts := []mpi.Option{mpi.WithStrict(opts.Strict), mpi.WithLogger(logger)}
	if rec != nil {
		worldOpts = append(worldOpts, mpi.WithRecorder(rec.events))
	}
	if opts.Views {
		worldOpts = append(worldOpts, mpi.WithViewSink(frameLogger(logger)))
	}
	return worldOpts
}

// frameLogger logs every completed scene.
func frameLogger(logger *slog.Logger) mpi.ViewSink {
	return mpi.ViewSinkFunc(func(f mpi.Frame) {
		prims := make([]string, len(f.Primitives))
		for i, p := range f.Primitives {
			prims[i] = p.String()
		}
		logger.Info("frame", "rank", f.Rank, "seq", f.Seq, "bounds", f.Bounds.String(), "primitives", prims)
	})
}

// signalContext is cancelled on SIGINT/SIGTERM or when the command's own
// context is.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	return signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
}

// interrupted prints where every process is parked so a hung world can be
// diagnosed, then records the run as failed.
func interrupted(world *mpi.World, rec *recording, errOut io.Writer) error {
	fmt.Fprintln(errOut, "interrupted; process status:")
	_ = world.WriteStatus(errOut)
	if active := world.ActiveCollective(); active != "" {
		fmt.Fprintf(errOut, "active collective: %s\n", active)
	}
	rec.finish(context.Background(), store.StatusFailed, "interrupted", storeDiagnostics(world.Diagnostics()))
	return NewExitError(ExitFailure, "interrupted")
}

func runStatus(waitErr error, diagnostics int, strict bool) store.RunStatus {
	var diag *mpi.Error
	switch {
	case waitErr != nil && strict && errors.As(waitErr, &diag):
		return store.StatusAborted
	case waitErr != nil:
		return store.StatusFailed
	case diagnostics > 0:
		return store.StatusDiagnostics
	}
	return store.StatusOK
}

func statusErrCode(status store.RunStatus) string {
	switch status {
	case store.StatusDiagnostics:
		return ErrCodeDiagnostics
	case store.StatusAborted:
		return ErrCodeAborted
	}
	return ErrCodeGeneric
}

func storeDiagnostics(errs []*mpi.Error) []store.Diagnostic {
	diags := make([]store.Diagnostic, len(errs))
	for i, e := range errs {
		diags[i] = store.Diagnostic{Code: string(e.Code), Rank: e.Rank, Message: e.Message}
	}
	return diags
}

func runIDSuffix(id string) string {
	if id == "" {
		return ""
	}
	return " run " + id
}

// recording persists one run. A nil *recording records nothing, so callers
// need not check whether --db was given.
type recording struct {
	store  *store.Store
	run    store.Run
	events *store.EventLog
	logger *slog.Logger
}

func startRecording(ctx context.Context, path, name string, procs int, strict bool, logger *slog.Logger) (*recording, error) {
	if path == "" {
		return nil, nil
	}
	logger.Debug("opening database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	rec := &recording{
		store: st,
		run: store.Run{
			ID:       store.NewRunID(),
			Workload: name,
			Procs:    procs,
			Strict:   strict,
			Status:   store.StatusRunning,
		},
		logger: logger,
	}
	rec.events = st.NewEventLog(rec.run.ID)
	if err := st.WriteRun(ctx, rec.run); err != nil {
		_ = st.Close()
		return nil, err
	}
	return rec, nil
}

// finish stores the events and the final status. It returns the run ID.
func (r *recording) finish(ctx context.Context, status store.RunStatus, errMsg string, diags []store.Diagnostic) string {
	if r == nil {
		return ""
	}
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := r.events.Flush(ctx); err != nil {
		r.logger.Error("failed to store events", "run", r.run.ID, "error", err)
	}
	r.run.Status = status
	r.run.Error = errMsg
	r.run.Diagnostics = diags
	if err := r.store.WriteRun(ctx, r.run); err != nil {
		r.logger.Error("failed to store run", "run", r.run.ID, "error", err)
	}
	r.logger.Debug("run recorded", "run", r.run.ID, "events", r.events.Len(), "status", status)
	return r.run.ID
}

func (r *recording) close() {
	if r == nil {
		return
	}
	if err := r.store.Close(); err != nil {
		r.logger.Error("error closing database", "error", err)
	}
}
