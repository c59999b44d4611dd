package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell/v2"
	"github.com/spf13/cobra"

	"github.com/roach88/mpisim/internal/mpi"
	"github.com/roach88/mpisim/internal/workload"
)

// ConsoleOptions holds flags for the console command.
type ConsoleOptions struct {
	*RootOptions
	Procs    int
	Workload string
	Strict   bool
}

// NewConsoleCommand creates the console command.
func NewConsoleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConsoleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Run a world interactively",
		Long: `Start a world in the background and inspect it from a shell.

Without --procs the console asks how many processes to create.

Commands:
  status  print where every process is and what it is waiting for
  wait    block until every process has returned, then list diagnostics
  debug   log at debug level
  info    log at info level
  exit    leave the console`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Procs, "procs", "n", 0, "number of processes (asked for when 0)")
	cmd.Flags().StringVarP(&opts.Workload, "workload", "w", "sample", "built-in workload ("+strings.Join(workload.Names(), ", ")+")")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "abort the world on the first diagnostic")

	return cmd
}

func runConsole(opts *ConsoleOptions, cmd *cobra.Command) error {
	shell := ishell.New()
	shell.Println("mpisim console")

	procs := opts.Procs
	for procs < 1 {
		shell.Print("How many processes? ")
		n, err := strconv.Atoi(strings.TrimSpace(shell.ReadLine()))
		if err != nil || n < 1 {
			shell.Println("Enter a positive number.")
			continue
		}
		procs = n
	}

	level := new(slog.LevelVar)
	if opts.Verbose {
		level.Set(slog.LevelDebug)
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose, level)

	sess, err := newSession(procs, opts.Workload, opts.Strict, shellWriter{shell}, logger, level)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start world", err)
	}
	shell.Printf("Started %d processes running %s.\n", procs, opts.Workload)

	shell.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "print process status",
		Func: func(c *ishell.Context) {
			if err := sess.status(contextWriter{c}); err != nil {
				c.Err(err)
			}
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "wait",
		Help: "wait for every process to return",
		Func: func(c *ishell.Context) {
			if err := sess.wait(cmd.Context(), contextWriter{c}); err != nil {
				c.Err(err)
			}
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "debug",
		Help: "set log level to debug",
		Func: func(c *ishell.Context) {
			sess.setLevel(slog.LevelDebug)
			c.Println("log level: debug")
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "info",
		Help: "set log level to info",
		Func: func(c *ishell.Context) {
			sess.setLevel(slog.LevelInfo)
			c.Println("log level: info")
		},
	})

	shell.Run()
	return nil
}

// session is one world driven from the console.
type session struct {
	world    *mpi.World
	workload string
	level    *slog.LevelVar
}

func newSession(procs int, name string, strict bool, out io.Writer, logger *slog.Logger, level *slog.LevelVar) (*session, error) {
	prog, err := workload.Lookup(name, workload.Env{Out: out, Logger: logger})
	if err != nil {
		return nil, err
	}
	world, err := mpi.New(procs, mpi.WithStrict(strict), mpi.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := world.Start(prog); err != nil {
		return nil, err
	}
	return &session{world: world, workload: name, level: level}, nil
}

func (s *session) finished() bool {
	select {
	case <-s.world.Done():
		return true
	default:
		return false
	}
}

func (s *session) status(w io.Writer) error {
	if err := s.world.WriteStatus(w); err != nil {
		return err
	}
	if active := s.world.ActiveCollective(); active != "" {
		fmt.Fprintf(w, "active collective: %s\n", active)
	}
	fmt.Fprintf(w, "diagnostics: %d\n", len(s.world.Diagnostics()))
	if s.finished() {
		fmt.Fprintln(w, "all processes have returned")
	}
	return nil
}

func (s *session) wait(ctx context.Context, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-s.world.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	waitErr := s.world.Wait()
	diags := s.world.Diagnostics()
	for _, d := range diags {
		fmt.Fprintln(w, d.Report())
	}
	fmt.Fprintf(w, "%s finished with %d diagnostics\n", s.workload, len(diags))

	var diag *mpi.Error
	if waitErr != nil && !errors.As(waitErr, &diag) {
		return waitErr
	}
	return nil
}

func (s *session) setLevel(l slog.Level) {
	s.level.Set(l)
}

// shellWriter and contextWriter route program output through ishell so it
// does not garble the prompt.
type shellWriter struct{ shell *ishell.Shell }

func (w shellWriter) Write(b []byte) (int, error) {
	w.shell.Print(string(b))
	return len(b), nil
}

type contextWriter struct{ c *ishell.Context }

func (w contextWriter) Write(b []byte) (int, error) {
	w.c.Print(string(b))
	return len(b), nil
}
