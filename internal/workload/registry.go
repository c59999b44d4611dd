package workload

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/roach88/mpisim/internal/mpi"
)

// Env is what a built-in program may use besides the mpi API.
type Env struct {
	// Out receives the program's printed lines. Writes are serialized, so
	// participants may print concurrently.
	Out io.Writer

	Logger *slog.Logger
}

// Factory builds a program bound to env.
type Factory func(env Env) mpi.Program

var builtins = map[string]Factory{
	"sample": Sample,
	"ring":   Ring,
	"idle":   Idle,
}

// Names lists the built-in programs in alphabetical order.
func Names() []string {
	names := maps.Keys(builtins)
	sort.Strings(names)
	return names
}

// Lookup returns the named built-in program bound to env. A nil Out discards
// output and a nil Logger uses slog.Default().
func Lookup(name string, env Env) (mpi.Program, error) {
	factory, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown workload %q (available: %v)", name, Names())
	}
	if env.Out == nil {
		env.Out = io.Discard
	}
	env.Out = &syncWriter{w: env.Out}
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	return factory(env), nil
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(b)
}
