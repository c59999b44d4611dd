package workload

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mpisim/internal/mpi"
	"github.com/roach88/mpisim/internal/testutil"
	"github.com/roach88/mpisim/internal/trace"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"idle", "ring", "sample"}, Names())
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("nope", Env{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown workload "nope"`)
	assert.Contains(t, err.Error(), "sample")
}

// runBuiltin runs the named program in a quiet World of n participants and
// returns its printed lines, sorted, along with the World.
func runBuiltin(t *testing.T, name string, n int, opts ...mpi.Option) ([]string, *mpi.World) {
	t.Helper()
	var out bytes.Buffer
	prog, err := Lookup(name, Env{Out: &out, Logger: quiet})
	require.NoError(t, err)

	w, err := mpi.New(n, append([]mpi.Option{mpi.WithLogger(quiet)}, opts...)...)
	require.NoError(t, err)
	var runErr error
	testutil.Within(t, testTimeout, func() {
		runErr = w.Run(prog)
	})
	require.NoError(t, runErr)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	sort.Strings(lines)
	return lines, w
}

func TestSample_FourRanks(t *testing.T) {
	var (
		mu     sync.Mutex
		frames []mpi.Frame
	)
	sink := mpi.ViewSinkFunc(func(f mpi.Frame) {
		mu.Lock()
		defer mu.Unlock()
		frames = append(frames, f)
	})
	lines, w := runBuiltin(t, "sample", 4, mpi.WithViewSink(sink))

	assert.Empty(t, w.Diagnostics())
	for _, want := range []string{
		"Node 1 received 524",
		"Node 2 received 737",
		"Node 3 received 950",
		"Bcast: process 3 received 7132, 4353",
		"Allreduce for 0 returned 2211",
		"Allreduce for 3 returned 2211",
		"Scatter for 0 returned 111",
		"Scatter for 2 returned 333",
		"Allgather for 1 returned [0 1 2 3]",
	} {
		assert.Contains(t, lines, want)
	}
	assert.Len(t, lines, 3+3+4+4+4)

	// Ranks 0 and 1 publish one frame each.
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, frames, 2)
	sort.Slice(frames, func(i, j int) bool { return frames[i].Rank < frames[j].Rank })
	assert.Equal(t, "box #000000 (0.25,0.25)-(0.66,0.66)", frames[0].Primitives[0].String())
	assert.Equal(t, `text #000000 (0.30,0.40) size=0.16 "Hi"`, frames[1].Primitives[0].String())
}

func TestSample_SingleRank(t *testing.T) {
	lines, w := runBuiltin(t, "sample", 1)
	assert.Empty(t, w.Diagnostics())
	assert.Contains(t, lines, "Allreduce for 0 returned 0")
	assert.Contains(t, lines, "Allgather for 0 returned [0]")
}

func TestRing(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("procs=%d", n), func(t *testing.T) {
			log := trace.NewLog()
			lines, w := runBuiltin(t, "ring", n, mpi.WithRecorder(log))
			assert.Empty(t, w.Diagnostics())
			assert.Equal(t, []string{fmt.Sprintf("Ring: token returned to 0 with %d", n*(n-1)/2)}, lines)
			assert.Len(t, log.Filter(trace.KindStopped), n)
		})
	}
}

func TestIdle(t *testing.T) {
	_, w := runBuiltin(t, "idle", 3)
	assert.Empty(t, w.Diagnostics())
	for _, s := range w.Snapshot() {
		assert.Equal(t, mpi.Stopped, s.State)
	}
}
