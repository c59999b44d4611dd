package mpi

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mpisim/internal/trace"
)

// collect runs body between Init and Finalize on every participant.
func collect(t *testing.T, n int, body func(p *Proc) error, opts ...Option) (*World, *trace.Log) {
	t.Helper()
	w, log := newTestWorld(t, n, opts...)
	require.NoError(t, runWorld(t, w, func(p *Proc) error {
		if err := p.Init(); err != nil {
			return err
		}
		if err := body(p); err != nil {
			return err
		}
		return p.Finalize()
	}))
	return w, log
}

func TestBarrier_NobodyLeavesEarly(t *testing.T) {
	const n = 5
	var arrived atomic.Int32
	seen := make([]int32, n)

	w, log := collect(t, n, func(p *Proc) error {
		arrived.Add(1)
		if err := p.Barrier(); err != nil {
			return err
		}
		seen[p.Rank()] = arrived.Load()
		return nil
	})

	for rank, got := range seen {
		assert.Equal(t, int32(n), got, "rank %d left the barrier early", rank)
	}
	assert.Equal(t, []string{"INIT", "BARRIER", "FINALIZE"}, firedKinds(log))
	assert.Empty(t, w.Diagnostics())
}

func TestBcast(t *testing.T) {
	bufs := make([][]int, 3)

	w, _ := collect(t, 3, func(p *Proc) error {
		buf := []int{0, 0}
		if p.Rank() == 0 {
			buf = []int{7, 9}
		}
		bufs[p.Rank()] = buf
		return p.Bcast(buf, 2, Int, 0, CommWorld)
	})

	for rank, buf := range bufs {
		assert.Equal(t, []int{7, 9}, buf, "rank %d", rank)
	}
	assert.Empty(t, w.Diagnostics())
}

func TestBcast_Strings(t *testing.T) {
	bufs := make([][]string, 2)

	collect(t, 2, func(p *Proc) error {
		buf := make([]string, 1)
		if p.Rank() == 1 {
			buf[0] = "héllo"
		}
		bufs[p.Rank()] = buf
		return p.Bcast(buf, 1, String, 1, CommWorld)
	})

	assert.Equal(t, [][]string{{"héllo"}, {"héllo"}}, bufs)
}

func TestScatter(t *testing.T) {
	got := make([][]int, 4)

	w, _ := collect(t, 4, func(p *Proc) error {
		send := make([]int, 4)
		if p.Rank() == 0 {
			send = []int{111, 222, 333, 444}
		}
		recv := make([]int, 1)
		got[p.Rank()] = recv
		return p.Scatter(send, 1, Int, recv, 1, Int, 0, CommWorld)
	})

	assert.Equal(t, [][]int{{111}, {222}, {333}, {444}}, got)
	assert.Empty(t, w.Diagnostics())
}

func TestScatter_SourceTooSmall(t *testing.T) {
	var rootErr error

	w, _ := collect(t, 3, func(p *Proc) error {
		send := []int{1, 2}
		recv := make([]int, 1)
		err := p.Scatter(send, 1, Int, recv, 1, Int, 0, CommWorld)
		if p.Rank() == 0 {
			rootErr = err
		}
		return nil
	})

	assert.Equal(t, ErrCodeCapacity, CodeOf(rootErr))
	diags := w.Diagnostics()
	require.NotEmpty(t, diags)
	assert.Equal(t, "The Scatter source array should have size 3 but has size 2", diags[0].Message)
	for _, d := range diags {
		assert.Equal(t, ErrCodeCapacity, d.Code)
	}
}

func TestScatter_BlockSizeFromRecvCount(t *testing.T) {
	got := make([][]int, 4)

	w, _ := collect(t, 4, func(p *Proc) error {
		send := make([]int, 4)
		if p.Rank() == 0 {
			send = []int{111, 222, 333, 444}
		}
		recv := make([]int, 1)
		got[p.Rank()] = recv
		return p.Scatter(send, 4, Int, recv, 1, Int, 0, CommWorld)
	})

	assert.Equal(t, [][]int{{111}, {222}, {333}, {444}}, got)
	assert.Empty(t, w.Diagnostics())
}

func TestScatter_SourceTooSmallForRecvBlocks(t *testing.T) {
	var rootErr error

	w, _ := collect(t, 4, func(p *Proc) error {
		send := []int{1, 2, 3, 4}
		recv := make([]int, 2)
		err := p.Scatter(send, 1, Int, recv, 2, Int, 0, CommWorld)
		if p.Rank() == 0 {
			rootErr = err
		}
		return nil
	})

	assert.Equal(t, ErrCodeCapacity, CodeOf(rootErr))
	diags := w.Diagnostics()
	require.NotEmpty(t, diags)
	assert.Equal(t, "The Scatter source array should have size 8 but has size 4", diags[0].Message)
	assert.Equal(t, 0, diags[0].Rank)
	for _, d := range diags {
		assert.Equal(t, ErrCodeCapacity, d.Code)
	}
}

func TestGather(t *testing.T) {
	root := make([]int, 4)

	w, _ := collect(t, 4, func(p *Proc) error {
		recv := make([]int, 4)
		if p.Rank() == 0 {
			recv = root
		}
		return p.Gather([]int{p.Rank()}, 1, Int, recv, 1, Int, 0, CommWorld)
	})

	assert.Equal(t, []int{0, 1, 2, 3}, root)
	assert.Empty(t, w.Diagnostics())
}

func TestGather_NonZeroRootLeavesOthersUntouched(t *testing.T) {
	bufs := make([][]int, 3)

	collect(t, 3, func(p *Proc) error {
		recv := []int{-1, -1, -1}
		bufs[p.Rank()] = recv
		return p.Gather([]int{10 * p.Rank()}, 1, Int, recv, 1, Int, 2, CommWorld)
	})

	assert.Equal(t, []int{-1, -1, -1}, bufs[0])
	assert.Equal(t, []int{-1, -1, -1}, bufs[1])
	assert.Equal(t, []int{0, 10, 20}, bufs[2])
}

func TestReduce_Sum(t *testing.T) {
	root := make([]int, 1)

	collect(t, 4, func(p *Proc) error {
		recv := make([]int, 1)
		if p.Rank() == 0 {
			recv = root
		}
		return p.Reduce([]int{p.Rank() + 1}, recv, 1, Int, Sum, 0, CommWorld)
	})

	assert.Equal(t, []int{10}, root)
}

func TestReduce_MaxLoc(t *testing.T) {
	contrib := [][]int{{5, 0}, {9, 0}, {3, 0}}

	tests := []struct {
		op   ReduceOp
		want []int
	}{
		{MaxLoc, []int{9, 1}},
		{MinLoc, []int{3, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			root := make([]int, 2)
			collect(t, 3, func(p *Proc) error {
				recv := make([]int, 2)
				if p.Rank() == 0 {
					recv = root
				}
				return p.Reduce(contrib[p.Rank()], recv, 2, Int, tt.op, 0, CommWorld)
			})
			assert.Equal(t, tt.want, root)
		})
	}
}

func TestReduce_RankZeroMismatchLeavesRootUntouched(t *testing.T) {
	root := []int{99}

	w, _ := collect(t, 3, func(p *Proc) error {
		recv := make([]int, 1)
		if p.Rank() == 1 {
			recv = root
		}
		dt := Int
		if p.Rank() == 0 {
			dt = Double
		}
		p.Reduce([]int{p.Rank() + 1}, recv, 1, dt, Sum, 1, CommWorld)
		return nil
	})

	assert.Equal(t, []int{99}, root)
	diags := w.Diagnostics()
	require.NotEmpty(t, diags)
	for _, d := range diags {
		assert.Equal(t, ErrCodeTypeMismatch, d.Code)
		assert.Equal(t, 0, d.Rank)
	}
}

func TestAllreduce(t *testing.T) {
	got := make([][]float64, 3)

	w, _ := collect(t, 3, func(p *Proc) error {
		recv := make([]float64, 2)
		got[p.Rank()] = recv
		send := []float64{float64(p.Rank()) + 0.5, 2}
		return p.Allreduce(send, recv, 2, Double, Prod, CommWorld)
	})

	want := []float64{0.5 * 1.5 * 2.5, 8}
	for rank, buf := range got {
		assert.InDeltaSlice(t, want, buf, 1e-9, "rank %d", rank)
	}
	assert.Empty(t, w.Diagnostics())
}

func TestAllreduce_UnsupportedOpOnDoubles(t *testing.T) {
	got := make([][]float64, 2)

	w, _ := collect(t, 2, func(p *Proc) error {
		recv := make([]float64, 1)
		got[p.Rank()] = recv
		return p.Allreduce([]float64{float64(p.Rank() + 3)}, recv, 1, Double, BOr, CommWorld)
	})

	// The seed is copied, the fold is refused, the result is still shared.
	assert.Equal(t, [][]float64{{3}, {3}}, got)
	assert.Equal(t, []ErrorCode{ErrCodeUnsupportedOp}, codes(w.Diagnostics()))
}

func TestAllgather(t *testing.T) {
	got := make([][]int, 3)

	w, _ := collect(t, 3, func(p *Proc) error {
		recv := make([]int, 6)
		got[p.Rank()] = recv
		send := []int{10 * p.Rank(), 10*p.Rank() + 1}
		return p.Allgather(send, 2, Int, recv, 2, Int, CommWorld)
	})

	want := []int{0, 1, 10, 11, 20, 21}
	for rank, buf := range got {
		assert.Equal(t, want, buf, "rank %d", rank)
	}
	assert.Empty(t, w.Diagnostics())
}

func TestAllgather_DestinationTooSmall(t *testing.T) {
	w, _ := collect(t, 2, func(p *Proc) error {
		recv := make([]int, 1)
		p.Allgather([]int{p.Rank()}, 1, Int, recv, 1, Int, CommWorld)
		return nil
	})

	diags := w.Diagnostics()
	require.NotEmpty(t, diags)
	for _, d := range diags {
		assert.Equal(t, ErrCodeCapacity, d.Code)
	}
	assert.Equal(t, "The Allgather destination array should have size 2 but has size 1", diags[0].Message)
}

func TestCollective_TypeMismatchStillJoins(t *testing.T) {
	bufs := make([][]int, 3)
	errs := make([]error, 3)

	w, log := collect(t, 3, func(p *Proc) error {
		buf := []int{0}
		if p.Rank() == 0 {
			buf[0] = 42
		}
		bufs[p.Rank()] = buf
		dt := Int
		if p.Rank() == 2 {
			dt = Double
		}
		errs[p.Rank()] = p.Bcast(buf, 1, dt, 0, CommWorld)
		return nil
	})

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.True(t, IsTypeMismatch(errs[2]))
	assert.Equal(t, [][]int{{42}, {42}, {0}}, bufs)
	assert.Equal(t, []string{"INIT", "BCAST", "FINALIZE"}, firedKinds(log))
	assert.Equal(t, []ErrorCode{ErrCodeTypeMismatch}, codes(w.Diagnostics()))
}

func TestCollective_ConflictReported(t *testing.T) {
	var conflict error

	w, _ := collect(t, 2, func(p *Proc) error {
		if p.Rank() == 1 {
			waitUntil(t, p.World(), inCollective(0, CollBarrier))
			conflict = p.Bcast([]int{1}, 1, Int, 0, CommWorld)
		}
		return p.Barrier()
	})

	require.Error(t, conflict)
	assert.Equal(t, ErrCodeCollectiveConflict, CodeOf(conflict))
	assert.Equal(t, "Process 1 cannot start BCAST because there is already a BARRIER started",
		w.Diagnostics()[0].Message)
}

func TestCollective_HazardWhenPeerBlockedOnUs(t *testing.T) {
	var hazard error
	got := make([]int, 1)

	w, _ := collect(t, 2, func(p *Proc) error {
		switch p.Rank() {
		case 0:
			if err := p.Recv(got, 1, Int, 1, 0, CommWorld, nil); err != nil {
				return err
			}
		case 1:
			waitUntil(t, p.World(), blockedFor(0, 1))
			hazard = p.Barrier()
			if err := p.Send([]int{5}, 1, Int, 0, 0, CommWorld); err != nil {
				return err
			}
		}
		return p.Barrier()
	})

	assert.Equal(t, ErrCodeCollectiveHazard, CodeOf(hazard))
	assert.Equal(t, "Process 1 cannot enter BARRIER because process 0 is blocked on it",
		w.Diagnostics()[0].Message)
	assert.Equal(t, []int{5}, got)
}
