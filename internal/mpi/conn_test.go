package mpi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustConn(t *testing.T, buf any, count int) *Conn {
	t.Helper()
	c, err := NewConn(buf, count, false)
	require.NoError(t, err)
	return c
}

func TestNewConn(t *testing.T) {
	c := mustConn(t, []float64{1, 2, 3}, 2)
	assert.Equal(t, Double, c.Datatype())
	assert.Equal(t, 2, c.Count())
	assert.Equal(t, 3, c.ActualLength())
	assert.Equal(t, "MPI_DOUBLE[2/3]", c.String())

	_, err := c.Ints()
	assert.True(t, IsTypeMismatch(err))
	doubles, err := c.Doubles()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, doubles)
}

func TestNewConn_CountExceedsBuffer(t *testing.T) {
	c, err := NewConn([]int{1, 2}, 5, false)
	require.Error(t, err)
	assert.Equal(t, ErrCodeCapacity, CodeOf(err))
	assert.Equal(t, "CAPACITY_VIOLATION: Data connection asks for length 5 but data length is 2", err.Error())
	require.NotNil(t, c)
	assert.Equal(t, 2, c.Count())
}

func TestNewConn_NegativeCount(t *testing.T) {
	c, err := NewConn([]string{"a"}, -1, false)
	assert.Equal(t, ErrCodeCapacity, CodeOf(err))
	assert.Equal(t, 0, c.Count())
}

func TestNewConn_UnsupportedType(t *testing.T) {
	c, err := NewConn([]int32{1}, 1, false)
	assert.Nil(t, c)
	assert.True(t, IsTypeMismatch(err))
}

func TestNewConn_Buffered(t *testing.T) {
	buf := []string{"a", "b"}
	c, err := NewConn(buf, 2, true)
	require.NoError(t, err)
	buf[0] = "z"

	strs, err := c.Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, strs)
}

func TestTransferFrom(t *testing.T) {
	src := mustConn(t, []int{1, 2, 3, 4}, 4)
	dstBuf := make([]int, 4)
	dst := mustConn(t, dstBuf, 2)

	require.NoError(t, dst.TransferFrom(src, 1, 2))
	assert.Equal(t, []int{0, 0, 2, 3}, dstBuf)
}

func TestTransferFrom_TypeMismatch(t *testing.T) {
	dstBuf := []int{0}
	dst := mustConn(t, dstBuf, 1)

	err := dst.TransferFrom(mustConn(t, []float64{1}, 1), 0, 0)
	assert.True(t, IsTypeMismatch(err))
	assert.Equal(t, "TYPE_MISMATCH: Data transfer: wanted MPI_INT but got MPI_DOUBLE", err.Error())
	assert.Equal(t, []int{0}, dstBuf)
}

func TestTransferFrom_OutOfRange(t *testing.T) {
	dstBuf := []int{0, 0}
	dst := mustConn(t, dstBuf, 2)

	err := dst.TransferFrom(mustConn(t, []int{1, 2, 3}, 3), 2, 0)
	assert.Equal(t, ErrCodeCapacity, CodeOf(err))
	err = dst.TransferFrom(mustConn(t, []int{1, 2, 3}, 3), 0, 1)
	assert.Equal(t, ErrCodeCapacity, CodeOf(err))
	assert.Equal(t, []int{0, 0}, dstBuf)
}

func TestTransferAll(t *testing.T) {
	dstBuf := make([]string, 3)
	dst := mustConn(t, dstBuf, 1)

	require.NoError(t, dst.TransferAll(mustConn(t, []string{"a", "b", "c"}, 1), 3))
	assert.Equal(t, []string{"a", "b", "c"}, dstBuf)
	assert.Error(t, dst.TransferAll(mustConn(t, []string{"a"}, 1), 2))
}

// reduceAll folds contributions in rank order the way REDUCE does.
func reduceAll(t *testing.T, op ReduceOp, contrib ...[]int) ([]int, error) {
	t.Helper()
	out := make([]int, len(contrib[0]))
	acc := mustConn(t, out, len(out))
	var firstErr error
	for rank, c := range contrib {
		if err := acc.ReduceFrom(mustConn(t, c, len(c)), rank, op); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return out, firstErr
}

func TestReduceFrom_Ints(t *testing.T) {
	tests := []struct {
		name    string
		op      ReduceOp
		contrib [][]int
		want    []int
	}{
		{"max", Max, [][]int{{1, 8}, {5, 2}, {3, 3}}, []int{5, 8}},
		{"min", Min, [][]int{{1, 8}, {5, 2}, {3, 3}}, []int{1, 2}},
		{"sum", Sum, [][]int{{1}, {2}, {3}, {4}}, []int{10}},
		{"prod", Prod, [][]int{{2}, {3}, {4}}, []int{24}},
		{"land", LAnd, [][]int{{1, 1}, {2, 0}}, []int{1, 0}},
		{"lor", LOr, [][]int{{0, 0}, {0, 7}}, []int{0, 1}},
		{"band", BAnd, [][]int{{6}, {3}}, []int{2}},
		{"bor", BOr, [][]int{{4}, {1}}, []int{5}},
		{"maxloc", MaxLoc, [][]int{{5, 0}, {9, 0}, {3, 0}}, []int{9, 1}},
		{"minloc", MinLoc, [][]int{{5, 0}, {9, 0}, {3, 0}}, []int{3, 2}},
		{"maxloc seed resets location", MaxLoc, [][]int{{5, 42}}, []int{5, 0}},
		{"maxloc tie keeps incumbent", MaxLoc, [][]int{{5, 0}, {5, 0}}, []int{5, 0}},
		{"maxloc flattens trailing indices", MaxLoc, [][]int{{5, 0, 1}, {9, 0, 7}, {3, 0, 4}}, []int{9, 1, 7}},
		{"minloc flattens trailing indices", MinLoc, [][]int{{5, 0, 1}, {9, 0, 7}, {3, 0, 4}}, []int{3, 2, 1}},
		{"maxloc single element", MaxLoc, [][]int{{5}, {9}, {3}}, []int{9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reduceAll(t, tt.op, tt.contrib...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReduceFrom_DoublesRejectBitwise(t *testing.T) {
	for _, op := range []ReduceOp{LAnd, LOr, BAnd, BOr} {
		t.Run(op.String(), func(t *testing.T) {
			out := make([]float64, 1)
			acc := mustConn(t, out, 1)
			require.NoError(t, acc.ReduceFrom(mustConn(t, []float64{2}, 1), 0, op))

			err := acc.ReduceFrom(mustConn(t, []float64{3}, 1), 1, op)
			assert.Equal(t, ErrCodeUnsupportedOp, CodeOf(err))
			assert.Equal(t, []float64{2}, out)
		})
	}
}

func TestReduceFrom_DoublesMaxLoc(t *testing.T) {
	out := make([]float64, 2)
	acc := mustConn(t, out, 2)
	for rank, v := range []float64{1.5, -2, 7.25} {
		require.NoError(t, acc.ReduceFrom(mustConn(t, []float64{v, 0}, 2), rank, MaxLoc))
	}
	assert.Equal(t, []float64{7.25, 2}, out)
}

func TestReduceFrom_StringsUnsupported(t *testing.T) {
	acc := mustConn(t, make([]string, 1), 1)
	err := acc.ReduceFrom(mustConn(t, []string{"a"}, 1), 0, Max)
	assert.Equal(t, ErrCodeUnsupportedOp, CodeOf(err))
}

func TestReduceFrom_TypeMismatch(t *testing.T) {
	acc := mustConn(t, make([]int, 1), 1)
	err := acc.ReduceFrom(mustConn(t, []float64{1}, 1), 0, Sum)
	assert.True(t, IsTypeMismatch(err))
}
