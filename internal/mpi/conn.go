package mpi

import "fmt"

// Conn is a Data Connection: a typed, fixed-length view over a buffer that
// takes part in a transfer or a reduction.
//
// Conn is a closed variant over the three element types. Exactly one of the
// typed slices is non-nil, selected by the datatype tag.
//
// INVARIANTS:
//   - count <= ActualLength() (enforced at construction)
//   - the datatype tag never changes
type Conn struct {
	dtype   Datatype
	count   int
	ints    []int
	doubles []float64
	strs    []string
}

// NewConn wraps buf ([]int, []float64 or []string) in a connection that
// transfers count elements. When buffered is true the connection snapshots
// the whole buffer, so later writes by the caller do not affect it.
//
// A count larger than the buffer is a capacity violation: the connection is
// still returned, clamped to the buffer's length, together with the error.
func NewConn(buf any, count int, buffered bool) (*Conn, error) {
	c := &Conn{count: count}
	switch data := buf.(type) {
	case []int:
		c.dtype = Int
		c.ints = data
		if buffered {
			c.ints = append([]int(nil), data...)
		}
	case []float64:
		c.dtype = Double
		c.doubles = data
		if buffered {
			c.doubles = append([]float64(nil), data...)
		}
	case []string:
		c.dtype = String
		c.strs = data
		if buffered {
			c.strs = append([]string(nil), data...)
		}
	default:
		return nil, newError(ErrCodeTypeMismatch, -1, "unsupported buffer type %T", buf)
	}
	if count < 0 {
		c.count = 0
		return c, newError(ErrCodeCapacity, -1, "Data connection asks for negative length %d", count)
	}
	if n := c.ActualLength(); n < count {
		c.count = n
		return c, newError(ErrCodeCapacity, -1, "Data connection asks for length %d but data length is %d", count, n)
	}
	return c, nil
}

// Datatype returns the element type tag.
func (c *Conn) Datatype() Datatype { return c.dtype }

// Count returns the logical transfer length.
func (c *Conn) Count() int { return c.count }

// ActualLength returns the length of the backing buffer.
func (c *Conn) ActualLength() int {
	switch c.dtype {
	case Int:
		return len(c.ints)
	case Double:
		return len(c.doubles)
	case String:
		return len(c.strs)
	}
	return 0
}

// Ints returns the backing integer buffer, or a type mismatch error.
func (c *Conn) Ints() ([]int, error) {
	if c.dtype != Int {
		return nil, c.mismatch(Int)
	}
	return c.ints, nil
}

// Doubles returns the backing floating point buffer, or a type mismatch error.
func (c *Conn) Doubles() ([]float64, error) {
	if c.dtype != Double {
		return nil, c.mismatch(Double)
	}
	return c.doubles, nil
}

// Strings returns the backing text buffer, or a type mismatch error.
func (c *Conn) Strings() ([]string, error) {
	if c.dtype != String {
		return nil, c.mismatch(String)
	}
	return c.strs, nil
}

func (c *Conn) mismatch(want Datatype) *Error {
	return newError(ErrCodeTypeMismatch, -1, "Data transfer: wanted %s but got %s", want, c.dtype)
}

// TransferFrom copies Count() elements from src[srcOffset:] into
// c[dstOffset:]. Nothing is copied when the types differ or either range
// falls outside its buffer.
func (c *Conn) TransferFrom(src *Conn, srcOffset, dstOffset int) error {
	if src.dtype != c.dtype {
		return src.mismatch(c.dtype)
	}
	if err := checkRange("source", src, srcOffset, c.count); err != nil {
		return err
	}
	if err := checkRange("destination", c, dstOffset, c.count); err != nil {
		return err
	}
	n := c.count
	switch c.dtype {
	case Int:
		copy(c.ints[dstOffset:dstOffset+n], src.ints[srcOffset:srcOffset+n])
	case Double:
		copy(c.doubles[dstOffset:dstOffset+n], src.doubles[srcOffset:srcOffset+n])
	case String:
		copy(c.strs[dstOffset:dstOffset+n], src.strs[srcOffset:srcOffset+n])
	}
	return nil
}

// TransferAll copies the first n elements of src into c, ignoring Count().
func (c *Conn) TransferAll(src *Conn, n int) error {
	if src.dtype != c.dtype {
		return src.mismatch(c.dtype)
	}
	if err := checkRange("source", src, 0, n); err != nil {
		return err
	}
	if err := checkRange("destination", c, 0, n); err != nil {
		return err
	}
	switch c.dtype {
	case Int:
		copy(c.ints[:n], src.ints[:n])
	case Double:
		copy(c.doubles[:n], src.doubles[:n])
	case String:
		copy(c.strs[:n], src.strs[:n])
	}
	return nil
}

// ReduceFrom folds Count() elements of src into c.
//
// rank 0 seeds the accumulator: src is copied, and for MaxLoc/MinLoc with
// Count() > 1 index 1 (the location) is reset to 0. Any other rank combines
// elementwise. For MaxLoc/MinLoc index 0 holds the extremum, index 1 the rank
// that contributed it, and every index >= 2 is folded with a plain max/min.
//
// Text connections cannot be reduced. Floating point connections do not
// implement the logical and bitwise operators: the accumulator is left
// untouched and an UNSUPPORTED_OP error is returned.
func (c *Conn) ReduceFrom(src *Conn, rank int, op ReduceOp) error {
	if src.dtype != c.dtype {
		return src.mismatch(c.dtype)
	}
	if err := checkRange("source", src, 0, c.count); err != nil {
		return err
	}
	switch c.dtype {
	case Int:
		return reduceInto(c.ints, src.ints, c.count, rank, op, intBitwise)
	case Double:
		return reduceInto(c.doubles, src.doubles, c.count, rank, op, nil)
	}
	return newError(ErrCodeUnsupportedOp, -1, "cannot apply %s to %s data", op, c.dtype)
}

func checkRange(side string, c *Conn, offset, n int) error {
	if offset < 0 || offset+n > c.ActualLength() {
		return newError(ErrCodeCapacity, -1, "%s range [%d, %d) exceeds buffer length %d",
			side, offset, offset+n, c.ActualLength())
	}
	return nil
}

type number interface {
	~int | ~float64
}

// bitwiseFunc combines a and b for the logical and bitwise operators.
type bitwiseFunc[T number] func(a, b T, op ReduceOp) T

func intBitwise(a, b int, op ReduceOp) int {
	switch op {
	case LAnd:
		if a != 0 && b != 0 {
			return 1
		}
		return 0
	case LOr:
		if a != 0 || b != 0 {
			return 1
		}
		return 0
	case BAnd:
		return a & b
	case BOr:
		return a | b
	}
	return a
}

func reduceInto[T number](dst, src []T, count, rank int, op ReduceOp, bitwise bitwiseFunc[T]) error {
	if rank == 0 {
		copy(dst[:count], src[:count])
		if op.tracksLocation() && count > 1 {
			dst[1] = 0
		}
		return nil
	}

	switch op {
	case LAnd, LOr, BAnd, BOr:
		if bitwise == nil {
			return newError(ErrCodeUnsupportedOp, -1, "%s is not implemented for floating point data", op)
		}
	case Max, Min, Sum, Prod, MaxLoc, MinLoc:
	default:
		return newError(ErrCodeUnsupportedOp, -1, "unknown reduce op %d", int(op))
	}

	for i := 0; i < count; i++ {
		a, b := dst[i], src[i]
		switch op {
		case Max:
			dst[i] = greater(a, b)
		case Min:
			dst[i] = lesser(a, b)
		case Sum:
			dst[i] = a + b
		case Prod:
			dst[i] = a * b
		case LAnd, LOr, BAnd, BOr:
			dst[i] = bitwise(a, b, op)
		case MaxLoc:
			if i == 0 && count > 1 {
				if b > a {
					dst[0] = b
					dst[1] = T(rank)
				}
			} else if i != 1 {
				dst[i] = greater(a, b)
			}
		case MinLoc:
			if i == 0 && count > 1 {
				if b < a {
					dst[0] = b
					dst[1] = T(rank)
				}
			} else if i != 1 {
				dst[i] = lesser(a, b)
			}
		}
	}
	return nil
}

// greater and lesser return b unless a strictly wins, so ties and NaN
// comparisons take the contributed value.
func greater[T number](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func lesser[T number](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func (c *Conn) String() string {
	return fmt.Sprintf("%s[%d/%d]", c.dtype, c.count, c.ActualLength())
}
