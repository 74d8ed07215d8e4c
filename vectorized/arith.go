package vectorized

import (
	"math"
	"math/bits"
)

// CheckedAddInt64 returns a+b or ErrNumericOutOfRange if the result does not
// fit in 64 bits.
func CheckedAddInt64(a, b int64) (int64, error) {
	sum := a + b
	// overflow iff both operands share a sign that the result does not
	if (a >= 0) == (b >= 0) && (sum >= 0) != (a >= 0) {
		return 0, ErrNumericOutOfRange
	}
	return sum, nil
}

func CheckedSubInt64(a, b int64) (int64, error) {
	if b == math.MinInt64 {
		if a >= 0 {
			return 0, ErrNumericOutOfRange
		}
		return a - b, nil
	}
	return CheckedAddInt64(a, -b)
}

// CheckedMulInt64 returns a*b or ErrNumericOutOfRange on overflow.
func CheckedMulInt64(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	neg := (a < 0) != (b < 0)
	hi, lo := bits.Mul64(absUint64(a), absUint64(b))
	if hi != 0 {
		return 0, ErrNumericOutOfRange
	}
	if neg {
		if lo > 1<<63 {
			return 0, ErrNumericOutOfRange
		}
		return int64(-lo), nil
	}
	if lo > math.MaxInt64 {
		return 0, ErrNumericOutOfRange
	}
	return int64(lo), nil
}

func absUint64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

// UncheckedSumSafe reports whether summing up to rows values of the given
// integer type into an int64 can never overflow.
func UncheckedSumSafe(dt DataType, rows int) bool {
	var magnitude uint64
	switch dt {
	case INT16:
		magnitude = 1 << 15
	case INT32, DATE:
		magnitude = 1 << 31
	default:
		return false
	}
	return rows >= 0 && uint64(rows) <= (1<<63-1)/magnitude
}
