package vectorized

import (
	"math"
	"strings"
)

// FilterOperator represents a comparison operator with a vectorized kernel
type FilterOperator int

const (
	EQ FilterOperator = iota
	NE
	LT
	LE
	GT
	GE
)

func (op FilterOperator) String() string {
	switch op {
	case EQ:
		return "="
	case NE:
		return "<>"
	case LT:
		return "<"
	case LE:
		return "<="
	case GT:
		return ">"
	case GE:
		return ">="
	}
	return "?"
}

// Holds reports whether a comparison result cmp (-1, 0, 1) satisfies op.
func (op FilterOperator) Holds(cmp int) bool {
	switch op {
	case EQ:
		return cmp == 0
	case NE:
		return cmp != 0
	case LT:
		return cmp < 0
	case LE:
		return cmp <= 0
	case GT:
		return cmp > 0
	case GE:
		return cmp >= 0
	}
	return false
}

// FilterKernel clears result bit i for every row i of v that fails the
// comparison it was bound with. Bits of rows that pass are left untouched,
// so several kernels can be applied to the same result words.
type FilterKernel func(v *Vector, result []uint64)

// BindFilterKernel returns the kernel comparing a column of type colType
// against constant with op, or nil when no kernel exists for the combination.
func BindFilterKernel(op FilterOperator, colType DataType, constant interface{}) FilterKernel {
	if constant == nil || op < EQ || op > GE {
		return nil
	}
	switch {
	case colType.IsInteger():
		if c, ok := AsInt64(constant); ok {
			return bindIntKernel(op, c)
		}
		if c, ok := constant.(float32); ok {
			return bindFloatKernel(op, float64(c))
		}
		if c, ok := constant.(float64); ok {
			return bindFloatKernel(op, c)
		}
	case colType.IsFloat():
		if c, ok := AsFloat64(constant); ok {
			return bindFloatKernel(op, c)
		}
	case colType == STRING:
		if c, ok := constant.(string); ok {
			return func(v *Vector, result []uint64) {
				data := v.Data.([]string)
				filterRows(data[:v.Length], result, func(x string) bool {
					return op.Holds(strings.Compare(x, c))
				})
			}
		}
	case colType == BOOLEAN:
		c, ok := constant.(bool)
		if !ok || (op != EQ && op != NE) {
			return nil
		}
		return func(v *Vector, result []uint64) {
			data := v.Data.([]bool)
			filterRows(data[:v.Length], result, func(x bool) bool {
				return (x == c) == (op == EQ)
			})
		}
	}
	return nil
}

func bindIntKernel(op FilterOperator, c int64) FilterKernel {
	return func(v *Vector, result []uint64) {
		switch data := v.Data.(type) {
		case []int16:
			filterInts(op, data[:v.Length], c, result)
		case []int32:
			filterInts(op, data[:v.Length], c, result)
		case []int64:
			filterInts(op, data[:v.Length], c, result)
		}
	}
}

func bindFloatKernel(op FilterOperator, c float64) FilterKernel {
	return func(v *Vector, result []uint64) {
		switch data := v.Data.(type) {
		case []int16:
			filterFloats(op, data[:v.Length], c, result)
		case []int32:
			filterFloats(op, data[:v.Length], c, result)
		case []int64:
			filterFloats(op, data[:v.Length], c, result)
		case []float32:
			filterFloats(op, data[:v.Length], c, result)
		case []float64:
			filterFloats(op, data[:v.Length], c, result)
		}
	}
}

func filterInts[T int16 | int32 | int64](op FilterOperator, data []T, c int64, result []uint64) {
	switch op {
	case EQ:
		filterRows(data, result, func(x T) bool { return int64(x) == c })
	case NE:
		filterRows(data, result, func(x T) bool { return int64(x) != c })
	case LT:
		filterRows(data, result, func(x T) bool { return int64(x) < c })
	case LE:
		filterRows(data, result, func(x T) bool { return int64(x) <= c })
	case GT:
		filterRows(data, result, func(x T) bool { return int64(x) > c })
	case GE:
		filterRows(data, result, func(x T) bool { return int64(x) >= c })
	}
}

func filterFloats[T int16 | int32 | int64 | float32 | float64](op FilterOperator, data []T, c float64, result []uint64) {
	filterRows(data, result, func(x T) bool {
		return op.Holds(CompareFloat64(float64(x), c))
	})
}

func filterRows[T any](data []T, result []uint64, keep func(T) bool) {
	for i, x := range data {
		if !keep(x) {
			result[i>>6] &^= 1 << uint(i&63)
		}
	}
}

// CompareFloat64 orders floats with NaN equal to itself and greater than
// every other value.
func CompareFloat64(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SetAll sets the first n bits of result and clears the rest.
func SetAll(result []uint64, n int) {
	for i := range result {
		result[i] = math.MaxUint64
	}
	if rem := n % 64; rem != 0 && len(result) > 0 {
		result[len(result)-1] = 1<<uint(rem) - 1
	}
}

// AndValidity clears the result bits of rows that are null in v.
func AndValidity(result []uint64, v *Vector) {
	words := v.ValidityWords()
	if words == nil {
		return
	}
	for i := range result {
		if i < len(words) {
			result[i] &= words[i]
		} else {
			result[i] = 0
		}
	}
}

// CountSet returns the number of set bits among the first n rows.
func CountSet(result []uint64, n int) int {
	count := 0
	for i := 0; i < n; i++ {
		if RowPasses(result, i) {
			count++
		}
	}
	return count
}

// RowPasses reports whether row i is set in the filter words.
func RowPasses(filter []uint64, i int) bool {
	return filter[i>>6]&(1<<uint(i&63)) != 0
}
