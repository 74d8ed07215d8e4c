package vectorized

import (
	"math/bits"

	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/errors"
)

// Vector is a decompressed column: a typed value array, a validity bitmap
// and a row count. Data holds one of []int16, []int32, []int64, []float32,
// []float64, []bool or []string, with DATE stored as int32 and TIMESTAMP as
// int64. A set validity bit marks a non-null row; a nil Validity means no
// row is null.
type Vector struct {
	DataType DataType
	Data     interface{}
	Validity *bitset.BitSet
	Length   int
}

// WordsFor returns the number of 64-bit words covering n rows.
func WordsFor(n int) int {
	return (n + 63) / 64
}

func (v *Vector) IsNull(i int) bool {
	return v.Validity != nil && !v.Validity.Test(uint(i))
}

// Value returns row i in its canonical Go representation, or nil if null.
func (v *Vector) Value(i int) interface{} {
	if v.IsNull(i) {
		return nil
	}
	switch data := v.Data.(type) {
	case []int16:
		return data[i]
	case []int32:
		return data[i]
	case []int64:
		return data[i]
	case []float32:
		return data[i]
	case []float64:
		return data[i]
	case []bool:
		return data[i]
	case []string:
		return data[i]
	}
	return nil
}

// NullCount returns the number of null rows.
func (v *Vector) NullCount() int {
	if v.Validity == nil {
		return 0
	}
	valid := 0
	words := v.Validity.Bytes()
	full := v.Length / 64
	for i := 0; i < full && i < len(words); i++ {
		valid += bits.OnesCount64(words[i])
	}
	if rem := v.Length % 64; rem != 0 && full < len(words) {
		valid += bits.OnesCount64(words[full] & (1<<uint(rem) - 1))
	}
	return v.Length - valid
}

// ValidityWords exposes the validity bitmap as raw words, or nil when every
// row is valid.
func (v *Vector) ValidityWords() []uint64 {
	if v.Validity == nil {
		return nil
	}
	return v.Validity.Bytes()
}

// NewVector allocates a zeroed vector of n rows from the arena. Strings are
// not pointer-free and are allocated on the heap.
func NewVector(dt DataType, n int, arena *Arena) (*Vector, error) {
	v := &Vector{DataType: dt, Length: n}
	switch dt {
	case INT16:
		v.Data = arena.Int16s(n)
	case INT32, DATE:
		v.Data = arena.Int32s(n)
	case INT64, TIMESTAMP:
		v.Data = arena.Int64s(n)
	case FLOAT32:
		v.Data = arena.Float32s(n)
	case FLOAT64:
		v.Data = arena.Float64s(n)
	case BOOLEAN:
		v.Data = arena.Bools(n)
	case STRING:
		v.Data = make([]string, n)
	default:
		return nil, errors.Newf("cannot allocate vector of type %s", dt)
	}
	return v, nil
}

// NewNullVector returns a vector of n rows that are all null.
func NewNullVector(dt DataType, n int, arena *Arena) (*Vector, error) {
	v, err := NewVector(dt, n, arena)
	if err != nil {
		return nil, err
	}
	v.Validity = bitset.FromWithLength(uint(n), arena.Words(WordsFor(n)))
	return v, nil
}

// Set stores value at row i, marking the row null when value is nil.
// The vector must have been created with a validity bitmap if nulls are
// stored.
func (v *Vector) Set(i int, value interface{}) error {
	if value == nil {
		if v.Validity == nil {
			return errors.AssertionFailedf("vector has no validity bitmap")
		}
		v.Validity.Clear(uint(i))
		return nil
	}
	c, err := Coerce(value, v.DataType)
	if err != nil {
		return err
	}
	switch data := v.Data.(type) {
	case []int16:
		data[i] = c.(int16)
	case []int32:
		data[i] = c.(int32)
	case []int64:
		data[i] = c.(int64)
	case []float32:
		data[i] = c.(float32)
	case []float64:
		data[i] = c.(float64)
	case []bool:
		data[i] = c.(bool)
	case []string:
		data[i] = c.(string)
	}
	if v.Validity != nil {
		v.Validity.Set(uint(i))
	}
	return nil
}
