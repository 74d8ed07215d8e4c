package vectorized

import (
	"math"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/require"
)

func filterResult(t *testing.T, v *Vector, op FilterOperator, c interface{}) []int {
	t.Helper()
	kernel := BindFilterKernel(op, v.DataType, c)
	require.NotNil(t, kernel, "kernel for %s %s %T", v.DataType, op, c)

	result := make([]uint64, WordsFor(v.Length))
	SetAll(result, v.Length)
	kernel(v, result)
	AndValidity(result, v)

	var rows []int
	for i := 0; i < v.Length; i++ {
		if RowPasses(result, i) {
			rows = append(rows, i)
		}
	}
	return rows
}

func TestFilterKernelsIntegers(t *testing.T) {
	v := &Vector{DataType: INT32, Data: []int32{5, -3, 10, 7, 5}, Length: 5}

	tests := []struct {
		op       FilterOperator
		constant interface{}
		want     []int
	}{
		{EQ, int64(5), []int{0, 4}},
		{NE, int64(5), []int{1, 2, 3}},
		{LT, int64(5), []int{1}},
		{LE, int64(5), []int{0, 1, 4}},
		{GT, int64(5), []int{2, 3}},
		{GE, int64(7), []int{2, 3}},
		{GT, int64(math.MaxInt64), nil},
		{LT, float64(5.5), []int{0, 1, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			require.Equal(t, tt.want, filterResult(t, v, tt.op, tt.constant))
		})
	}
}

func TestFilterKernelRespectsValidity(t *testing.T) {
	valid := bitset.New(4)
	valid.Set(0).Set(2)
	v := &Vector{DataType: INT64, Data: []int64{1, 1, 1, 1}, Validity: valid, Length: 4}

	require.Equal(t, []int{0, 2}, filterResult(t, v, EQ, int64(1)))
}

func TestFilterKernelFloatsNaN(t *testing.T) {
	v := &Vector{DataType: FLOAT64, Data: []float64{1, math.NaN(), -2, math.Inf(1)}, Length: 4}

	require.Equal(t, []int{1, 3}, filterResult(t, v, GT, float64(100)))
	require.Equal(t, []int{1}, filterResult(t, v, EQ, math.NaN()))
	require.Equal(t, []int{0, 2}, filterResult(t, v, LT, int64(2)))
}

func TestFilterKernelStringsAndBools(t *testing.T) {
	s := &Vector{DataType: STRING, Data: []string{"b", "a", "c"}, Length: 3}
	require.Equal(t, []int{0, 2}, filterResult(t, s, GE, "b"))

	b := &Vector{DataType: BOOLEAN, Data: []bool{true, false, true}, Length: 3}
	require.Equal(t, []int{1}, filterResult(t, b, NE, true))

	require.Nil(t, BindFilterKernel(LT, BOOLEAN, true))
	require.Nil(t, BindFilterKernel(EQ, STRING, int64(1)))
	require.Nil(t, BindFilterKernel(EQ, INT32, "1"))
	require.Nil(t, BindFilterKernel(EQ, INT32, nil))
}

func TestFilterKernelAcrossWords(t *testing.T) {
	n := 130
	data := make([]int64, n)
	for i := range data {
		data[i] = int64(i)
	}
	v := &Vector{DataType: TIMESTAMP, Data: data, Length: n}

	rows := filterResult(t, v, GE, int64(120))
	require.Len(t, rows, 10)
	require.Equal(t, 120, rows[0])
	require.Equal(t, 129, rows[9])
}

func TestSumKernels(t *testing.T) {
	valid := bitset.New(5)
	valid.Set(0).Set(1).Set(3).Set(4)
	v := &Vector{DataType: INT32, Data: []int32{math.MaxInt32, math.MaxInt32, 99, -1, 2}, Validity: valid, Length: 5}

	sum, count := SumIntegers(v)
	require.Equal(t, int64(2*math.MaxInt32+1), sum)
	require.Equal(t, 4, count)

	checked, count, err := SumIntegersChecked(v)
	require.NoError(t, err)
	require.Equal(t, sum, checked)
	require.Equal(t, 4, count)

	wide := &Vector{DataType: INT64, Data: []int64{math.MaxInt64, 1}, Length: 2}
	_, _, err = SumIntegersChecked(wide)
	require.ErrorIs(t, err, ErrNumericOutOfRange)

	f := &Vector{DataType: FLOAT32, Data: []float32{1.5, 2.5}, Length: 2}
	fsum, count := SumFloats(f)
	require.Equal(t, 4.0, fsum)
	require.Equal(t, 2, count)
}

func TestSumIntegersNoNullsUnrolled(t *testing.T) {
	data := make([]int16, 1001)
	for i := range data {
		data[i] = math.MaxInt16
	}
	v := &Vector{DataType: INT16, Data: data, Length: len(data)}
	sum, count := SumIntegers(v)
	require.Equal(t, int64(1001*math.MaxInt16), sum)
	require.Equal(t, 1001, count)
}
