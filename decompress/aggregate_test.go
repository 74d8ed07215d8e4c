package decompress

import (
	"context"
	"io"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/rohan-flutterint/timescaledb-core/columnar"
	"github.com/rohan-flutterint/timescaledb-core/source"
	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

func aggregate(t *testing.T, cfg *Config, src BatchSource) interface{} {
	t.Helper()
	op := openOperator(t, cfg, src)
	row, err := op.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, row, 1)
	return row[0]
}

func TestSumCompressedIntegerColumn(t *testing.T) {
	rows := deviceRows([]int32{1, 2, 3}, []int{1000, 700, 150})
	var expected int64
	for _, r := range rows {
		if r[3] != nil {
			expected += int64(r[3].(int32))
		}
	}

	metrics := NewMetrics(nil)
	batches := buildBatches(t, rows, 1000)
	src := source.NewMemorySource(batches...)
	cfg := NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", 4).WithMetrics(metrics)
	op := openOperator(t, cfg, src)

	row, err := op.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, Row{expected}, row)
	require.Equal(t, float64(len(batches)), testutil.ToFloat64(metrics.BatchesPulled))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.RowsEmitted))

	_, err = op.Next(context.Background())
	require.Equal(t, io.EOF, err)
	require.Equal(t, StateExhausted, op.State())

	require.Equal(t, "none", explainValue(t, op, "Queue"))
	require.Equal(t, "true", explainValue(t, op, "Vectorized Aggregation"))

	require.NoError(t, op.Rescan(context.Background()))
	row, err = op.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, Row{expected}, row)
	require.Equal(t, 1, src.Rescans())
	require.Equal(t, 1, op.pool.inUse(), "the aggregation holds a single slot")
}

func TestSumSegmentColumn(t *testing.T) {
	rows := deviceRows([]int32{3, 5}, []int{1200, 300})
	cfg := NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("SUM", 1)
	got := aggregate(t, cfg, source.NewMemorySource(buildBatches(t, rows, 1000)...))
	require.Equal(t, int64(3*1200+5*300), got)

	// segment values are not decompressed, so bulk decompression is not needed
	cfg = NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", 1).WithBulkDecompression(false)
	got = aggregate(t, cfg, source.NewMemorySource(buildBatches(t, rows, 1000)...))
	require.Equal(t, int64(3*1200+5*300), got)
}

func TestSumSkipsNullSegments(t *testing.T) {
	ts, err := columnar.EncodeColumn(vectorized.TIMESTAMP, []interface{}{int64(1), int64(2)}, nil)
	require.NoError(t, err)
	src := source.NewMemorySource(
		columnar.NewBatch(nil, ts, nil, nil, int32(2)),
		columnar.NewBatch(int32(4), ts, nil, nil, int32(2)),
	)
	cfg := NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", 1)
	require.Equal(t, int64(8), aggregate(t, cfg, src))

	src = source.NewMemorySource(columnar.NewBatch(nil, ts, nil, nil, int32(2)))
	require.Nil(t, aggregate(t, NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", 1), src))
}

func TestSumFloatColumn(t *testing.T) {
	rows := deviceRows([]int32{1, 2}, []int{900, 900})
	var expected float64
	for _, r := range rows {
		if r[2] != nil {
			expected += r[2].(float64)
		}
	}
	cfg := NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", 3)
	got := aggregate(t, cfg, source.NewMemorySource(buildBatches(t, rows, 500)...))
	require.InDelta(t, expected, got, 1e-6)
}

func TestSumOfNothingIsNull(t *testing.T) {
	for _, attno := range []int{1, 3, 4} {
		cfg := NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", attno)
		require.Nil(t, aggregate(t, cfg, source.NewMemorySource()))
	}
}

func TestSumRejectsNullBlock(t *testing.T) {
	ts, err := columnar.EncodeColumn(vectorized.TIMESTAMP, []interface{}{int64(1), int64(2)}, nil)
	require.NoError(t, err)
	src := source.NewMemorySource(columnar.NewBatch(int32(1), ts, nil, nil, int32(2)))

	cfg := NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", 4)
	op := openOperator(t, cfg, src)
	_, err = op.Next(context.Background())
	require.ErrorIs(t, err, ErrDataIntegrity)
	require.Contains(t, err.Error(), "got unexpected NULL attribute value from compressed batch")
}

func TestSumRejectsCountMismatch(t *testing.T) {
	temps, err := columnar.EncodeColumn(vectorized.INT32, []interface{}{int32(1), int32(2), int32(3)}, nil)
	require.NoError(t, err)
	src := source.NewMemorySource(columnar.NewBatch(int32(1), nil, nil, temps, int32(2)))

	cfg := NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", 4)
	op := openOperator(t, cfg, src)
	_, err = op.Next(context.Background())
	require.ErrorIs(t, err, ErrDataIntegrity)
}

func TestAggregationConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"unsupported function", NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("max", 4)},
		{"unsupported type", NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", 2)},
		{"unknown column", NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", 9)},
		{"with qualifiers", NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", 4).WithRowQuals(gt(tempVar, intConst(1)))},
		{"with sorted merge", NewConfig().WithColumns(metricsColumns(true)...).WithAggregate("sum", 4).WithSortedMerge(SortKey{Attno: 2})},
		{"with batch sort", NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", 4).WithBatchSort(SortKey{Attno: 2})},
		{"bulk disabled", NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", 4).WithBulkDecompression(false)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewOperator(tt.cfg, source.NewMemorySource()).Open(context.Background())
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func int32Vector(t *testing.T, values ...int32) *vectorized.Vector {
	t.Helper()
	v, err := vectorized.NewVector(vectorized.INT32, len(values), vectorized.NewArena(1024))
	require.NoError(t, err)
	for i, x := range values {
		require.NoError(t, v.Set(i, x))
	}
	return v
}

func TestPartialSumOverflow(t *testing.T) {
	p := partialSum{}
	require.ErrorIs(t, p.addSegment(int64(math.MaxInt64), 2), vectorized.ErrNumericOutOfRange)

	p = partialSum{}
	require.NoError(t, p.addSegment(int32(-4), 3))
	require.Equal(t, int64(-12), p.result())

	// unchecked batch sum, checked running total
	p = partialSum{i: math.MaxInt64 - 5}
	require.ErrorIs(t, p.addVector(int32Vector(t, 3, 3), 1000), vectorized.ErrNumericOutOfRange)

	// a row limit too large for the unchecked sum
	p = partialSum{i: math.MaxInt64 - 5}
	require.ErrorIs(t, p.addVector(int32Vector(t, 3, 3), 1<<40), vectorized.ErrNumericOutOfRange)

	p = partialSum{i: math.MaxInt64 - 6}
	require.NoError(t, p.addVector(int32Vector(t, 3, 3), 1<<40))
	require.Equal(t, int64(math.MaxInt64), p.result())
}

func TestPartialSumNulls(t *testing.T) {
	arena := vectorized.NewArena(1024)

	floats, err := vectorized.NewNullVector(vectorized.FLOAT64, 3, arena)
	require.NoError(t, err)
	p := partialSum{float: true}
	require.NoError(t, p.addVector(floats, 1000))
	require.Nil(t, p.result(), "a float sum over only NULLs is NULL")

	ints, err := vectorized.NewNullVector(vectorized.INT32, 3, arena)
	require.NoError(t, err)
	p = partialSum{}
	require.NoError(t, p.addVector(ints, 1000))
	require.Equal(t, int64(0), p.result())
}

func TestSumMatchesRowSumAtExtremes(t *testing.T) {
	var rows [][]interface{}
	for i := 0; i < 3000; i++ {
		temp := int32(math.MaxInt32)
		if i%3 == 0 {
			temp = math.MinInt32
		}
		rows = append(rows, []interface{}{int32(1 + i/1500), int64(i), nil, temp})
	}
	batches := buildBatches(t, rows, 1000)

	cfg := NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", 4)
	got := aggregate(t, cfg, source.NewMemorySource(batches...))

	var want int64
	for _, r := range drain(t, openOperator(t, NewConfig().WithColumns(metricsColumns(false)...), source.NewMemorySource(batches...))) {
		var err error
		want, err = vectorized.CheckedAddInt64(want, int64(r[3].(int32)))
		require.NoError(t, err)
	}
	require.Equal(t, want, got)
}

// maxSegmentBatches gives n batches whose segment value and row count are
// both MaxInt32. Each contributes just under 2^62.
func maxSegmentBatches(n int) *source.MemorySource {
	batches := make([]*columnar.Batch, n)
	for i := range batches {
		batches[i] = columnar.NewBatch(int32(math.MaxInt32), nil, nil, nil, int32(math.MaxInt32))
	}
	return source.NewMemorySource(batches...)
}

func TestSumOverflowIsFatal(t *testing.T) {
	const contribution = int64(math.MaxInt32) * int64(math.MaxInt32)
	cfg := NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", 1)
	require.Equal(t, 2*contribution, aggregate(t, cfg, maxSegmentBatches(2)))

	var (
		total int64
		err   error
	)
	for i := 0; i < 3 && err == nil; i++ {
		total, err = vectorized.CheckedAddInt64(total, contribution)
	}
	require.ErrorIs(t, err, vectorized.ErrNumericOutOfRange)

	src := maxSegmentBatches(3)
	op := openOperator(t, NewConfig().WithColumns(metricsColumns(false)...).WithAggregate("sum", 1), src)
	_, err = op.Next(context.Background())
	require.ErrorIs(t, err, vectorized.ErrNumericOutOfRange)
	require.Equal(t, 0, op.pool.inUse())

	// the failure is not followed by an end of input
	_, err = op.Next(context.Background())
	require.ErrorIs(t, err, vectorized.ErrNumericOutOfRange)
	require.Equal(t, 3, src.Pulls())

	require.NoError(t, op.Rescan(context.Background()))
	_, err = op.Next(context.Background())
	require.ErrorIs(t, err, vectorized.ErrNumericOutOfRange)
	require.Equal(t, 6, src.Pulls())
}
