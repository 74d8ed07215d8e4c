package decompress

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

func TestClassifyColumnsOrdersCompressedFirst(t *testing.T) {
	table, err := classifyColumns(metricsColumns(true), true)
	require.NoError(t, err)

	var names []string
	for _, c := range table.columns {
		names = append(names, c.Name)
	}
	require.Equal(t, []string{"time", "value", "temp", "device_id", "_ts_meta_count", "_ts_meta_sequence_num"}, names)
	require.Equal(t, 3, table.numCompressed)
	require.Equal(t, 4, table.countIdx)
	require.Equal(t, 5, table.seqIdx)
	require.Equal(t, 4, table.width)

	idx, col, ok := table.column(1)
	require.True(t, ok)
	require.Equal(t, 3, idx)
	require.Equal(t, SegmentKey, col.Role)

	_, _, ok = table.column(CountColumnID)
	require.False(t, ok, "metadata columns are not materialized")
	require.True(t, table.hasBulkColumn())
}

func TestClassifyColumnsRejects(t *testing.T) {
	badRole := metricsColumns(false)
	badRole[0].Role = Role(42)
	badType := metricsColumns(false)
	badType[1].Type = vectorized.DataType(99)
	sharedSource := metricsColumns(false)
	sharedSource[2].SourcePos = 1
	countOutput := metricsColumns(false)
	countOutput[4].OutputPos = 5
	twoCounts := append(metricsColumns(false), CountColumn(7))
	metadataOutput := metricsColumns(false)
	metadataOutput[1].OutputPos = CountColumnID

	for name, cols := range map[string][]ColumnDescriptor{
		"unknown role":    badRole,
		"unknown type":    badType,
		"shared source":   sharedSource,
		"count output":    countOutput,
		"two counts":      twoCounts,
		"metadata output": metadataOutput,
		"negative source": {CompressedColumn("x", -1, 1, vectorized.INT32), CountColumn(1)},
		"no count column": {SegmentColumn("x", 0, 1, vectorized.INT32)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := classifyColumns(cols, false)
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestMemoryBudget(t *testing.T) {
	table, err := classifyColumns(metricsColumns(false), false)
	require.NoError(t, err)

	// three bulk columns of 8, 8 and 4 bytes plus the base, in pages
	require.Equal(t, 32768, table.memoryBudget(1000, DefaultBatchMemoryLimit, true))
	require.Equal(t, 16384, table.memoryBudget(1000, 16384, true))
	require.Equal(t, 8192, table.memoryBudget(1000, DefaultBatchMemoryLimit, false))

	// unreferenced columns are never decoded
	cols := metricsColumns(false)
	cols[1].OutputPos = 0
	cols[2].OutputPos = 0
	table, err = classifyColumns(cols, false)
	require.NoError(t, err)
	require.Equal(t, 16384, table.memoryBudget(1000, DefaultBatchMemoryLimit, true))
}

func TestBulkDisabledUnderSortedMerge(t *testing.T) {
	table, err := classifyColumns(metricsColumns(true), true)
	require.NoError(t, err)
	require.False(t, NewConfig().WithSortedMerge(SortKey{Attno: 2}).bulkEffective(table))
	require.True(t, NewConfig().bulkEffective(table))
	require.False(t, NewConfig().WithBulkDecompression(false).bulkEffective(table))
}

func newTestPool(t *testing.T, capacity int) (*batchPool, *Metrics) {
	t.Helper()
	table, err := classifyColumns(metricsColumns(false), false)
	require.NoError(t, err)
	metrics := NewMetrics(nil)
	sc := &scanContext{table: table, maxRows: DefaultMaxBatchRows, metrics: metrics}
	return newBatchPool(sc, capacity, 4096), metrics
}

func TestPoolHandsOutLowestFreeSlot(t *testing.T) {
	pool, metrics := newTestPool(t, 4)

	a, b, c := pool.acquire(), pool.acquire(), pool.acquire()
	require.Equal(t, []int{0, 1, 2}, []int{a.slot, b.slot, c.slot})
	require.Equal(t, 3, pool.inUse())
	require.Equal(t, 3.0, testutil.ToFloat64(metrics.SlotsInUse))

	pool.release(b)
	require.Equal(t, 1, pool.acquire().slot)
	pool.release(a)
	d := pool.acquire()
	require.Equal(t, 0, d.slot)
	require.Same(t, a, d, "released slots are reused")
	require.Equal(t, 4, pool.capacity())

	e := pool.acquire()
	pool.release(e)
	require.Panics(t, func() { pool.release(e) })
}

func TestPoolDoublesWhenFull(t *testing.T) {
	pool, metrics := newTestPool(t, 2)
	for i := 0; i < 5; i++ {
		s := pool.acquire()
		require.Equal(t, i, s.slot)
	}
	require.Equal(t, 8, pool.capacity())
	require.Equal(t, 5, pool.inUse())

	pool.releaseAll()
	require.Equal(t, 0, pool.inUse())
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.SlotsInUse))

	pool.close()
	require.Equal(t, 0, pool.capacity())
}

func TestKeyComparatorNulls(t *testing.T) {
	for _, desc := range []bool{false, true} {
		first := keyComparator{descending: desc, nullsFirst: true}
		require.Equal(t, -1, first.compare(nil, int64(1)))
		require.Equal(t, 1, first.compare(int64(1), nil))
		require.Equal(t, 0, first.compare(nil, nil))

		last := keyComparator{descending: desc}
		require.Equal(t, 1, last.compare(nil, int64(1)))
		require.Equal(t, -1, last.compare(int64(1), nil))
	}

	asc := keyComparator{}
	desc := keyComparator{descending: true}
	require.Equal(t, -1, asc.compare(int32(1), int64(2)))
	require.Equal(t, 1, desc.compare(int32(1), int64(2)))
}

func TestKeyComparatorCollation(t *testing.T) {
	cols := []ColumnDescriptor{
		SegmentColumn("name", 0, 1, vectorized.STRING),
		CompressedColumn("time", 1, 2, vectorized.TIMESTAMP),
		CountColumn(2),
	}
	table, err := classifyColumns(cols, false)
	require.NoError(t, err)

	bytewise, err := newKeyComparators([]SortKey{{Attno: 1, Collation: "C"}}, table)
	require.NoError(t, err)
	require.Equal(t, 1, compareRows(bytewise, []interface{}{"b"}, []interface{}{"B"}))
	require.Equal(t, 1, compareRows(bytewise, []interface{}{"a"}, []interface{}{"B"}))

	english, err := newKeyComparators([]SortKey{{Attno: 1, Collation: "en"}}, table)
	require.NoError(t, err)
	require.Equal(t, -1, compareRows(english, []interface{}{"a"}, []interface{}{"B"}))

	_, err = newKeyComparators([]SortKey{{Attno: 2, Collation: "en"}}, table)
	require.ErrorIs(t, err, ErrConfiguration)
	_, err = newKeyComparators([]SortKey{{Attno: 1, Collation: "not a tag!"}}, table)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestParseVectorQualMode(t *testing.T) {
	for in, want := range map[string]VectorQualMode{
		"":       VectorQualsAllow,
		"allow":  VectorQualsAllow,
		"FORBID": VectorQualsForbid,
		"only":   VectorQualsOnly,
	} {
		got, err := ParseVectorQualMode(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseVectorQualMode("sometimes")
	require.ErrorIs(t, err, ErrConfiguration)
	require.Equal(t, "only", VectorQualsOnly.String())
	require.Equal(t, "sequence_num", SequenceNumber.String())
}
