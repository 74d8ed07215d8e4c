package decompress

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohan-flutterint/timescaledb-core/columnar"
	"github.com/rohan-flutterint/timescaledb-core/expr"
	"github.com/rohan-flutterint/timescaledb-core/source"
	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// metrics(device_id int32 segmentby, time timestamp, value float64, temp int32)
var metricsTable = []source.ColumnSpec{
	{Name: "device_id", Type: vectorized.INT32, SegmentBy: true},
	{Name: "time", Type: vectorized.TIMESTAMP},
	{Name: "value", Type: vectorized.FLOAT64},
	{Name: "temp", Type: vectorized.INT32},
}

var (
	deviceVar = &expr.Var{Attno: 1, Name: "device_id", Type: vectorized.INT32}
	timeVar   = &expr.Var{Attno: 2, Name: "time", Type: vectorized.TIMESTAMP}
	valueVar  = &expr.Var{Attno: 3, Name: "value", Type: vectorized.FLOAT64}
	tempVar   = &expr.Var{Attno: 4, Name: "temp", Type: vectorized.INT32}
)

// not a column of the scan
var missingVar = &expr.Var{Attno: 9, Name: "missing", Type: vectorized.INT32}

func metricsColumns(sortedMerge bool) []ColumnDescriptor {
	cols := []ColumnDescriptor{
		SegmentColumn("device_id", 0, 1, vectorized.INT32),
		CompressedColumn("time", 1, 2, vectorized.TIMESTAMP),
		CompressedColumn("value", 2, 3, vectorized.FLOAT64),
		CompressedColumn("temp", 3, 4, vectorized.INT32),
		CountColumn(4),
	}
	if sortedMerge {
		cols = append(cols, SequenceColumn(5))
	}
	return cols
}

func intConst(v int64) *expr.Const {
	return &expr.Const{Value: v, Type: vectorized.INT64}
}

func nullConst() *expr.Const {
	return &expr.Const{Type: vectorized.INT64}
}

func cmp(op expr.Op, l, r expr.Expr) expr.Expr {
	return &expr.OpExpr{Op: op, Left: l, Right: r}
}

func gt(l, r expr.Expr) expr.Expr { return cmp(expr.OpGt, l, r) }
func eq(l, r expr.Expr) expr.Expr { return cmp(expr.OpEq, l, r) }

// deviceRows generates perDevice[i] rows for devices[i], ordered by time
// within each device, with some NULL values and temperatures.
func deviceRows(devices []int32, perDevice []int) [][]interface{} {
	var rows [][]interface{}
	for di, d := range devices {
		for i := 0; i < perDevice[di]; i++ {
			var value interface{} = float64(i%100) / 10
			if i%29 == 0 {
				value = nil
			}
			var temp interface{} = int32((i*7 + int(d)) % 40)
			if i%13 == 0 {
				temp = nil
			}
			rows = append(rows, []interface{}{d, int64(i) * 60, value, temp})
		}
	}
	return rows
}

func buildBatches(t *testing.T, rows [][]interface{}, maxRows int) []*columnar.Batch {
	t.Helper()
	batches, err := source.NewBatchBuilder(metricsTable, maxRows).Build(rows)
	require.NoError(t, err)
	return batches
}

func asRows(rows [][]interface{}) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row(r)
	}
	return out
}

func openOperator(t *testing.T, cfg *Config, src BatchSource) *Operator {
	t.Helper()
	op := NewOperator(cfg, src)
	require.NoError(t, op.Open(context.Background()))
	t.Cleanup(func() { _ = op.Close() })
	return op
}

func drain(t *testing.T, op *Operator) []Row {
	t.Helper()
	var out []Row
	for {
		row, err := op.Next(context.Background())
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, row.Copy())
	}
}

func explainValue(t *testing.T, op *Operator, key string) string {
	t.Helper()
	v, ok := op.Explain().Get(key)
	require.True(t, ok, "explain has no %q", key)
	return v
}
