package source

import (
	"github.com/cockroachdb/errors"

	"github.com/rohan-flutterint/timescaledb-core/columnar"
	"github.com/rohan-flutterint/timescaledb-core/expr"
	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// SequenceNumStep is the gap between the sequence numbers of consecutive
// batches of one segment.
const SequenceNumStep = 10

// ColumnSpec is one table column of a compressed table.
type ColumnSpec struct {
	Name      string
	Type      vectorized.DataType
	SegmentBy bool
	// Algorithm overrides the default algorithm of the type.
	Algorithm columnar.Algorithm
}

// BatchBuilder compresses rows into batches. The batch layout is the table
// columns in order followed by the row count and the sequence number.
type BatchBuilder struct {
	columns []ColumnSpec
	maxRows int
	opts    *columnar.EncodeOptions
}

func NewBatchBuilder(columns []ColumnSpec, maxRows int) *BatchBuilder {
	return &BatchBuilder{columns: columns, maxRows: maxRows, opts: columnar.NewEncodeOptions()}
}

// WithCompression sets the page compression of compressed blocks.
func (b *BatchBuilder) WithCompression(c columnar.CompressionType, level columnar.CompressionLevel) *BatchBuilder {
	b.opts.WithCompression(c, level)
	return b
}

// CountPos and SequencePos are the batch positions of the metadata columns.
func (b *BatchBuilder) CountPos() int    { return len(b.columns) }
func (b *BatchBuilder) SequencePos() int { return len(b.columns) + 1 }

// Build splits rows into batches. A new batch starts whenever a segmentby
// value changes or the current batch is full; rows are expected to be
// grouped by segment and ordered within it.
func (b *BatchBuilder) Build(rows [][]interface{}) ([]*columnar.Batch, error) {
	if b.maxRows <= 0 {
		return nil, errors.Newf("max rows per batch must be positive, got %d", b.maxRows)
	}
	var (
		out   []*columnar.Batch
		start int
		seq   int32
	)
	for i := 0; i <= len(rows); i++ {
		if i < len(rows) {
			if len(rows[i]) != len(b.columns) {
				return nil, errors.Newf("row %d has %d values, table has %d columns", i, len(rows[i]), len(b.columns))
			}
			if i == start || (i-start < b.maxRows && b.sameSegment(rows[start], rows[i])) {
				continue
			}
		}
		if i == start {
			break
		}
		if start > 0 && !b.sameSegment(rows[start-1], rows[start]) {
			seq = 0
		}
		seq += SequenceNumStep
		batch, err := b.encode(rows[start:i], seq)
		if err != nil {
			return nil, err
		}
		out = append(out, batch)
		start = i
		i-- // row i opens the next batch
	}
	return out, nil
}

func (b *BatchBuilder) sameSegment(x, y []interface{}) bool {
	for i, c := range b.columns {
		if !c.SegmentBy {
			continue
		}
		if x[i] == nil || y[i] == nil {
			if x[i] != y[i] {
				return false
			}
			continue
		}
		if cmp, err := expr.Compare(x[i], y[i]); err != nil || cmp != 0 {
			return false
		}
	}
	return true
}

func (b *BatchBuilder) encode(rows [][]interface{}, seq int32) (*columnar.Batch, error) {
	values := make([]interface{}, len(b.columns)+2)
	for ci, c := range b.columns {
		if c.SegmentBy {
			if rows[0][ci] == nil {
				continue
			}
			v, err := vectorized.Coerce(rows[0][ci], c.Type)
			if err != nil {
				return nil, errors.Wrapf(err, "segmentby column %s", c.Name)
			}
			values[ci] = v
			continue
		}
		column := make([]interface{}, len(rows))
		allNull := true
		for ri, row := range rows {
			column[ri] = row[ci]
			allNull = allNull && row[ci] == nil
		}
		if allNull {
			// NULL block
			continue
		}
		opts := *b.opts
		if c.Algorithm != 0 {
			opts.Algorithm = c.Algorithm
		}
		block, err := columnar.EncodeColumn(c.Type, column, &opts)
		if err != nil {
			return nil, errors.Wrapf(err, "compressing column %s", c.Name)
		}
		values[ci] = block
	}
	values[b.CountPos()] = int32(len(rows))
	values[b.SequencePos()] = seq
	return columnar.NewBatch(values...), nil
}
