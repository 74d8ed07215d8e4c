package decompress

import (
	"context"
	"io"
	"strings"

	"github.com/rohan-flutterint/timescaledb-core/columnar"
	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// aggregator computes SUM over one column directly from compressed
// batches, without building rows.
type aggregator struct {
	sc      *scanContext
	colIdx  int
	float   bool
	maxRows int
}

func newAggregator(cfg *Config, t *columnTable) (*aggregator, error) {
	agg := cfg.Aggregate
	if !strings.EqualFold(agg.Function, "sum") {
		return nil, configErrorf("vectorized aggregation for function %s is not supported", agg.Function)
	}
	if len(cfg.VectorQualCandidates) > 0 || len(cfg.RowQuals) > 0 {
		return nil, configErrorf("vectorized aggregation does not support qualifiers")
	}
	if cfg.SortedMerge || cfg.SortBatches {
		return nil, configErrorf("vectorized aggregation does not support ordered scans")
	}
	idx, col, ok := t.column(agg.Attno)
	if !ok {
		return nil, configErrorf("aggregated column %d is not decompressed", agg.Attno)
	}
	a := &aggregator{colIdx: idx, maxRows: cfg.MaxBatchRows}
	switch col.Type {
	case vectorized.INT16, vectorized.INT32:
	case vectorized.FLOAT32, vectorized.FLOAT64:
		a.float = true
	default:
		return nil, configErrorf("vectorized aggregation for sum(%s) is not supported", col.Type)
	}
	if col.Role == CompressedValue && (!col.BulkDecompression || !cfg.EnableBulkDecompression) {
		return nil, configErrorf("vectorized aggregation needs bulk decompression of column %s", col.Name)
	}
	return a, nil
}

// partialSum accumulates the running total.
type partialSum struct {
	float   bool
	i       int64
	f       float64
	isvalid bool
}

func (p *partialSum) result() interface{} {
	switch {
	case !p.isvalid:
		return nil
	case p.float:
		return p.f
	}
	return p.i
}

// run pulls every batch from src and returns the single result row. slot
// is the one batch state the aggregation decodes into.
func (a *aggregator) run(ctx context.Context, src BatchSource, slot *batchState, metrics *Metrics) ([]interface{}, error) {
	t := slot.sc.table
	col := &t.columns[a.colIdx]
	countCol := &t.columns[t.countIdx]
	sum := partialSum{float: a.float}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		metrics.BatchesPulled.Inc()

		count, countValid, err := b.Int32(countCol.SourcePos)
		if err != nil {
			return nil, markIntegrity(err, "reading batch row count")
		}
		if col.Role == SegmentKey {
			v, err := segmentValue(b, col)
			if err != nil {
				return nil, err
			}
			if v == nil || !countValid {
				continue
			}
			if err := sum.addSegment(v, count); err != nil {
				return nil, err
			}
			continue
		}

		block, err := b.Block(col.SourcePos)
		if err != nil {
			return nil, markIntegrity(err, "column %s", col.Name)
		}
		if block == nil {
			return nil, integrityErrorf("got unexpected NULL attribute value from compressed batch")
		}
		v, err := columnar.DecodeToVector(block, col.Type, slot.arena)
		if err != nil {
			return nil, markIntegrity(err, "decompressing column %s", col.Name)
		}
		if v.Length > a.maxRows || (countValid && v.Length != int(count)) {
			return nil, integrityErrorf("column %s has %d rows, batch count is %d", col.Name, v.Length, count)
		}
		err = sum.addVector(v, a.maxRows)
		slot.arena.Reset()
		if err != nil {
			return nil, err
		}
	}
	return []interface{}{sum.result()}, nil
}

// addSegment adds value × count for a segment column.
func (p *partialSum) addSegment(v interface{}, count int32) error {
	p.isvalid = true
	if p.float {
		f, _ := vectorized.AsFloat64(v)
		p.f += f * float64(count)
		return nil
	}
	i, _ := vectorized.AsInt64(v)
	contribution, err := vectorized.CheckedMulInt64(i, int64(count))
	if err != nil {
		return err
	}
	total, err := vectorized.CheckedAddInt64(p.i, contribution)
	if err != nil {
		return err
	}
	p.i = total
	return nil
}

// addVector folds the sum of one decoded batch into the total. Integer
// batches are summed without checks when the batch row limit makes an
// overflow impossible.
func (p *partialSum) addVector(v *vectorized.Vector, maxRows int) error {
	if p.float {
		s, valid := vectorized.SumFloats(v)
		if valid > 0 {
			p.f += s
			p.isvalid = true
		}
		return nil
	}
	// the integer sum is not NULL once any batch was seen
	p.isvalid = true
	var batchSum int64
	if vectorized.UncheckedSumSafe(v.DataType, maxRows) {
		batchSum, _ = vectorized.SumIntegers(v)
	} else {
		s, _, err := vectorized.SumIntegersChecked(v)
		if err != nil {
			return err
		}
		batchSum = s
	}
	total, err := vectorized.CheckedAddInt64(p.i, batchSum)
	if err != nil {
		return err
	}
	p.i = total
	return nil
}
