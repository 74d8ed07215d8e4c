package decompress

import (
	"context"
	"io"
	"sort"

	"github.com/rohan-flutterint/timescaledb-core/columnar"
)

// batchSorter reads every upstream batch on the first call and returns them
// ordered by the sort key values of their first row. Batches with equal
// keys keep their arrival order.
type batchSorter struct {
	src     BatchSource
	table   *columnTable
	keys    []keyComparator
	batches []keyedBatch
	pos     int
	loaded  bool
}

type keyedBatch struct {
	batch *columnar.Batch
	first []interface{}
}

func newBatchSorter(src BatchSource, table *columnTable, keys []keyComparator) *batchSorter {
	return &batchSorter{src: src, table: table, keys: keys}
}

func (s *batchSorter) Next(ctx context.Context) (*columnar.Batch, error) {
	if !s.loaded {
		if err := s.load(ctx); err != nil {
			return nil, err
		}
		s.loaded = true
	}
	if s.pos >= len(s.batches) {
		return nil, io.EOF
	}
	b := s.batches[s.pos].batch
	s.batches[s.pos] = keyedBatch{}
	s.pos++
	return b, nil
}

func (s *batchSorter) load(ctx context.Context) error {
	s.batches = s.batches[:0]
	s.pos = 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := s.src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		first, err := s.firstRow(b)
		if err != nil {
			return err
		}
		s.batches = append(s.batches, keyedBatch{batch: b, first: first})
	}
	sort.SliceStable(s.batches, func(i, j int) bool {
		return compareRows(s.keys, s.batches[i].first, s.batches[j].first) < 0
	})
	return nil
}

// firstRow decodes the key columns of row 0. Segment columns give their
// constant; compressed columns are decoded only up to the first value.
func (s *batchSorter) firstRow(b *columnar.Batch) ([]interface{}, error) {
	row := make([]interface{}, s.table.width)
	for _, k := range s.keys {
		_, c, _ := s.table.column(k.idx + 1)
		switch c.Role {
		case SegmentKey:
			v, err := segmentValue(b, c)
			if err != nil {
				return nil, err
			}
			row[k.idx] = v
		case CompressedValue:
			block, err := b.Block(c.SourcePos)
			if err != nil {
				return nil, markIntegrity(err, "column %s", c.Name)
			}
			if block == nil {
				continue
			}
			it, err := columnar.NewRowIterator(block, c.Type)
			if err != nil {
				return nil, markIntegrity(err, "decompressing column %s", c.Name)
			}
			if it.Rows() == 0 {
				continue
			}
			v, err := it.Next()
			if err != nil {
				return nil, markIntegrity(err, "decompressing column %s", c.Name)
			}
			row[k.idx] = v
		}
	}
	return row, nil
}

func (s *batchSorter) Rescan(ctx context.Context) error {
	s.batches = nil
	s.pos = 0
	s.loaded = false
	return s.src.Rescan(ctx)
}

func (s *batchSorter) Close() error {
	s.batches = nil
	return s.src.Close()
}
