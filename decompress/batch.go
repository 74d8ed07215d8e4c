package decompress

import (
	"io"

	"github.com/rohan-flutterint/timescaledb-core/columnar"
	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

type columnKind int

const (
	columnSkipped  columnKind = iota // not materialized
	columnScalar                     // segment value or an all-NULL column
	columnVector                     // bulk decoded
	columnIterator                   // decoded row by row
)

type columnState struct {
	kind   columnKind
	value  interface{}
	vector *vectorized.Vector
	iter   columnar.RowIterator
}

// batchState is one compressed batch being turned into rows. Columns are
// parallel to the classified column table.
type batchState struct {
	sc      *scanContext
	slot    int
	inUse   bool
	arena   *vectorized.Arena
	columns []columnState

	rows int
	next int // next row to decode
	// filter has one bit per row that passed the vectorized qualifiers;
	// nil when there are none.
	filter []uint64
	row    []interface{}

	seq     int32
	arrival uint64
	// first is row 0 before qualifiers, kept for sorted merge.
	first    []interface{}
	hasFirst bool
}

func newBatchState(sc *scanContext, slot int, arena *vectorized.Arena) *batchState {
	s := &batchState{
		sc:      sc,
		slot:    slot,
		arena:   arena,
		columns: make([]columnState, len(sc.table.columns)),
		row:     make([]interface{}, sc.table.width),
	}
	if sc.sortedMerge {
		s.first = make([]interface{}, sc.table.width)
	}
	return s
}

// load decompresses b into the state. Compressed columns go through the
// bulk decoder when bulk decompression is in effect for them and through a
// row iterator otherwise.
func (s *batchState) load(b *columnar.Batch) error {
	t := s.sc.table
	count, ok, err := b.Int32(t.columns[t.countIdx].SourcePos)
	if err != nil {
		return markIntegrity(err, "reading batch row count")
	}
	if !ok {
		return integrityErrorf("batch row count is NULL")
	}
	if count < 0 || int(count) > s.sc.maxRows {
		return integrityErrorf("batch of %d rows outside the limit of %d rows", count, s.sc.maxRows)
	}
	s.rows = int(count)
	s.next = 0

	if t.seqIdx >= 0 {
		seq, ok, err := b.Int32(t.columns[t.seqIdx].SourcePos)
		if err != nil {
			return markIntegrity(err, "reading batch sequence number")
		}
		if !ok {
			return integrityErrorf("batch sequence number is NULL")
		}
		s.seq = seq
	}

	for i := range t.columns {
		c := &t.columns[i]
		cs := &s.columns[i]
		*cs = columnState{}
		if c.OutputPos <= 0 {
			continue
		}
		switch c.Role {
		case SegmentKey:
			v, err := segmentValue(b, c)
			if err != nil {
				return err
			}
			cs.kind = columnScalar
			cs.value = v
		case CompressedValue:
			block, err := b.Block(c.SourcePos)
			if err != nil {
				return markIntegrity(err, "column %s", c.Name)
			}
			if err := s.openColumn(c, cs, block); err != nil {
				return err
			}
		}
	}

	if len(s.sc.vectorQuals) > 0 {
		s.applyVectorQuals()
	}
	return nil
}

func segmentValue(b *columnar.Batch, c *ColumnDescriptor) (interface{}, error) {
	if c.SourcePos >= len(b.Values) {
		return nil, integrityErrorf("batch has %d columns, no segment column %s at %d", len(b.Values), c.Name, c.SourcePos)
	}
	v := b.Values[c.SourcePos]
	if v == nil {
		return nil, nil
	}
	v, err := vectorized.Coerce(v, c.Type)
	if err != nil {
		return nil, markIntegrity(err, "segment column %s", c.Name)
	}
	return v, nil
}

func (s *batchState) openColumn(c *ColumnDescriptor, cs *columnState, block []byte) error {
	bulk := s.sc.bulk && c.BulkDecompression
	if block == nil {
		// every row of the column is NULL
		if !bulk {
			cs.kind = columnScalar
			return nil
		}
		v, err := vectorized.NewNullVector(c.Type, s.rows, s.arena)
		if err != nil {
			return err
		}
		cs.kind = columnVector
		cs.vector = v
		return nil
	}
	if bulk {
		v, err := columnar.DecodeToVector(block, c.Type, s.arena)
		if err != nil {
			return markIntegrity(err, "decompressing column %s", c.Name)
		}
		if v.Length != s.rows {
			return integrityErrorf("column %s has %d rows, batch count is %d", c.Name, v.Length, s.rows)
		}
		cs.kind = columnVector
		cs.vector = v
		return nil
	}
	it, err := columnar.NewRowIterator(block, c.Type)
	if err != nil {
		return markIntegrity(err, "decompressing column %s", c.Name)
	}
	if it.Rows() != s.rows {
		return integrityErrorf("column %s has %d rows, batch count is %d", c.Name, it.Rows(), s.rows)
	}
	cs.kind = columnIterator
	cs.iter = it
	return nil
}

// applyVectorQuals computes the filter words for the whole batch.
func (s *batchState) applyVectorQuals() {
	s.filter = s.arena.Words(vectorized.WordsFor(s.rows))
	vectorized.SetAll(s.filter, s.rows)
	for _, q := range s.sc.vectorQuals {
		v := s.columns[q.colIdx].vector
		q.kernel(v, s.filter)
		vectorized.AndValidity(s.filter, v)
	}
	passed := vectorized.CountSet(s.filter, s.rows)
	s.sc.metrics.RowsFilteredVectorized.Add(float64(s.rows - passed))
}

// advance moves to the next row passing every qualifier and materializes
// it into s.row. It returns false once the batch is exhausted.
func (s *batchState) advance() (bool, error) {
	for s.next < s.rows {
		i := s.next
		s.next++
		if s.filter != nil && !vectorized.RowPasses(s.filter, i) {
			if err := s.skip(i); err != nil {
				return false, err
			}
			continue
		}
		if err := s.materialize(i); err != nil {
			return false, err
		}
		// sorted merge never has vectorized qualifiers, so row 0 is
		// always materialized here
		if i == 0 && s.first != nil {
			copy(s.first, s.row)
			s.hasFirst = true
		}
		ok, err := s.sc.rowQualsPass(s.row)
		if err != nil {
			return false, err
		}
		if !ok {
			s.sc.metrics.RowsFilteredRow.Inc()
			continue
		}
		return true, nil
	}
	return false, nil
}

func (s *batchState) materialize(i int) error {
	t := s.sc.table
	for ci := range s.columns {
		cs := &s.columns[ci]
		if cs.kind == columnSkipped {
			continue
		}
		pos := t.columns[ci].OutputPos - 1
		switch cs.kind {
		case columnScalar:
			s.row[pos] = cs.value
		case columnVector:
			s.row[pos] = cs.vector.Value(i)
		case columnIterator:
			v, err := cs.iter.Next()
			if err == io.EOF {
				return integrityErrorf("column %s ended at row %d of %d", t.columns[ci].Name, i, s.rows)
			}
			if err != nil {
				return markIntegrity(err, "decompressing column %s", t.columns[ci].Name)
			}
			s.row[pos] = v
		}
	}
	return nil
}

// skip steps the row iterators over row i without building the row.
func (s *batchState) skip(i int) error {
	for ci := range s.columns[:s.sc.table.numCompressed] {
		cs := &s.columns[ci]
		if cs.kind != columnIterator {
			continue
		}
		if _, err := cs.iter.Next(); err != nil {
			if err == io.EOF {
				return integrityErrorf("column %s ended at row %d of %d", s.sc.table.columns[ci].Name, i, s.rows)
			}
			return markIntegrity(err, "decompressing column %s", s.sc.table.columns[ci].Name)
		}
	}
	return nil
}

func (s *batchState) reset() {
	for i := range s.columns {
		s.columns[i] = columnState{}
	}
	clear(s.row)
	if s.first != nil {
		clear(s.first)
	}
	s.hasFirst = false
	s.rows = 0
	s.next = 0
	s.filter = nil
	s.seq = 0
	s.arrival = 0
	s.arena.Reset()
}
