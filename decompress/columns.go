package decompress

import (
	"fmt"
	"sort"

	"github.com/rohan-flutterint/timescaledb-core/columnar"
	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// Role tells how the values of a compressed scan column are stored.
type Role int

const (
	// SegmentKey columns hold one value for the whole batch.
	SegmentKey Role = iota
	// CompressedValue columns hold a compressed block of per-row values.
	CompressedValue
	// Count is the number of rows in the batch.
	Count
	// SequenceNumber orders the batches of one segment.
	SequenceNumber
)

func (r Role) String() string {
	switch r {
	case SegmentKey:
		return "segmentby"
	case CompressedValue:
		return "compressed"
	case Count:
		return "count"
	case SequenceNumber:
		return "sequence_num"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Output position sentinels of the metadata columns.
const (
	CountColumnID       = -9
	SequenceNumColumnID = -10
)

// ColumnDescriptor describes one column of the compressed scan.
type ColumnDescriptor struct {
	Name string
	// SourcePos is the index of the column in columnar.Batch.Values.
	SourcePos int
	// OutputPos is the 1-based position in the output row, 0 when the
	// column is not materialized, or one of the metadata sentinels.
	OutputPos int
	Role      Role
	Type      vectorized.DataType
	// ValueBytes is the fixed width of a value, 0 for variable width.
	ValueBytes        int
	BulkDecompression bool
}

// SegmentColumn describes a segmentby column.
func SegmentColumn(name string, sourcePos, outputPos int, dt vectorized.DataType) ColumnDescriptor {
	return ColumnDescriptor{
		Name:       name,
		SourcePos:  sourcePos,
		OutputPos:  outputPos,
		Role:       SegmentKey,
		Type:       dt,
		ValueBytes: dt.Size(),
	}
}

// CompressedColumn describes a compressed column. Bulk decompression is
// supported when the default algorithm of the type has a bulk decoder.
func CompressedColumn(name string, sourcePos, outputPos int, dt vectorized.DataType) ColumnDescriptor {
	return ColumnDescriptor{
		Name:              name,
		SourcePos:         sourcePos,
		OutputPos:         outputPos,
		Role:              CompressedValue,
		Type:              dt,
		ValueBytes:        dt.Size(),
		BulkDecompression: columnar.BulkSupported(dt),
	}
}

func CountColumn(sourcePos int) ColumnDescriptor {
	return ColumnDescriptor{Name: "_ts_meta_count", SourcePos: sourcePos, OutputPos: CountColumnID, Role: Count, Type: vectorized.INT32, ValueBytes: 4}
}

func SequenceColumn(sourcePos int) ColumnDescriptor {
	return ColumnDescriptor{Name: "_ts_meta_sequence_num", SourcePos: sourcePos, OutputPos: SequenceNumColumnID, Role: SequenceNumber, Type: vectorized.INT32, ValueBytes: 4}
}

// columnTable is the validated column set, compressed columns first.
type columnTable struct {
	columns       []ColumnDescriptor
	numCompressed int
	countIdx      int
	seqIdx        int
	width         int // output row width
	byOutput      map[int]int
}

// classifyColumns validates the descriptors and orders them so that all
// compressed columns precede the others.
func classifyColumns(cols []ColumnDescriptor, sortedMerge bool) (*columnTable, error) {
	if len(cols) == 0 {
		return nil, configErrorf("no columns to decompress")
	}
	t := &columnTable{
		columns:  append([]ColumnDescriptor(nil), cols...),
		countIdx: -1,
		seqIdx:   -1,
		byOutput: make(map[int]int),
	}
	sources := make(map[int]string)
	for _, c := range t.columns {
		if c.SourcePos < 0 {
			return nil, configErrorf("column %s has negative source position %d", c.Name, c.SourcePos)
		}
		if other, dup := sources[c.SourcePos]; dup {
			return nil, configErrorf("columns %s and %s share source position %d", other, c.Name, c.SourcePos)
		}
		sources[c.SourcePos] = c.Name

		switch c.Role {
		case Count:
			if c.OutputPos != CountColumnID {
				return nil, configErrorf("count column %s has output position %d", c.Name, c.OutputPos)
			}
		case SequenceNumber:
			if c.OutputPos != SequenceNumColumnID {
				return nil, configErrorf("sequence number column %s has output position %d", c.Name, c.OutputPos)
			}
		case SegmentKey, CompressedValue:
			if c.OutputPos < 0 {
				return nil, configErrorf("column %s has output position %d reserved for metadata", c.Name, c.OutputPos)
			}
			if !c.Type.Valid() {
				return nil, configErrorf("column %s has unknown type %d", c.Name, int(c.Type))
			}
		default:
			return nil, configErrorf("column %s has unknown role %d", c.Name, int(c.Role))
		}
	}

	sort.SliceStable(t.columns, func(i, j int) bool {
		return t.columns[i].Role == CompressedValue && t.columns[j].Role != CompressedValue
	})

	for i, c := range t.columns {
		switch c.Role {
		case CompressedValue:
			t.numCompressed++
		case Count:
			if t.countIdx >= 0 {
				return nil, configErrorf("more than one count column")
			}
			t.countIdx = i
		case SequenceNumber:
			if t.seqIdx >= 0 {
				return nil, configErrorf("more than one sequence number column")
			}
			t.seqIdx = i
		}
		if c.OutputPos > 0 {
			if _, dup := t.byOutput[c.OutputPos]; dup {
				return nil, configErrorf("output position %d is used twice", c.OutputPos)
			}
			t.byOutput[c.OutputPos] = i
			if c.OutputPos > t.width {
				t.width = c.OutputPos
			}
		}
	}
	if t.countIdx < 0 {
		return nil, configErrorf("compressed scan has no count column")
	}
	if sortedMerge && t.seqIdx < 0 {
		return nil, configErrorf("sorted merge needs a sequence number column")
	}
	if !sortedMerge && t.seqIdx >= 0 {
		return nil, configErrorf("sequence number column is only used by sorted merge")
	}
	return t, nil
}

// column returns the descriptor materialized at an output position.
func (t *columnTable) column(outputPos int) (int, *ColumnDescriptor, bool) {
	i, ok := t.byOutput[outputPos]
	if !ok {
		return -1, nil, false
	}
	return i, &t.columns[i], true
}

func (t *columnTable) hasBulkColumn() bool {
	for _, c := range t.columns[:t.numCompressed] {
		if c.BulkDecompression {
			return true
		}
	}
	return false
}

// Buffer header of a decoded vector: the struct plus three slice headers.
const bufferHeaderOverhead = 64 + 3*8

// memoryBudget sizes one slot arena so that a batch of maxRows rows decodes
// without growing it.
func (t *columnTable) memoryBudget(maxRows, limit int, bulk bool) int {
	total := 8192
	if bulk {
		for _, c := range t.columns[:t.numCompressed] {
			if !c.BulkDecompression || c.OutputPos == 0 {
				continue
			}
			width := c.ValueBytes
			if width == 0 {
				width = 16
			}
			total += (maxRows + 64) * width
			total += vectorized.WordsFor(maxRows) * 8
			total += bufferHeaderOverhead
		}
	}
	const page = 4096
	total = (total + page - 1) / page * page
	if total > limit {
		total = limit
	}
	return total
}
