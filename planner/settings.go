// Package planner builds decompression operator configurations from the
// compression settings of a table and a SQL query over it.
package planner

import (
	"github.com/cockroachdb/errors"

	"github.com/rohan-flutterint/timescaledb-core/columnar"
	"github.com/rohan-flutterint/timescaledb-core/decompress"
	"github.com/rohan-flutterint/timescaledb-core/source"
	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// ErrUnknownColumn is returned when a query references a column the table
// does not have.
var ErrUnknownColumn = errors.New("column does not exist")

// ColumnInfo is one column of the uncompressed table.
type ColumnInfo struct {
	Name string
	Type vectorized.DataType
}

// OrderColumn is one ORDER BY element, of a query or of the compression
// settings.
type OrderColumn struct {
	Column     string
	Descending bool
	NullsFirst bool
}

// CompressionSettings describe how a table is compressed: rows are grouped
// by the SegmentBy columns and ordered by OrderBy within a segment.
type CompressionSettings struct {
	Table     []ColumnInfo
	SegmentBy []string
	OrderBy   []OrderColumn
	// Algorithms overrides the default algorithm per column.
	Algorithms map[string]columnar.Algorithm
}

// Validate checks that every settings column exists and that segmentby and
// orderby columns do not overlap.
func (s *CompressionSettings) Validate() error {
	if len(s.Table) == 0 {
		return errors.New("compression settings have no columns")
	}
	seen := make(map[string]bool, len(s.Table))
	for _, c := range s.Table {
		if seen[c.Name] {
			return errors.Newf("column %s is declared twice", c.Name)
		}
		if !c.Type.Valid() {
			return errors.Newf("column %s has unknown type %d", c.Name, int(c.Type))
		}
		seen[c.Name] = true
	}
	segment := make(map[string]bool, len(s.SegmentBy))
	for _, name := range s.SegmentBy {
		if !seen[name] {
			return errors.Wrapf(ErrUnknownColumn, "segmentby column %s", name)
		}
		segment[name] = true
	}
	for _, o := range s.OrderBy {
		if !seen[o.Column] {
			return errors.Wrapf(ErrUnknownColumn, "orderby column %s", o.Column)
		}
		if segment[o.Column] {
			return errors.Newf("column %s is both segmentby and orderby", o.Column)
		}
	}
	for name := range s.Algorithms {
		if !seen[name] {
			return errors.Wrapf(ErrUnknownColumn, "algorithm override for %s", name)
		}
	}
	return nil
}

// Attno returns the 1-based table position of a column.
func (s *CompressionSettings) Attno(name string) (int, bool) {
	for i, c := range s.Table {
		if c.Name == name {
			return i + 1, true
		}
	}
	return 0, false
}

func (s *CompressionSettings) column(attno int) ColumnInfo {
	return s.Table[attno-1]
}

func (s *CompressionSettings) IsSegmentBy(name string) bool {
	for _, seg := range s.SegmentBy {
		if seg == name {
			return true
		}
	}
	return false
}

// ColumnSpecs describes the table for source.BatchBuilder.
func (s *CompressionSettings) ColumnSpecs() []source.ColumnSpec {
	specs := make([]source.ColumnSpec, len(s.Table))
	for i, c := range s.Table {
		specs[i] = source.ColumnSpec{
			Name:      c.Name,
			Type:      c.Type,
			SegmentBy: s.IsSegmentBy(c.Name),
			Algorithm: s.Algorithms[c.Name],
		}
	}
	return specs
}

// CountPos and SequencePos are the batch positions of the metadata
// columns, following the table columns.
func (s *CompressionSettings) CountPos() int    { return len(s.Table) }
func (s *CompressionSettings) SequencePos() int { return len(s.Table) + 1 }

// BuildDecompressionMap describes every compressed column. A column is
// materialized at its table position when it is referenced, and skipped
// otherwise. The sequence number is only part of the map for sorted merge.
func BuildDecompressionMap(s *CompressionSettings, referenced map[string]bool, sortedMerge bool) ([]decompress.ColumnDescriptor, error) {
	for name := range referenced {
		if _, ok := s.Attno(name); !ok {
			return nil, errors.Wrapf(ErrUnknownColumn, "%s", name)
		}
	}
	cols := make([]decompress.ColumnDescriptor, 0, len(s.Table)+2)
	for i, c := range s.Table {
		out := 0
		if referenced[c.Name] {
			out = i + 1
		}
		var d decompress.ColumnDescriptor
		if s.IsSegmentBy(c.Name) {
			d = decompress.SegmentColumn(c.Name, i, out, c.Type)
		} else {
			d = decompress.CompressedColumn(c.Name, i, out, c.Type)
			if alg, ok := s.Algorithms[c.Name]; ok {
				d.BulkDecompression = columnar.GetDecompressAllFunction(alg) != nil
			}
		}
		cols = append(cols, d)
	}
	cols = append(cols, decompress.CountColumn(s.CountPos()))
	if sortedMerge {
		cols = append(cols, decompress.SequenceColumn(s.SequencePos()))
	}
	return cols, nil
}
