package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/rohan-flutterint/timescaledb-core/columnar"
	"github.com/rohan-flutterint/timescaledb-core/planner"
	"github.com/rohan-flutterint/timescaledb-core/source"
	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

type generateOptions struct {
	devices   int
	rows      int
	batchRows int
	nullEvery int
	step      time.Duration
	start     time.Time
	seed      int64
}

var (
	genOut         string
	genCompression string
	genLevel       int
	genOpts        = generateOptions{start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write synthetic compressed batches of the configured table to a parquet file",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		c, err := loadConfig(v)
		if err != nil {
			return err
		}
		s, err := c.Table.settings()
		if err != nil {
			return err
		}
		compression, err := columnar.ParseCompressionType(genCompression)
		if err != nil {
			return err
		}

		rows, err := generateRows(s, genOpts)
		if err != nil {
			return err
		}
		batches, err := source.NewBatchBuilder(s.ColumnSpecs(), genOpts.batchRows).
			WithCompression(compression, columnar.CompressionLevel(genLevel)).
			Build(rows)
		if err != nil {
			return err
		}
		if err := source.WriteParquetFile(genOut, batches); err != nil {
			return err
		}
		level.Info(logger).Log("msg", "wrote compressed batches", "file", genOut, "rows", len(rows), "batches", len(batches), "compression", compression)
		return nil
	},
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genOut, "out", "o", "batches.parquet", "Output parquet file")
	f.IntVar(&genOpts.devices, "segments", 4, "Number of segments")
	f.IntVar(&genOpts.rows, "rows", 2500, "Rows per segment")
	f.IntVar(&genOpts.batchRows, "batch-rows", 1000, "Maximum rows per compressed batch")
	f.IntVar(&genOpts.nullEvery, "null-every", 37, "Make every nth value of unordered columns NULL; 0 disables")
	f.DurationVar(&genOpts.step, "step", time.Minute, "Interval between consecutive timestamps")
	f.Int64Var(&genOpts.seed, "seed", 1, "Random seed")
	f.StringVar(&genCompression, "compression", "zstd", "Page compression: none, gzip, snappy, zstd, lz4 or brotli")
	f.IntVar(&genLevel, "level", 0, "Page compression level; 0 is the codec default")
}

// generateRows builds rows grouped by segment. The first orderby column
// follows the compression order, later orderby columns are constant and the
// remaining columns are random with periodic NULLs.
func generateRows(s *planner.CompressionSettings, o generateOptions) ([][]interface{}, error) {
	if o.devices <= 0 || o.rows <= 0 {
		return nil, errors.Newf("need at least one segment and one row, got %d and %d", o.devices, o.rows)
	}
	r := rand.New(rand.NewSource(o.seed))
	var ordered string
	var descending bool
	if len(s.OrderBy) > 0 {
		ordered, descending = s.OrderBy[0].Column, s.OrderBy[0].Descending
	}
	rows := make([][]interface{}, 0, o.devices*o.rows)
	for d := 0; d < o.devices; d++ {
		for k := 0; k < o.rows; k++ {
			pos := k
			if descending {
				pos = o.rows - 1 - k
			}
			row := make([]interface{}, len(s.Table))
			for i, c := range s.Table {
				var (
					v   interface{}
					err error
				)
				switch {
				case s.IsSegmentBy(c.Name):
					v, err = segmentValue(c.Type, d)
				case c.Name == ordered:
					v, err = orderedValue(c.Type, pos, o)
				case isOrderBy(s, c.Name):
					v, err = vectorized.Coerce(int64(0), c.Type)
				case o.nullEvery > 0 && k%o.nullEvery == o.nullEvery-1:
					// NULL
				default:
					v, err = randomValue(r, c.Type)
				}
				if err != nil {
					return nil, errors.Wrapf(err, "column %s", c.Name)
				}
				row[i] = v
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func isOrderBy(s *planner.CompressionSettings, name string) bool {
	for _, o := range s.OrderBy {
		if o.Column == name {
			return true
		}
	}
	return false
}

func segmentValue(dt vectorized.DataType, d int) (interface{}, error) {
	switch dt {
	case vectorized.STRING:
		return fmt.Sprintf("dev-%02d", d), nil
	case vectorized.BOOLEAN:
		return d%2 == 1, nil
	}
	return vectorized.Coerce(int64(d+1), dt)
}

func orderedValue(dt vectorized.DataType, k int, o generateOptions) (interface{}, error) {
	switch dt {
	case vectorized.TIMESTAMP:
		return o.start.Add(time.Duration(k) * o.step).UnixMicro(), nil
	case vectorized.DATE:
		return int32(o.start.Unix()/86400) + int32(k), nil
	case vectorized.STRING:
		return fmt.Sprintf("%010d", k), nil
	case vectorized.BOOLEAN:
		return nil, errors.New("boolean columns cannot be ordered")
	}
	return vectorized.Coerce(int64(k), dt)
}

func randomValue(r *rand.Rand, dt vectorized.DataType) (interface{}, error) {
	switch dt {
	case vectorized.FLOAT32, vectorized.FLOAT64:
		return vectorized.Coerce(float64(r.Intn(10000))/100, dt)
	case vectorized.STRING:
		return fmt.Sprintf("s%d", r.Intn(16)), nil
	case vectorized.BOOLEAN:
		return r.Intn(2) == 0, nil
	}
	return vectorized.Coerce(int64(r.Intn(100)), dt)
}
