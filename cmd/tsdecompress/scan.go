package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rohan-flutterint/timescaledb-core/decompress"
	"github.com/rohan-flutterint/timescaledb-core/planner"
	"github.com/rohan-flutterint/timescaledb-core/source"
)

var (
	scanQuery   string
	scanParams  []string
	scanExplain bool
	scanStats   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <file or URL>",
	Short: "Run a SELECT over a parquet file of compressed batches",
	Example: `  tsdecompress scan batches.parquet -q "SELECT time, value FROM metrics WHERE temp > 30 ORDER BY time"
  tsdecompress scan https://example.com/batches.parquet -q "SELECT sum(temp) FROM metrics" --explain`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd.Context(), args[0], cmd.OutOrStdout())
	},
}

func init() {
	f := scanCmd.Flags()
	f.StringVarP(&scanQuery, "query", "q", "SELECT * FROM t", "Query to run")
	f.StringArrayVarP(&scanParams, "param", "p", nil, "Parameter value as n=value, repeatable")
	f.BoolVar(&scanExplain, "explain", false, "Print the decompression plan instead of rows")
	f.BoolVar(&scanStats, "stats", false, "Log scan counters when done")
	f.Bool("sorted-merge", true, "Allow sorted merge of compressed batches")
	f.Bool("bulk", true, "Allow bulk decompression")
	f.String("vector-quals", "allow", "Vectorized qualifiers: allow, forbid or only")
	f.Int("max-batch-rows", decompress.DefaultMaxBatchRows, "Row ceiling of one compressed batch")
	for _, name := range []string{"sorted-merge", "bulk", "vector-quals", "max-batch-rows"} {
		_ = v.BindPFlag("scan."+name, f.Lookup(name))
	}
}

func openSource(input string) (*source.ParquetSource, error) {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return source.OpenParquetURL(input)
	}
	return source.OpenParquetFile(input)
}

func runScan(ctx context.Context, input string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger()
	c, err := loadConfig(v)
	if err != nil {
		return err
	}
	s, err := c.Table.settings()
	if err != nil {
		return err
	}
	opts, err := c.Scan.options()
	if err != nil {
		return err
	}
	if opts.Params, err = parseParams(scanParams); err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	opts.Metrics = decompress.NewMetrics(reg)
	opts.Logger = logger

	q, err := planner.ParseQuery(scanQuery, s)
	if err != nil {
		return err
	}
	p, err := planner.NewPlan(q, s, opts)
	if err != nil {
		return err
	}

	src, err := openSource(input)
	if err != nil {
		return err
	}
	src.WithLogger(logger)
	defer src.Close()

	if scanExplain {
		return explain(ctx, p, src, out)
	}
	rows, err := p.Run(ctx, src)
	if err != nil {
		return err
	}
	if err := printRows(out, p.Names, rows); err != nil {
		return err
	}
	level.Info(logger).Log("msg", "scan finished", "strategy", p.Strategy, "rows", len(rows))
	if scanStats {
		logCounters(logger, reg)
	}
	return nil
}

func explain(ctx context.Context, p *planner.Plan, src decompress.BatchSource, out io.Writer) error {
	op := decompress.NewOperator(p.Config, src)
	if err := op.Open(ctx); err != nil {
		return err
	}
	defer op.Close()
	fmt.Fprintf(out, "Strategy: %s\n", p.Strategy)
	fmt.Fprintf(out, "Row sort: %t\n", p.NeedsRowSort)
	_, err := fmt.Fprint(out, op.Explain().String())
	return err
}

func printRows(out io.Writer, names []string, rows [][]interface{}) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(names, "\t"))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func logCounters(logger log.Logger, reg prometheus.Gatherer) {
	families, err := reg.Gather()
	if err != nil {
		level.Warn(logger).Log("msg", "gathering metrics", "err", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			value := m.GetCounter().GetValue()
			if m.GetGauge() != nil {
				value = m.GetGauge().GetValue()
			}
			level.Info(logger).Log("metric", mf.GetName(), "value", value)
		}
	}
}
