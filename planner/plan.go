package planner

import (
	"context"
	"io"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/rohan-flutterint/timescaledb-core/decompress"
	"github.com/rohan-flutterint/timescaledb-core/expr"
)

// Ordering strategies of a plan.
const (
	StrategyNone        = "none"
	StrategySortedMerge = "sorted merge"
	StrategyBatchSort   = "batch sort"
	StrategyRowSort     = "row sort"
)

// Options tune planning.
type Options struct {
	EnableSortedMerge       bool
	EnableBulkDecompression bool
	VectorQuals             decompress.VectorQualMode
	MaxBatchRows            int
	BatchMemoryLimit        int
	Params                  expr.Params
	Logger                  log.Logger
	Metrics                 *decompress.Metrics
}

// DefaultOptions enables every optimization.
func DefaultOptions() Options {
	return Options{
		EnableSortedMerge:       true,
		EnableBulkDecompression: true,
		MaxBatchRows:            decompress.DefaultMaxBatchRows,
		BatchMemoryLimit:        decompress.DefaultBatchMemoryLimit,
	}
}

// Plan is a decompression operator configuration plus the work left above
// it.
type Plan struct {
	Config *decompress.Config
	// Projection lists the table positions of the output columns.
	Projection []int
	Names      []string
	// NeedsRowSort is set when the operator cannot produce the query
	// order and rows must be sorted after the scan.
	NeedsRowSort bool
	Strategy     string

	order []orderKey
}

type orderKey struct {
	idx        int
	descending bool
	nullsFirst bool
}

// FindVectorizedQuals splits quals into vectorization candidates and row
// quals. A candidate compares a compressed column with an expression that
// is constant for the scan.
func FindVectorizedQuals(quals []expr.Expr, s *CompressionSettings) (candidates, row []expr.Expr) {
	for _, q := range quals {
		if isVectorCandidate(q, s) {
			candidates = append(candidates, q)
		} else {
			row = append(row, q)
		}
	}
	return candidates, row
}

func isVectorCandidate(q expr.Expr, s *CompressionSettings) bool {
	op, ok := q.(*expr.OpExpr)
	if !ok || !op.Op.IsComparison() {
		return false
	}
	v, other := op.Left, op.Right
	if _, isVar := v.(*expr.Var); !isVar {
		v, other = op.Right, op.Left
	}
	col, ok := v.(*expr.Var)
	if !ok || s.IsSegmentBy(col.Name) {
		return false
	}
	// stable calls are folded before the scan starts; parameters are not
	return expr.IsRuntimeConstant(other)
}

// NewPlan configures a decompression scan for q.
func NewPlan(q *Query, s *CompressionSettings, opts Options) (*Plan, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}

	p := &Plan{Strategy: StrategyNone}
	referenced := make(map[string]bool)
	switch {
	case q.Sum != "":
		p.Names = []string{"sum"}
		referenced[q.Sum] = true
	case len(q.Columns) == 0:
		for _, c := range s.Table {
			p.Names = append(p.Names, c.Name)
		}
	default:
		p.Names = q.Columns
	}
	if q.Sum == "" {
		for _, name := range p.Names {
			attno, ok := s.Attno(name)
			if !ok {
				return nil, errors.Wrapf(ErrUnknownColumn, "%s", name)
			}
			p.Projection = append(p.Projection, attno)
			referenced[name] = true
		}
	}
	for _, qual := range q.Quals {
		for _, attno := range expr.Vars(qual) {
			referenced[s.column(attno).Name] = true
		}
	}
	for _, o := range q.OrderBy {
		referenced[o.Column] = true
	}

	cfg := decompress.NewConfig().
		WithBulkDecompression(opts.EnableBulkDecompression).
		WithParams(opts.Params).
		WithDebug(decompress.DebugOptions{VectorQuals: opts.VectorQuals}).
		WithLogger(opts.Logger).
		WithMetrics(opts.Metrics)
	if opts.MaxBatchRows > 0 {
		cfg.WithMaxBatchRows(opts.MaxBatchRows)
	}
	if opts.BatchMemoryLimit > 0 {
		cfg.WithBatchMemoryLimit(opts.BatchMemoryLimit)
	}

	keys := sortKeys(q.OrderBy, s)
	switch {
	case len(q.OrderBy) == 0:
	case opts.EnableSortedMerge && matchesCompressionOrder(q.OrderBy, s):
		cfg.WithSortedMerge(keys...).WithBatchSort(keys...)
		p.Strategy = StrategySortedMerge
	case followsSegments(q.OrderBy, s):
		segments := keys[:segmentPrefix(q.OrderBy, s)]
		cfg.WithBatchSort(segments...)
		p.Strategy = StrategyBatchSort
	default:
		p.NeedsRowSort = true
		p.Strategy = StrategyRowSort
	}
	for _, k := range keys {
		p.order = append(p.order, orderKey{idx: k.Attno - 1, descending: k.Descending, nullsFirst: k.NullsFirst})
	}

	cols, err := BuildDecompressionMap(s, referenced, cfg.SortedMerge)
	if err != nil {
		return nil, err
	}
	cfg.WithColumns(cols...)

	if q.Sum != "" {
		attno, _ := s.Attno(q.Sum)
		cfg.WithAggregate("sum", attno)
	} else {
		candidates, row := FindVectorizedQuals(q.Quals, s)
		cfg.WithVectorQuals(candidates...).WithRowQuals(row...)
	}
	p.Config = cfg

	level.Debug(opts.Logger).Log(
		"msg", "planned decompression scan",
		"strategy", p.Strategy,
		"columns", len(referenced),
		"vector_candidates", len(cfg.VectorQualCandidates),
		"row_quals", len(cfg.RowQuals),
	)
	return p, nil
}

func sortKeys(order []OrderColumn, s *CompressionSettings) []decompress.SortKey {
	keys := make([]decompress.SortKey, len(order))
	for i, o := range order {
		attno, _ := s.Attno(o.Column)
		keys[i] = decompress.SortKey{Attno: attno, Descending: o.Descending, NullsFirst: o.NullsFirst}
	}
	return keys
}

// matchesCompressionOrder reports whether the query order is a prefix of
// the compression order. Batches decode front to back only, so the
// inverted order is left to a row sort.
func matchesCompressionOrder(order []OrderColumn, s *CompressionSettings) bool {
	if len(order) > len(s.OrderBy) {
		return false
	}
	for i, o := range order {
		if o != s.OrderBy[i] {
			return false
		}
	}
	return true
}

// segmentPrefix counts the leading segmentby columns of order.
func segmentPrefix(order []OrderColumn, s *CompressionSettings) int {
	n := 0
	for n < len(order) && s.IsSegmentBy(order[n].Column) {
		n++
	}
	return n
}

// followsSegments reports whether ordering batches by their segment values
// yields the query order. The segment columns must lead; any compressed
// columns after them must follow the compression order forwards, and then
// every segmentby column has to be part of the prefix.
func followsSegments(order []OrderColumn, s *CompressionSettings) bool {
	n := segmentPrefix(order, s)
	if n == 0 {
		return false
	}
	rest := order[n:]
	if len(rest) == 0 {
		return true
	}
	seen := make(map[string]bool, n)
	for _, o := range order[:n] {
		seen[o.Column] = true
	}
	for _, seg := range s.SegmentBy {
		if !seen[seg] {
			return false
		}
	}
	if len(rest) > len(s.OrderBy) {
		return false
	}
	for i, o := range rest {
		if o != s.OrderBy[i] {
			return false
		}
	}
	return true
}

// Run executes the plan over src and returns the projected rows in query
// order.
func (p *Plan) Run(ctx context.Context, src decompress.BatchSource) ([][]interface{}, error) {
	op := decompress.NewOperator(p.Config, src)
	if err := op.Open(ctx); err != nil {
		return nil, err
	}
	defer op.Close()

	var rows [][]interface{}
	for {
		row, err := op.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row.Copy())
	}
	if p.NeedsRowSort {
		var sortErr error
		sort.SliceStable(rows, func(i, j int) bool {
			c, err := p.compare(rows[i], rows[j])
			if err != nil && sortErr == nil {
				sortErr = err
			}
			return c < 0
		})
		if sortErr != nil {
			return nil, errors.Wrap(sortErr, "sorting rows")
		}
	}
	if p.Config.Aggregate != nil {
		return rows, nil
	}
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		projected := make([]interface{}, len(p.Projection))
		for j, attno := range p.Projection {
			projected[j] = row[attno-1]
		}
		out[i] = projected
	}
	return out, nil
}

func (p *Plan) compare(a, b []interface{}) (int, error) {
	for _, k := range p.order {
		x, y := a[k.idx], b[k.idx]
		if x == nil && y == nil {
			continue
		}
		if x == nil || y == nil {
			if (x == nil) == k.nullsFirst {
				return -1, nil
			}
			return 1, nil
		}
		c, err := expr.Compare(x, y)
		if err != nil {
			return 0, err
		}
		if k.descending {
			c = -c
		}
		if c != 0 {
			return c, nil
		}
	}
	return 0, nil
}
