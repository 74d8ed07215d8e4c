package decompress

import (
	"strings"

	"github.com/go-kit/log"

	"github.com/rohan-flutterint/timescaledb-core/columnar"
	"github.com/rohan-flutterint/timescaledb-core/expr"
)

const (
	// DefaultMaxBatchRows is the row ceiling of one compressed batch.
	DefaultMaxBatchRows = 1000
	// DefaultBatchMemoryLimit caps the arena of one batch slot.
	DefaultBatchMemoryLimit = 1 << 20
	// DefaultInitialFanIn is the number of slots a sorted merge starts with.
	DefaultInitialFanIn = 16
)

// VectorQualMode controls which qualifiers may be evaluated over vectors.
type VectorQualMode int

const (
	// VectorQualsAllow vectorizes every qualifier that qualifies.
	VectorQualsAllow VectorQualMode = iota
	// VectorQualsForbid evaluates every qualifier row by row.
	VectorQualsForbid
	// VectorQualsOnly fails the scan when a candidate cannot be vectorized.
	VectorQualsOnly
)

func (m VectorQualMode) String() string {
	switch m {
	case VectorQualsForbid:
		return "forbid"
	case VectorQualsOnly:
		return "only"
	}
	return "allow"
}

// ParseVectorQualMode resolves allow, forbid or only.
func ParseVectorQualMode(s string) (VectorQualMode, error) {
	switch strings.ToLower(s) {
	case "", "allow":
		return VectorQualsAllow, nil
	case "forbid":
		return VectorQualsForbid, nil
	case "only":
		return VectorQualsOnly, nil
	}
	return 0, configErrorf("unknown vectorized qual mode %q", s)
}

// DebugOptions are test hooks that force a particular execution shape.
type DebugOptions struct {
	// RequireSortedMerge fails Open unless sorted merge is used.
	RequireSortedMerge bool
	VectorQuals        VectorQualMode
}

// SortKey is one key of the merge order. Attno is an output position.
type SortKey struct {
	Attno      int
	Descending bool
	NullsFirst bool
	// Collation is a BCP 47 tag for string keys; empty or "C" compares
	// bytes.
	Collation string
}

// AggregateSpec asks for a single partial aggregate instead of rows.
type AggregateSpec struct {
	Function string
	// Attno is the output position of the aggregated column.
	Attno int
}

// Config is the plan-time configuration of one operator.
type Config struct {
	Columns []ColumnDescriptor

	// SortKeys is the merge order for SortedMerge, or the batch order for
	// SortBatches.
	SortKeys    []SortKey
	SortedMerge bool
	// SortBatches orders all compressed batches by their first row before
	// they are decompressed. Sorted merge needs that order from upstream.
	SortBatches bool

	// VectorQualCandidates may be evaluated over vectors; RowQuals are
	// always evaluated on materialized rows.
	VectorQualCandidates []expr.Expr
	RowQuals             []expr.Expr
	Params               expr.Params

	Aggregate *AggregateSpec

	EnableBulkDecompression bool
	MaxBatchRows            int
	BatchMemoryLimit        int
	InitialFanIn            int

	Debug   DebugOptions
	Logger  log.Logger
	Metrics *Metrics
}

// NewConfig returns a configuration with the default limits and bulk
// decompression enabled.
func NewConfig() *Config {
	return &Config{
		EnableBulkDecompression: true,
		MaxBatchRows:            DefaultMaxBatchRows,
		BatchMemoryLimit:        DefaultBatchMemoryLimit,
		InitialFanIn:            DefaultInitialFanIn,
		Logger:                  log.NewNopLogger(),
	}
}

func (c *Config) WithColumns(cols ...ColumnDescriptor) *Config {
	c.Columns = cols
	return c
}

// WithSortedMerge merges pre-sorted batches in the given key order.
func (c *Config) WithSortedMerge(keys ...SortKey) *Config {
	c.SortedMerge = true
	c.SortKeys = keys
	return c
}

// WithBatchSort sorts compressed batches by their first row before
// decompressing them. Combined with WithSortedMerge it feeds the merge
// with batches in the order it expects.
func (c *Config) WithBatchSort(keys ...SortKey) *Config {
	c.SortBatches = true
	c.SortKeys = keys
	return c
}

func (c *Config) WithVectorQuals(quals ...expr.Expr) *Config {
	c.VectorQualCandidates = quals
	return c
}

func (c *Config) WithRowQuals(quals ...expr.Expr) *Config {
	c.RowQuals = quals
	return c
}

func (c *Config) WithParams(params expr.Params) *Config {
	c.Params = params
	return c
}

func (c *Config) WithAggregate(function string, attno int) *Config {
	c.Aggregate = &AggregateSpec{Function: function, Attno: attno}
	return c
}

func (c *Config) WithBulkDecompression(enabled bool) *Config {
	c.EnableBulkDecompression = enabled
	return c
}

func (c *Config) WithMaxBatchRows(n int) *Config {
	c.MaxBatchRows = n
	return c
}

func (c *Config) WithBatchMemoryLimit(bytes int) *Config {
	c.BatchMemoryLimit = bytes
	return c
}

func (c *Config) WithInitialFanIn(n int) *Config {
	c.InitialFanIn = n
	return c
}

func (c *Config) WithDebug(d DebugOptions) *Config {
	c.Debug = d
	return c
}

func (c *Config) WithLogger(l log.Logger) *Config {
	c.Logger = l
	return c
}

func (c *Config) WithMetrics(m *Metrics) *Config {
	c.Metrics = m
	return c
}

// Validate checks the limits and the strategy flags. Column, qualifier and
// aggregate checks happen when the operator opens.
func (c *Config) Validate() error {
	if c.MaxBatchRows <= 0 || c.MaxBatchRows > columnar.MaxRowsPerBlock {
		return configErrorf("max batch rows %d outside 1..%d", c.MaxBatchRows, columnar.MaxRowsPerBlock)
	}
	if c.BatchMemoryLimit <= 0 {
		return configErrorf("batch memory limit must be positive, got %d", c.BatchMemoryLimit)
	}
	if c.InitialFanIn <= 0 {
		return configErrorf("initial fan-in must be positive, got %d", c.InitialFanIn)
	}
	if (c.SortedMerge || c.SortBatches) && len(c.SortKeys) == 0 {
		return configErrorf("sort order has no keys")
	}
	if c.Debug.RequireSortedMerge && !c.SortedMerge {
		return configErrorf("sorted merge is required but the plan does not use it")
	}
	if c.Debug.VectorQuals < VectorQualsAllow || c.Debug.VectorQuals > VectorQualsOnly {
		return configErrorf("unknown vectorized qual mode %d", int(c.Debug.VectorQuals))
	}
	return nil
}

// bulkEffective reports whether compressed columns are decoded into
// vectors. Sorted merge keeps many batches in flight and decodes row by
// row.
func (c *Config) bulkEffective(t *columnTable) bool {
	return c.EnableBulkDecompression && !c.SortedMerge && t.hasBulkColumn()
}
