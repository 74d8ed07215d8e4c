// Package decompress turns batches of compressed columns back into rows.
//
// An Operator pulls columnar.Batch values from a BatchSource and serves
// one row per Next call. Batches are decompressed one at a time (FIFO), or
// merged through a heap when the scan must return rows in the order the
// batches are compressed in. Simple comparisons against run-time constants
// are evaluated over whole decoded columns, and SUM aggregates can be
// computed without building rows at all.
package decompress

import (
	"context"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/rohan-flutterint/timescaledb-core/columnar"
)

// BatchSource is the upstream compressed scan. Next returns io.EOF after
// the last batch.
type BatchSource interface {
	Next(ctx context.Context) (*columnar.Batch, error)
	Rescan(ctx context.Context) error
	Close() error
}

// Row is an output row indexed by output position minus one. A row
// returned by Next is owned by the operator and is only valid until the
// next call.
type Row []interface{}

// Copy detaches the row from the operator.
func (r Row) Copy() Row {
	return append(Row(nil), r...)
}

// State is the execution state of an Operator.
type State int

const (
	StateInit State = iota
	StateRunning
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateExhausted:
		return "EXHAUSTED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Operator is a decompression scan. It is not safe for concurrent use.
type Operator struct {
	cfg      *Config
	upstream BatchSource
	src      BatchSource // upstream, or the batch sorter wrapping it
	id       uuid.UUID
	logger   log.Logger
	metrics  *Metrics

	state  State
	opened bool
	closed bool

	sc    *scanContext
	quals *preparedQuals
	pool  *batchPool
	queue batchQueue

	agg     *aggregator
	aggSlot *batchState
	aggErr  error

	memory       int
	upstreamDone bool
}

// NewOperator creates an operator reading from src. The configuration is
// checked by Open.
func NewOperator(cfg *Config, src BatchSource) *Operator {
	if cfg == nil {
		cfg = NewConfig()
	}
	id := uuid.New()
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Operator{
		cfg:      cfg,
		upstream: src,
		src:      src,
		id:       id,
		logger:   log.With(logger, "component", "decompress", "scan_id", id.String()),
		metrics:  metrics,
	}
}

// ID identifies the scan in logs and explain output.
func (o *Operator) ID() uuid.UUID {
	return o.id
}

func (o *Operator) State() State {
	return o.state
}

// Open classifies the columns, sizes the batch pool, folds the qualifiers
// and picks the queue strategy. Every configuration problem is reported
// here as ErrConfiguration.
func (o *Operator) Open(ctx context.Context) error {
	if o.closed {
		return errors.New("operator is closed")
	}
	if o.opened {
		return errors.AssertionFailedf("operator is already open")
	}
	cfg := o.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	table, err := classifyColumns(cfg.Columns, cfg.SortedMerge)
	if err != nil {
		return err
	}
	bulk := cfg.bulkEffective(table)

	sc := &scanContext{
		table:       table,
		bulk:        bulk,
		sortedMerge: cfg.SortedMerge,
		maxRows:     cfg.MaxBatchRows,
		params:      cfg.Params,
		metrics:     o.metrics,
	}

	quals := &preparedQuals{}
	if cfg.Aggregate != nil {
		if o.agg, err = newAggregator(cfg, table); err != nil {
			return err
		}
		o.agg.sc = sc
	} else {
		if quals, err = prepareQuals(cfg, table, bulk); err != nil {
			return err
		}
		sc.vectorQuals = quals.vector
		sc.rowQuals = quals.row
	}

	var keys []keyComparator
	if cfg.SortedMerge || cfg.SortBatches {
		if keys, err = newKeyComparators(cfg.SortKeys, table); err != nil {
			return err
		}
	}

	o.memory = table.memoryBudget(cfg.MaxBatchRows, cfg.BatchMemoryLimit, bulk)
	capacity := 1
	if cfg.SortedMerge {
		capacity = cfg.InitialFanIn
	}
	o.sc = sc
	o.quals = quals
	o.pool = newBatchPool(sc, capacity, o.memory)
	if o.agg == nil {
		if cfg.SortedMerge {
			o.queue = newHeapQueue(o.pool, keys, table.width)
		} else {
			o.queue = newFIFOQueue(o.pool)
		}
	}
	if cfg.SortBatches {
		o.src = newBatchSorter(o.upstream, table, keys)
	}
	o.opened = true

	level.Debug(o.logger).Log(
		"msg", "decompression scan opened",
		"queue", o.queueName(),
		"bulk_decompression", bulk,
		"vectorized_quals", len(quals.vector),
		"row_quals", len(quals.row),
		"batch_memory", o.memory,
	)
	o.begin()
	return nil
}

// begin leaves INIT. A constant-false qualifier ends the scan before any
// batch is read.
func (o *Operator) begin() {
	if o.quals.constantFalse {
		o.metrics.ConstantFalseScans.Inc()
		level.Debug(o.logger).Log("msg", "qualifier is constant false, skipping scan")
		o.state = StateExhausted
		return
	}
	o.state = StateRunning
}

// Next returns the next row, or io.EOF when the scan is exhausted. In
// aggregation mode the only row holds the aggregate.
func (o *Operator) Next(ctx context.Context) (Row, error) {
	if !o.opened || o.closed {
		return nil, errors.AssertionFailedf("operator is not open")
	}
	if o.state == StateInit {
		o.begin()
	}
	if o.state == StateExhausted {
		return nil, io.EOF
	}
	if o.agg != nil {
		return o.nextAggregate(ctx)
	}

	if err := o.queue.pop(); err != nil {
		return nil, err
	}
	for !o.upstreamDone && o.queue.needsNextBatch() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := o.src.Next(ctx)
		if err == io.EOF {
			o.upstreamDone = true
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading compressed batch")
		}
		o.metrics.BatchesPulled.Inc()
		if err := o.queue.pushBatch(b); err != nil {
			return nil, err
		}
	}
	row := o.queue.topRow()
	if row == nil {
		o.finish()
		return nil, io.EOF
	}
	o.metrics.RowsEmitted.Inc()
	return row, nil
}

func (o *Operator) nextAggregate(ctx context.Context) (Row, error) {
	if o.aggErr != nil {
		return nil, o.aggErr
	}
	// a slot in use means the result was already returned
	if o.aggSlot != nil {
		o.finish()
		return nil, io.EOF
	}
	o.aggSlot = o.pool.acquire()
	row, err := o.agg.run(ctx, o.src, o.aggSlot, o.metrics)
	if err != nil {
		// the scan stays failed until Rescan
		o.pool.release(o.aggSlot)
		o.aggSlot, o.aggErr = nil, err
		return nil, err
	}
	o.upstreamDone = true
	o.metrics.RowsEmitted.Inc()
	return row, nil
}

func (o *Operator) finish() {
	if o.state != StateExhausted {
		level.Debug(o.logger).Log("msg", "decompression scan exhausted")
	}
	o.state = StateExhausted
}

// Rescan rewinds the operator. The queue and every batch slot are released
// before the upstream scan is restarted.
func (o *Operator) Rescan(ctx context.Context) error {
	if !o.opened || o.closed {
		return errors.AssertionFailedf("operator is not open")
	}
	if o.queue != nil {
		o.queue.reset()
	}
	o.pool.releaseAll()
	o.aggSlot, o.aggErr = nil, nil
	o.upstreamDone = false
	o.state = StateInit
	if err := o.src.Rescan(ctx); err != nil {
		return errors.Wrap(err, "rescanning compressed batches")
	}
	return nil
}

// Close releases every batch slot and closes the upstream scan.
func (o *Operator) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	if o.opened {
		if o.queue != nil {
			o.queue.free()
		}
		o.pool.close()
		o.aggSlot = nil
		level.Debug(o.logger).Log("msg", "decompression scan closed")
	}
	return o.src.Close()
}

func (o *Operator) queueName() string {
	switch {
	case o.agg != nil:
		return "none"
	case o.cfg.SortBatches:
		return o.queue.name() + " with batch sort"
	}
	return o.queue.name()
}
