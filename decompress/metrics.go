package decompress

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics of decompression operators. One
// Metrics value may be shared by many operators.
type Metrics struct {
	BatchesPulled          prometheus.Counter
	RowsEmitted            prometheus.Counter
	RowsFilteredVectorized prometheus.Counter
	RowsFilteredRow        prometheus.Counter
	ConstantFalseScans     prometheus.Counter
	SlotsInUse             prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	batchesPulled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tsdecompress_batches_pulled_total",
		Help: "Compressed batches pulled from upstream scans",
	})

	rowsEmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tsdecompress_rows_emitted_total",
		Help: "Decompressed rows returned to the caller",
	})

	rowsFilteredVectorized := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tsdecompress_rows_filtered_vectorized_total",
		Help: "Rows removed by vectorized qualifiers",
	})

	rowsFilteredRow := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tsdecompress_rows_filtered_row_total",
		Help: "Rows removed by row-at-a-time qualifiers",
	})

	constantFalse := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tsdecompress_constant_false_scans_total",
		Help: "Scans skipped because a qualifier folded to false or NULL",
	})

	slotsInUse := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tsdecompress_batch_slots_in_use",
		Help: "Batch slots currently holding a decompressed batch",
	})

	if reg != nil {
		reg.MustRegister(batchesPulled, rowsEmitted, rowsFilteredVectorized, rowsFilteredRow, constantFalse, slotsInUse)
	}

	return &Metrics{
		BatchesPulled:          batchesPulled,
		RowsEmitted:            rowsEmitted,
		RowsFilteredVectorized: rowsFilteredVectorized,
		RowsFilteredRow:        rowsFilteredRow,
		ConstantFalseScans:     constantFalse,
		SlotsInUse:             slotsInUse,
	}
}
