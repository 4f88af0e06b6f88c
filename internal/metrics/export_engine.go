// Package metrics exposes application metrics collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	engineBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockindex7000",
		Subsystem: "export_engine",
		Name:      "blocks_total",
		Help:      "Count of blocks processed by the export engine.",
	}, []string{"status"})

	engineBlockDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blockindex7000",
		Subsystem: "export_engine",
		Name:      "block_duration_seconds",
		Help:      "Duration of processing a single block.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	engineRowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blockindex7000",
		Subsystem: "export_engine",
		Name:      "rows_total",
		Help:      "Count of rows emitted to the export sink.",
	})

	engineRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blockindex7000",
		Subsystem: "export_engine",
		Name:      "run_duration_seconds",
		Help:      "Duration of a full export run.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s..~2.3h
	}, []string{"status"})
)

// ExportEngine tracks metrics for the column export pipeline.
type ExportEngine struct{}

// NewExportEngine creates an ExportEngine metrics collector.
func NewExportEngine() *ExportEngine {
	return &ExportEngine{}
}

// ObserveBlock records processing of a single block.
func (m ExportEngine) ObserveBlock(err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	engineBlocksTotal.WithLabelValues(status).Inc()
	engineBlockDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}

// ObserveRows records rows emitted to the sink.
func (m ExportEngine) ObserveRows(n int) {
	engineRowsTotal.Add(float64(n))
}

// ObserveRun records a completed export run.
func (m ExportEngine) ObserveRun(err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	engineRunDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}
