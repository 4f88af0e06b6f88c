package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	clickhouseSinkRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockindex7000",
		Subsystem: "clickhouse_sink",
		Name:      "operations_total",
		Help:      "Count of sink operations.",
	}, []string{"operation", "status"})
	clickhouseSinkRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blockindex7000",
		Subsystem: "clickhouse_sink",
		Name:      "operation_duration_seconds",
		Help:      "Duration of sink operations.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30},
	}, []string{"operation", "status"})
)

// ClickhouseSink tracks metrics for ClickHouse sink operations.
type ClickhouseSink struct{}

// NewClickhouseSink creates a ClickhouseSink metrics collector.
func NewClickhouseSink() *ClickhouseSink {
	return &ClickhouseSink{}
}

// Observe records duration and status of a sink operation.
func (m ClickhouseSink) Observe(operation string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	clickhouseSinkRequestsTotal.WithLabelValues(operation, status).Inc()
	clickhouseSinkRequestDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
