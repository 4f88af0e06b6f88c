package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scanBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockindex7000",
		Subsystem: "scan",
		Name:      "blocks_total",
		Help:      "Count of blocks read during a diagnostic scan.",
	}, []string{"status"})

	scanBlockDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blockindex7000",
		Subsystem: "scan",
		Name:      "block_duration_seconds",
		Help:      "Duration of reading a single block from disk.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})
)

// Scan tracks metrics for the diagnostic block iterator.
type Scan struct{}

// NewScan creates a Scan metrics collector.
func NewScan() *Scan {
	return &Scan{}
}

// ObserveBlock records a single block read attempt.
func (m Scan) ObserveBlock(err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	scanBlocksTotal.WithLabelValues(status).Inc()
	scanBlockDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
}
