// Package clickhouse implements the ClickHouse export sink: one MergeTree
// table per export run, batched inserts, and a bookkeeping record in the
// migration-managed export_runs table.
package clickhouse

import (
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/blockindex7000-backend/pkg/batcher"
)

type (
	Metrics interface {
		Observe(operation string, err error, started time.Time)
	}
)

// identifierPattern constrains table and column names embedded in DDL and
// insert statements. Quantile-expanded names may carry dots (tx_fee_12.5).
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

type row struct {
	height uint32
	values []float64
}

// Sink writes export rows into a dedicated per-run table.
type Sink struct {
	conn          clickhouse.Conn
	table         string
	flushSize     int
	flushInterval time.Duration
	logger        *zap.Logger
	metrics       Metrics

	batch    *batcher.Batcher[row]
	columns  []string
	rowCount atomic.Uint64
	started  time.Time
}

// NewSink opens a ClickHouse connection for one export run targeting table.
func NewSink(dsn, table string, flushSize int, flushInterval time.Duration, metrics Metrics, logger *zap.Logger) (*Sink, error) {
	if dsn == "" {
		return nil, errors.New("clickhouse dsn is required")
	}
	if !identifierPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid export table name %q", table)
	}

	options, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	return &Sink{
		conn:          conn,
		table:         table,
		flushSize:     flushSize,
		flushInterval: flushInterval,
		metrics:       metrics,
		logger:        logger,
	}, nil
}

// Close releases the connection.
func (s *Sink) Close() error {
	return s.conn.Close()
}
