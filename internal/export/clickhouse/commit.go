package clickhouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Commit drains the insert pipeline and records the run in export_runs. A
// flush failure anywhere in the run surfaces here and fails the export.
func (s *Sink) Commit(ctx context.Context) error {
	if s.batch == nil {
		return fmt.Errorf("export not begun")
	}
	if err := s.batch.Stop(); err != nil {
		return fmt.Errorf("flush export rows: %w", err)
	}

	start := time.Now()
	var err error
	defer func() {
		s.metrics.Observe("record_run", err, start)
	}()

	const query = `
INSERT INTO export_runs (
	table_name,
	columns,
	row_count,
	started_at,
	finished_at
) VALUES (?, ?, ?, ?, ?)`

	finished := time.Now().UTC()
	if err = s.conn.Exec(ctx, query, s.table, s.columns, s.rowCount.Load(), s.started, finished); err != nil {
		err = fmt.Errorf("record export run: %w", err)
		return err
	}

	s.logger.Info("export committed",
		zap.String("table", s.table),
		zap.Uint64("rows", s.rowCount.Load()),
		zap.Duration("elapsed", finished.Sub(s.started)))
	return nil
}
