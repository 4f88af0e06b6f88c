package clickhouse

import (
	"context"
	"fmt"
	"time"
)

// VerifyResult summarizes a re-opened export table.
type VerifyResult struct {
	Rows    uint64
	Columns uint64
}

// Verify re-reads the export table and reports its row and column counts.
func (s *Sink) Verify(ctx context.Context) (VerifyResult, error) {
	start := time.Now()
	var err error
	defer func() {
		s.metrics.Observe("verify", err, start)
	}()

	var result VerifyResult
	if result.Rows, err = s.countScalar(ctx,
		fmt.Sprintf("SELECT count() FROM `%s`", s.table)); err != nil {
		return VerifyResult{}, fmt.Errorf("count export rows: %w", err)
	}

	const columnsQuery = `
SELECT count()
FROM system.columns
WHERE database = currentDatabase() AND table = ?`
	if result.Columns, err = s.countScalar(ctx, columnsQuery, s.table); err != nil {
		return VerifyResult{}, fmt.Errorf("count export columns: %w", err)
	}
	return result, nil
}

func (s *Sink) countScalar(ctx context.Context, query string, args ...any) (uint64, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	var count uint64
	if !rows.Next() {
		return 0, fmt.Errorf("empty count result")
	}
	if err = rows.Scan(&count); err != nil {
		return 0, err
	}
	if err = rows.Err(); err != nil {
		return 0, err
	}
	return count, nil
}
