package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goodnatureofminers/blockindex7000-backend/pkg/batcher"
)

func newRowBatcher(s *Sink) *batcher.Batcher[row] {
	// 1000 flushes/s is effectively unthrottled; the limiter exists to
	// keep a misconfigured tiny flush size from hammering the server.
	return batcher.New[row](s.logger, s.insertRows, s.flushSize, s.flushInterval, 1000)
}

// insertRows flushes one batch of export rows.
func (s *Sink) insertRows(ctx context.Context, rows []row) error {
	start := time.Now()
	var err error
	defer func() {
		s.metrics.Observe("insert_rows", err, start)
	}()

	if len(rows) == 0 {
		return nil
	}

	cols := make([]string, 0, len(s.columns)+1)
	cols = append(cols, "`height`")
	for _, name := range s.columns {
		cols = append(cols, fmt.Sprintf("`%s`", name))
	}
	query := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES", s.table, strings.Join(cols, ", "))

	batch, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		err = fmt.Errorf("prepare rows batch: %w", err)
		return err
	}

	for _, r := range rows {
		args := make([]any, 0, len(r.values)+1)
		args = append(args, r.height)
		for _, v := range r.values {
			args = append(args, v)
		}
		if err = batch.Append(args...); err != nil {
			err = fmt.Errorf("append row for height %d: %w", r.height, err)
			return err
		}
	}

	if err = batch.Send(); err != nil {
		err = fmt.Errorf("insert rows: %w", err)
		return err
	}
	return nil
}
