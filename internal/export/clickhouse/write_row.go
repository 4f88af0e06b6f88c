package clickhouse

import (
	"context"
	"fmt"
)

// WriteRow queues one extracted row for insertion.
func (s *Sink) WriteRow(ctx context.Context, height uint32, values []float64) error {
	if s.batch == nil {
		return fmt.Errorf("export not begun")
	}
	if len(values) != len(s.columns) {
		return fmt.Errorf("row for height %d has %d values, table has %d columns",
			height, len(values), len(s.columns))
	}

	copied := make([]float64, len(values))
	copy(copied, values)
	if err := s.batch.Add(ctx, row{height: height, values: copied}); err != nil {
		return fmt.Errorf("queue row for height %d: %w", height, err)
	}
	s.rowCount.Add(1)
	return nil
}
