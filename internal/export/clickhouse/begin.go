package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Begin creates the per-run table with one Float64 column per expanded name
// and starts the batched insert pipeline. Creation fails if the table
// already exists; a finished export is never silently overwritten.
func (s *Sink) Begin(ctx context.Context, columnNames []string) error {
	start := time.Now()
	var err error
	defer func() {
		s.metrics.Observe("create_table", err, start)
	}()

	if len(columnNames) == 0 {
		err = fmt.Errorf("export needs at least one column")
		return err
	}
	for _, name := range columnNames {
		if !identifierPattern.MatchString(name) {
			err = fmt.Errorf("invalid column name %q", name)
			return err
		}
	}

	defs := make([]string, 0, len(columnNames)+1)
	defs = append(defs, "`height` UInt32")
	for _, name := range columnNames {
		defs = append(defs, fmt.Sprintf("`%s` Float64", name))
	}

	ddl := fmt.Sprintf(
		"CREATE TABLE `%s` (%s) ENGINE = MergeTree ORDER BY height",
		s.table, strings.Join(defs, ", "))
	if err = s.conn.Exec(ctx, ddl); err != nil {
		err = fmt.Errorf("create export table %s: %w", s.table, err)
		return err
	}

	s.columns = columnNames
	s.started = time.Now().UTC()
	s.batch = newRowBatcher(s)
	s.batch.Start(ctx)

	s.logger.Info("export table created",
		zap.String("table", s.table),
		zap.Int("columns", len(columnNames)))
	return nil
}
