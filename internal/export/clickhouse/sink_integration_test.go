package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/suite"
	tcClickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"go.uber.org/zap"
)

const (
	clickhouseImage = "clickhouse/clickhouse-server:25.11"
)

type recordingMetrics struct {
	mu         sync.Mutex
	operations []string
}

func (m *recordingMetrics) Observe(operation string, _ error, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations = append(m.operations, operation)
}

type SinkSuite struct {
	suite.Suite
	ctx        context.Context
	cancel     context.CancelFunc
	container  *tcClickhouse.ClickHouseContainer
	dsn        string
	testCtx    context.Context
	testCancel context.CancelFunc
	metrics    *recordingMetrics
}

func TestSinkSuite(t *testing.T) {
	suite.Run(t, new(SinkSuite))
}

func (s *SinkSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)

	container, err := tcClickhouse.Run(s.ctx,
		clickhouseImage,
		tcClickhouse.WithUsername("default"),
		tcClickhouse.WithDatabase("default"),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx)
	s.Require().NoError(err)
	s.dsn = dsn
}

func (s *SinkSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *SinkSuite) SetupTest() {
	s.testCtx, s.testCancel = context.WithTimeout(context.Background(), time.Minute)
	s.metrics = &recordingMetrics{}
	s.Require().NoError(applyMigrationsUp(s.dsn))
}

func (s *SinkSuite) TearDownTest() {
	if s.testCancel != nil {
		s.testCancel()
	}
	s.Require().NoError(applyMigrationsDown(s.dsn))
}

func (s *SinkSuite) newSink(table string) *Sink {
	sink, err := NewSink(s.dsn, table, 2, 50*time.Millisecond, s.metrics, zap.NewNop())
	s.Require().NoError(err)
	s.T().Cleanup(func() {
		_ = sink.conn.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS `%s`", table))
		_ = sink.Close()
	})
	return sink
}

func (s *SinkSuite) TestExportRoundTrip() {
	sink := s.newSink("export_round_trip")
	columns := []string{"tx_count", "tx_fee_50"}

	s.Require().NoError(sink.Begin(s.testCtx, columns))
	for height := uint32(0); height < 5; height++ {
		s.Require().NoError(sink.WriteRow(s.testCtx, height, []float64{1, float64(height) * 100}))
	}
	s.Require().NoError(sink.Commit(s.testCtx))

	result, err := sink.Verify(s.testCtx)
	s.Require().NoError(err)
	s.Require().EqualValues(5, result.Rows)
	// height plus one column per expanded name.
	s.Require().EqualValues(len(columns)+1, result.Columns)

	rows, err := sink.conn.Query(s.testCtx,
		"SELECT height, tx_count, `tx_fee_50` FROM export_round_trip ORDER BY height")
	s.Require().NoError(err)
	defer rows.Close()

	var got []uint32
	for rows.Next() {
		var (
			height uint32
			count  float64
			fee    float64
		)
		s.Require().NoError(rows.Scan(&height, &count, &fee))
		s.Require().Equal(float64(1), count)
		s.Require().Equal(float64(height)*100, fee)
		got = append(got, height)
	}
	s.Require().NoError(rows.Err())
	s.Require().Equal([]uint32{0, 1, 2, 3, 4}, got)

	var runCount uint64
	runs, err := sink.conn.Query(s.testCtx,
		"SELECT count() FROM export_runs WHERE table_name = ?", "export_round_trip")
	s.Require().NoError(err)
	defer runs.Close()
	s.Require().True(runs.Next())
	s.Require().NoError(runs.Scan(&runCount))
	s.Require().EqualValues(1, runCount)
}

func (s *SinkSuite) TestBeginRejectsExistingTable() {
	first := s.newSink("export_taken")
	s.Require().NoError(first.Begin(s.testCtx, []string{"tx_count"}))
	s.Require().NoError(first.Commit(s.testCtx))

	second := s.newSink("export_taken")
	s.Require().Error(second.Begin(s.testCtx, []string{"tx_count"}))
}

func (s *SinkSuite) TestBeginRejectsBadColumnName() {
	sink := s.newSink("export_bad_column")
	s.Require().Error(sink.Begin(s.testCtx, []string{"tx_count; DROP TABLE export_runs"}))
}

func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working dir: %w", err)
	}

	for {
		if _, statErr := os.Stat(filepath.Join(dir, "go.mod")); statErr == nil {
			return dir, nil
		}
		next := filepath.Dir(dir)
		if next == dir {
			return "", fmt.Errorf("go.mod not found from %s", dir)
		}
		dir = next
	}
}

func applyMigrationsUp(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func applyMigrationsDown(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

func newMigrator(dsn string) (*migrate.Migrate, error) {
	root, err := moduleRoot()
	if err != nil {
		return nil, err
	}

	sourceURL := fmt.Sprintf("file://%s", filepath.Join(root, "migrations", "clickhouse"))
	m, err := migrate.New(sourceURL, withMultiStatement(dsn))
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return m, nil
}

func withMultiStatement(dsn string) string {
	if strings.Contains(dsn, "x-multi-statement=") {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + "x-multi-statement=true"
}
