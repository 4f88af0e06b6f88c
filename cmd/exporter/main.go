package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/blockindex7000-backend/internal/blockfile"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/chainindex"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/columns"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/export"
	chsink "github.com/goodnatureofminers/blockindex7000-backend/internal/export/clickhouse"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/metrics"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/utxoset"
)

type config struct {
	BlocksDir     string        `long:"blocks-dir" env:"EXPORTER_BLOCKS_DIR" description:"Bitcoin Core blocks directory (holds blk*.dat and xor.dat)" required:"true"`
	IndexPath     string        `long:"index-path" env:"EXPORTER_INDEX_PATH" description:"path to the persisted chain index" required:"true"`
	ClickhouseDSN string        `long:"clickhouse-dsn" env:"EXPORTER_CLICKHOUSE_DSN" description:"ClickHouse DSN"`
	Table         string        `long:"table" env:"EXPORTER_TABLE" description:"name of the export table to create" required:"true"`
	Columns       []string      `long:"column" env:"EXPORTER_COLUMNS" env-delim:"," description:"column spec, repeatable (name or name:q1,q2 for quantile columns)" required:"true"`
	Tracker       bool          `long:"tracker" env:"EXPORTER_TRACKER" description:"track unspent outputs to resolve input values"`
	FlushSize     int           `long:"flush-size" env:"EXPORTER_FLUSH_SIZE" description:"rows per insert batch" default:"1000"`
	FlushInterval time.Duration `long:"flush-interval" env:"EXPORTER_FLUSH_INTERVAL" description:"max delay before a partial batch is flushed" default:"1s"`
	Verify        bool          `long:"verify" env:"EXPORTER_VERIFY" description:"re-open the export table and report counts after the run"`
	MetricsAddr   string        `long:"metrics-addr" env:"EXPORTER_METRICS_ADDR" description:"address for metrics server" default:":2112"`
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	if cfg.ClickhouseDSN == "" {
		logger.Fatal("ClickHouse DSN is required")
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("exporter failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	startMetricsServer(ctx, cfg.MetricsAddr, logger)

	cols, err := columns.Parse(cfg.Columns, cfg.Tracker)
	if err != nil {
		return fmt.Errorf("parse columns: %w", err)
	}

	key, err := blockfile.LoadXORKey(cfg.BlocksDir)
	if err != nil {
		return fmt.Errorf("load xor key: %w", err)
	}
	index, err := chainindex.Load(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("load chain index: %w", err)
	}

	sink, err := chsink.NewSink(cfg.ClickhouseDSN, cfg.Table, cfg.FlushSize, cfg.FlushInterval, metrics.NewClickhouseSink(), logger)
	if err != nil {
		return fmt.Errorf("init sink: %w", err)
	}
	defer func() {
		if closeErr := sink.Close(); closeErr != nil {
			logger.Error("failed to close sink", zap.Error(closeErr))
		}
	}()

	var tracker *utxoset.Tracker
	if cfg.Tracker {
		tracker = utxoset.New()
	}

	engine := export.NewEngine(index, key, cols, tracker, sink, logger, metrics.NewExportEngine())
	if err := engine.Run(ctx); err != nil {
		return fmt.Errorf("export: %w", err)
	}

	if cfg.Verify {
		result, err := sink.Verify(ctx)
		if err != nil {
			return fmt.Errorf("verify export: %w", err)
		}
		logger.Info("export verified",
			zap.String("table", cfg.Table),
			zap.Uint64("rows", result.Rows),
			zap.Uint64("columns", result.Columns))
	}
	return nil
}

func startMetricsServer(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}()
}
