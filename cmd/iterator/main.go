package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btcd/wire"
	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/blockindex7000-backend/internal/blockfile"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/chainindex"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/metrics"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/scan"
	"github.com/goodnatureofminers/blockindex7000-backend/pkg/safe"
)

type config struct {
	BlocksDir  string `long:"blocks-dir" env:"ITERATOR_BLOCKS_DIR" description:"Bitcoin Core blocks directory (holds blk*.dat and xor.dat)" required:"true"`
	IndexPath  string `long:"index-path" env:"ITERATOR_INDEX_PATH" description:"path to the persisted chain index" required:"true"`
	FromHeight int64  `long:"from-height" env:"ITERATOR_FROM_HEIGHT" description:"lowest height to visit" default:"0"`
	ToHeight   int64  `long:"to-height" env:"ITERATOR_TO_HEIGHT" description:"highest height to visit (clipped to tip)" default:"-1"`
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

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("iterator failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	key, err := blockfile.LoadXORKey(cfg.BlocksDir)
	if err != nil {
		return fmt.Errorf("load xor key: %w", err)
	}
	index, err := chainindex.Load(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("load chain index: %w", err)
	}

	lo, err := safe.Uint32(cfg.FromHeight)
	if err != nil {
		return fmt.Errorf("from-height: %w", err)
	}
	hi := uint32(math.MaxUint32)
	if cfg.ToHeight >= 0 {
		if hi, err = safe.Uint32(cfg.ToHeight); err != nil {
			return fmt.Errorf("to-height: %w", err)
		}
	}

	scanner := scan.NewScanner(index, key, logger, metrics.NewScan())
	stats, err := scanner.Descend(ctx, lo, hi, func(height uint32, block *wire.MsgBlock) error {
		logger.Debug("block",
			zap.Uint32("height", height),
			zap.Stringer("hash", block.BlockHash()),
			zap.Int("tx_count", len(block.Transactions)))
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("scan finished",
		zap.Int("visited", stats.Visited),
		zap.Int("skipped", stats.Skipped))
	return nil
}
