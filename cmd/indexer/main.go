package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/blockindex7000-backend/internal/blockfile"
	"github.com/goodnatureofminers/blockindex7000-backend/internal/chaingraph"
)

type config struct {
	BlocksDir string `long:"blocks-dir" env:"INDEXER_BLOCKS_DIR" description:"Bitcoin Core blocks directory (holds blk*.dat and xor.dat)" required:"true"`
	IndexPath string `long:"index-path" env:"INDEXER_INDEX_PATH" description:"output path for the persisted chain index" required:"true"`
	Workers   int    `long:"workers" env:"INDEXER_WORKERS" description:"parallel container scanners" default:"4"`
	Overwrite bool   `long:"overwrite" env:"INDEXER_OVERWRITE" description:"replace an existing index"`
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
		logger.Fatal("indexer failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	if cfg.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if !cfg.Overwrite {
		if _, err := os.Stat(cfg.IndexPath); err == nil {
			return fmt.Errorf("index %s already exists, pass --overwrite to replace it", cfg.IndexPath)
		}
	}

	key, err := blockfile.LoadXORKey(cfg.BlocksDir)
	if err != nil {
		return fmt.Errorf("load xor key: %w", err)
	}
	logger.Info("xor key loaded", zap.Bool("obfuscated", !key.Zero()))

	containers, err := chaingraph.DiscoverContainers(cfg.BlocksDir)
	if err != nil {
		return fmt.Errorf("discover containers: %w", err)
	}
	logger.Info("containers discovered", zap.Int("count", len(containers)))

	index, err := chaingraph.NewBuilder(key, cfg.Workers, logger).Build(ctx, containers)
	if err != nil {
		return fmt.Errorf("build chain index: %w", err)
	}

	if cfg.Overwrite {
		if err := os.RemoveAll(cfg.IndexPath); err != nil {
			return fmt.Errorf("remove previous index: %w", err)
		}
	}
	if err := index.Save(cfg.IndexPath); err != nil {
		return fmt.Errorf("save chain index: %w", err)
	}

	logger.Info("chain index saved",
		zap.String("path", cfg.IndexPath),
		zap.Uint32("tip_height", index.TipHeight()),
		zap.Int("blocks", index.Len()))
	return nil
}
