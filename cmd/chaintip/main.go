package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/goodnatureofminers/blockindex7000-backend/internal/coredb"
)

type config struct {
	DataDir string `long:"datadir" env:"CHAINTIP_DATADIR" description:"Bitcoin Core data directory (holds blocks/ and chainstate/)" required:"true"`
}

func main() {
	cfg := config{}

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

	if err := run(cfg, logger); err != nil {
		logger.Fatal("chaintip failed", zap.Error(err))
	}
}

func run(cfg config, logger *zap.Logger) error {
	chainstate, err := coredb.OpenChainstate(filepath.Join(cfg.DataDir, "chainstate"))
	if err != nil {
		return fmt.Errorf("open chainstate: %w", err)
	}
	defer chainstate.Close()

	tipHash, err := chainstate.BestBlockHash()
	if err != nil {
		return fmt.Errorf("read best block hash: %w", err)
	}

	blockIndex, err := coredb.OpenBlockIndex(filepath.Join(cfg.DataDir, "blocks", "index"))
	if err != nil {
		return fmt.Errorf("open block index: %w", err)
	}
	defer blockIndex.Close()

	record, err := blockIndex.BlockRecord(tipHash)
	if err != nil {
		return fmt.Errorf("look up tip record: %w", err)
	}

	logger.Info("chain tip",
		zap.Stringer("hash", tipHash),
		zap.Uint32("height", record.Height),
		zap.Bool("in_active_chain", record.InActiveChain()),
		zap.Uint32("file_number", record.FileNumber),
		zap.Uint32("file_offset", record.FileOffset))
	return nil
}
