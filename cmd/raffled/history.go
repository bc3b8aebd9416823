package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vrfLottery/internal/chain"
	"vrfLottery/internal/config"
	"vrfLottery/internal/contract"
	"vrfLottery/internal/indexer"
	"vrfLottery/internal/model"
	"vrfLottery/internal/storage"
)

func runHistory(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	address, err := indexer.ParseAddress(cfg.Address)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var events []model.RaffleEvent
	if cfg.RPCURL != "" {
		events, err = chainHistory(ctx, cmd, cfg, address, logger)
	} else {
		events, err = journalHistory(cfg.Journal, address.Hex(), logger)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for _, evt := range events {
		if err := enc.Encode(evt); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}
	logger.Info("history complete", zap.Int("events", len(events)))
	return nil
}

func chainHistory(ctx context.Context, cmd *cobra.Command, cfg config.Config, address common.Address, logger *zap.Logger) ([]model.RaffleEvent, error) {
	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	var sink storage.Storage
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		sink = storage.NewJsonlStorage(out)
	}

	runner, err := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Address:           address,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, sink, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("history from chain",
		zap.String("rpc", cfg.RPCURL),
		zap.String("raffle", address.Hex()),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
	)
	return runner.Run(ctx)
}

func journalHistory(path, address string, logger *zap.Logger) ([]model.RaffleEvent, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is required without --rpc")
	}
	decoder, err := contract.NewDecoder()
	if err != nil {
		return nil, err
	}

	records, err := storage.NewJsonlStorage(path).ReadLogs(func(line int, err error) {
		logger.Warn("skip malformed journal line", zap.Int("line", line), zap.Error(err))
	})
	if err != nil {
		return nil, err
	}

	events := make([]model.RaffleEvent, 0, len(records))
	for _, record := range records {
		evt, err := decoder.Decode(record)
		if err != nil {
			logger.Warn("decode journal record failed", zap.String("key", record.Key()), zap.Error(err))
			continue
		}
		if evt.Address != address {
			continue
		}
		events = append(events, *evt)
	}
	return events, nil
}
