package indexer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"vrfLottery/internal/contract"
	"vrfLottery/internal/model"
	"vrfLottery/internal/retry"
	"vrfLottery/internal/storage"
)

// LogSource is the chain access the indexer needs.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for a history sync.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Address           common.Address
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner pulls the logs of one raffle contract from the chain, optionally
// appends them to a sink and decodes them into raffle events.
type Runner struct {
	cfg        RunConfig
	chain      LogSource
	sink       storage.Storage
	decoder    *contract.Decoder
	logger     *zap.Logger
	seen       map[string]struct{}
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner. sink may be nil.
func NewRunner(cfg RunConfig, chain LogSource, sink storage.Storage, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	decoder, err := contract.NewDecoder()
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:        cfg,
		chain:      chain,
		sink:       sink,
		decoder:    decoder,
		logger:     logger,
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}, nil
}

// Run syncs the configured block range and returns the decoded events in
// chain order. Logs that fail to decode are logged and skipped.
func (r *Runner) Run(ctx context.Context) ([]model.RaffleEvent, error) {
	if r.chain == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if r.cfg.BatchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("raffle address is required")
	}

	topicStrings, err := contract.EventTopics()
	if err != nil {
		return nil, err
	}
	topic0, err := ParseTopic0(topicStrings)
	if err != nil {
		return nil, err
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return nil, fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	address := r.cfg.Address.Hex()
	cp, ok, err := r.checkpoint.Load(address)
	if err != nil {
		return nil, err
	}
	if ok && cp.LastProcessedBlock >= from {
		from = cp.LastProcessedBlock + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil, nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	var events []model.RaffleEvent
	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return events, ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To), zap.Uint64("blocks", blockRange.Len()))

		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To, topic0)
		if err != nil {
			return events, fmt.Errorf("filter logs: %w", err)
		}

		ingestedAt := time.Now().UTC()
		records := make([]model.LogRecord, 0, len(logs))
		for _, log := range logs {
			if log.Removed || r.isDuplicate(log) {
				continue
			}

			ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return events, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			records = append(records, toLogRecord(chainIDValue, log, ts, ingestedAt))
		}

		if r.sink != nil {
			if err := r.sink.PutLogBatch(records); err != nil {
				return events, fmt.Errorf("store logs: %w", err)
			}
		}

		for _, record := range records {
			evt, err := r.decoder.Decode(record)
			if err != nil {
				r.logger.Warn("decode log failed",
					zap.Uint64("block_number", record.BlockNumber),
					zap.String("tx_hash", record.TxHash),
					zap.Uint64("log_index", record.LogIndex),
					zap.Error(err),
				)
				continue
			}
			events = append(events, *evt)
		}

		if err := r.checkpoint.Save(address, blockRange.To); err != nil {
			return events, err
		}

		r.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return events, nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64, topic0 []common.Hash) ([]types.Log, error) {
	var logs []types.Log
	err := retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, nil, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, r.cfg.Address, topic0)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, nil, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}

func toLogRecord(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}
}
