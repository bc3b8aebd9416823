package service

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"vrfLottery/internal/contract"
	"vrfLottery/internal/model"
	"vrfLottery/internal/raffle"
	"vrfLottery/internal/storage"
)

// Journal appends every committed event to a log sink in the same shape a
// deployed contract would emit it.
type Journal struct {
	sink    storage.Storage
	chainID uint64
	logger  *zap.Logger

	mu       sync.Mutex
	round    uint64
	logIndex uint64
}

// tailReader is a sink whose earlier records can be read back.
type tailReader interface {
	ReadLogs(onError func(line int, err error)) ([]model.LogRecord, error)
}

// NewJournal builds a journal over sink. When the sink already holds
// records, numbering continues after the last one so a resumed round keeps
// unique log indexes.
func NewJournal(sink storage.Storage, chainID uint64, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Journal{sink: sink, chainID: chainID, logger: logger}

	reader, ok := sink.(tailReader)
	if !ok {
		return j, nil
	}
	records, err := reader.ReadLogs(func(line int, err error) {
		logger.Warn("skip malformed journal line", zap.Int("line", line), zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("read journal tail: %w", err)
	}
	if len(records) > 0 {
		last := records[len(records)-1]
		j.round = last.BlockNumber
		j.logIndex = last.LogIndex + 1
	}
	return j, nil
}

// HandleEvent satisfies raffle.Listener. Write failures are logged; the
// event has already been committed.
func (j *Journal) HandleEvent(evt raffle.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if evt.Round != j.round {
		j.round = evt.Round
		j.logIndex = 0
	}

	record, err := contract.Encode(evt, j.chainID, j.logIndex)
	if err != nil {
		j.logger.Error("encode journal event failed", zap.String("event", string(evt.Kind)), zap.Error(err))
		return
	}
	if err := j.sink.PutLogBatch([]model.LogRecord{record}); err != nil {
		j.logger.Error("write journal event failed",
			zap.String("event", string(evt.Kind)),
			zap.Uint64("round", evt.Round),
			zap.Error(err),
		)
		return
	}
	j.logIndex++
}
