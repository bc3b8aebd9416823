package storage

import (
	"context"

	"vrfLottery/internal/model"
)

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}

// StateStore persists the raffle snapshot.
type StateStore interface {
	LoadSnapshot(ctx context.Context, address string) (model.RaffleSnapshot, bool, error)
	SaveSnapshot(ctx context.Context, snap model.RaffleSnapshot) error
}

// WinnerStore keeps the history of paid-out rounds.
type WinnerStore interface {
	PutWinner(ctx context.Context, rec model.WinnerRecord) error
	ListWinners(ctx context.Context, address string, limit int) ([]model.WinnerRecord, error)
}
