package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"vrfLottery/internal/model"
)

// MemoryWinners keeps winner history in process memory.
type MemoryWinners struct {
	mu      sync.RWMutex
	records []model.WinnerRecord
}

func NewMemoryWinners() *MemoryWinners {
	return &MemoryWinners{}
}

// PutWinner ignores a second record for the same round.
func (m *MemoryWinners) PutWinner(_ context.Context, rec model.WinnerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if strings.EqualFold(existing.Address, rec.Address) && existing.Round == rec.Round {
			return nil
		}
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *MemoryWinners) ListWinners(_ context.Context, address string, limit int) ([]model.WinnerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.WinnerRecord, 0, len(m.records))
	for _, rec := range m.records {
		if strings.EqualFold(rec.Address, address) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Round > out[j].Round })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
