package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vrfLottery/internal/model"
)

// FileStateStore keeps the raffle snapshot in a local JSON file.
type FileStateStore struct {
	Path string
}

func (s *FileStateStore) LoadSnapshot(_ context.Context, address string) (model.RaffleSnapshot, bool, error) {
	if s == nil || s.Path == "" {
		return model.RaffleSnapshot{}, false, nil
	}

	stat, err := os.Stat(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.RaffleSnapshot{}, false, nil
		}
		return model.RaffleSnapshot{}, false, fmt.Errorf("stat state: %w", err)
	}
	if stat.IsDir() {
		return model.RaffleSnapshot{}, false, fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return model.RaffleSnapshot{}, false, fmt.Errorf("read state: %w", err)
	}

	var snap model.RaffleSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.RaffleSnapshot{}, false, fmt.Errorf("parse state: %w", err)
	}
	if !strings.EqualFold(snap.Address, address) {
		return model.RaffleSnapshot{}, false, nil
	}
	return snap, true, nil
}

func (s *FileStateStore) SaveSnapshot(_ context.Context, snap model.RaffleSnapshot) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
