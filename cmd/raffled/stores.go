package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vrfLottery/internal/config"
	"vrfLottery/internal/storage"
	"vrfLottery/internal/storage/postgres"
	"vrfLottery/internal/storage/sqlite"
)

type stores struct {
	states  storage.StateStore
	winners storage.WinnerStore
	close   func()
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, error) {
	switch cfg.Store {
	case "none":
		return stores{close: func() {}}, nil
	case "file":
		return stores{states: &storage.FileStateStore{Path: cfg.StateFile}, close: func() {}}, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return stores{}, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("sqlite store ready", zap.String("path", cfg.SQLitePath))
		return stores{states: db, winners: db, close: func() { _ = db.Close() }}, nil
	case "postgres":
		db, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return stores{}, fmt.Errorf("connect postgres: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return stores{}, err
		}
		logger.Info("postgres store ready")
		return stores{states: db, winners: db, close: db.Close}, nil
	default:
		return stores{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
