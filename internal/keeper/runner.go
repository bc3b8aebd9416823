package keeper

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"vrfLottery/internal/raffle"
	"vrfLottery/internal/retry"
)

// Upkeeper is the automation surface of a raffle.
type Upkeeper interface {
	CheckUpkeep(ctx context.Context) (bool, error)
	PerformUpkeep(ctx context.Context) (*big.Int, error)
}

// RunConfig holds runtime settings for the automation loop.
type RunConfig struct {
	PollInterval time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Runner polls eligibility and closes the round when it is due.
type Runner struct {
	cfg    RunConfig
	target Upkeeper
	logger *zap.Logger
}

func NewRunner(cfg RunConfig, target Upkeeper, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, target: target, logger: logger}
}

// Run polls until ctx is cancelled. Failed ticks are logged and the loop
// carries on.
func (r *Runner) Run(ctx context.Context) error {
	if r.target == nil {
		return fmt.Errorf("upkeep target is nil")
	}
	if r.cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be greater than zero")
	}

	r.logger.Info("keeper start", zap.Duration("poll_interval", r.cfg.PollInterval))
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("upkeep tick failed", zap.Error(err))
		}
	}
}

// Tick runs one check and, when it is positive, one close. It returns the
// request id of a close it performed, or nil.
func (r *Runner) Tick(ctx context.Context) (*big.Int, error) {
	var needed bool
	err := retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, nil, func(ctx context.Context) error {
		var err error
		needed, err = r.target.CheckUpkeep(ctx)
		if err != nil {
			r.logger.Warn("check upkeep failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("check upkeep: %w", err)
	}
	if !needed {
		return nil, nil
	}

	var requestID *big.Int
	err = retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, isUpkeepNotNeeded, func(ctx context.Context) error {
		var err error
		requestID, err = r.target.PerformUpkeep(ctx)
		if err != nil && !isUpkeepNotNeeded(err) {
			r.logger.Warn("perform upkeep failed", zap.Error(err))
		}
		return err
	})
	if isUpkeepNotNeeded(err) {
		r.logger.Debug("upkeep no longer needed", zap.Error(err))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("perform upkeep: %w", err)
	}

	r.logger.Info("round close triggered", zap.String("request_id", requestID.String()))
	return requestID, nil
}

func isUpkeepNotNeeded(err error) bool {
	return errors.Is(err, raffle.ErrUpkeepNotNeeded)
}
