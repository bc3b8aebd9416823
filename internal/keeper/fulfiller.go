package keeper

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"vrfLottery/internal/raffle"
	"vrfLottery/internal/vrf"
)

// RequestQueue is a coordinator whose outstanding requests can be answered
// locally.
type RequestQueue interface {
	Pending() []*big.Int
	Resume(requestID *big.Int, req raffle.RequestConfig) error
	FundSubscription(subID uint64, amount *big.Int) error
	FulfillRandomWords(ctx context.Context, requestID *big.Int, consumer vrf.Consumer) (vrf.Fulfillment, error)
}

// Consumer is the raffle side of a randomness request.
type Consumer interface {
	vrf.Consumer
	PendingRequest() (*big.Int, raffle.RequestConfig)
}

// FulfillConfig controls the local fulfiller.
type FulfillConfig struct {
	Delay          time.Duration
	SubscriptionID uint64
	// TopUp is added to the subscription when it cannot pay for a
	// fulfillment. Nil or zero disables top-ups.
	TopUp *big.Int
}

// Fulfiller answers pending randomness requests after a delay, standing in
// for the oracle network on development chains.
type Fulfiller struct {
	cfg      FulfillConfig
	queue    RequestQueue
	consumer Consumer
	logger   *zap.Logger
}

func NewFulfiller(cfg FulfillConfig, queue RequestQueue, consumer Consumer, logger *zap.Logger) *Fulfiller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fulfiller{cfg: cfg, queue: queue, consumer: consumer, logger: logger}
}

func (f *Fulfiller) Run(ctx context.Context) error {
	if f.queue == nil || f.consumer == nil {
		return fmt.Errorf("fulfiller requires a request queue and a consumer")
	}
	if f.cfg.Delay <= 0 {
		return fmt.Errorf("fulfill delay must be greater than zero")
	}

	f.logger.Info("fulfiller start",
		zap.Duration("fulfill_delay", f.cfg.Delay),
		zap.Uint64("sub_id", f.cfg.SubscriptionID),
	)
	ticker := time.NewTicker(f.cfg.Delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		f.Tick(ctx)
	}
}

// Tick answers every request pending at the time of the call and returns
// how many were delivered to the consumer. A request the consumer still
// waits for is put back in the queue first, which covers both a restart and
// a callback the consumer rejected.
func (f *Fulfiller) Tick(ctx context.Context) int {
	f.resumeOutstanding()

	delivered := 0
	for _, id := range f.queue.Pending() {
		if ctx.Err() != nil {
			return delivered
		}
		result, err := f.fulfill(ctx, id)
		if err != nil {
			f.logger.Warn("fulfill request failed", zap.String("request_id", id.String()), zap.Error(err))
			continue
		}
		delivered++
		if !result.Success {
			f.logger.Error("consumer callback failed, request will be retried",
				zap.String("request_id", id.String()),
				zap.String("payment", result.Payment.String()),
				zap.Error(result.Err),
			)
		}
	}
	return delivered
}

func (f *Fulfiller) resumeOutstanding() {
	id, req := f.consumer.PendingRequest()
	if id == nil {
		return
	}
	for _, pending := range f.queue.Pending() {
		if pending.Cmp(id) == 0 {
			return
		}
	}
	if err := f.queue.Resume(id, req); err != nil {
		f.logger.Error("resume outstanding request failed", zap.String("request_id", id.String()), zap.Error(err))
		return
	}
	f.logger.Info("outstanding request resumed", zap.String("request_id", id.String()))
}

func (f *Fulfiller) fulfill(ctx context.Context, id *big.Int) (vrf.Fulfillment, error) {
	result, err := f.queue.FulfillRandomWords(ctx, id, f.consumer)
	if !errors.Is(err, vrf.ErrInsufficientBalance) || f.cfg.TopUp == nil || f.cfg.TopUp.Sign() <= 0 {
		return result, err
	}
	if err := f.queue.FundSubscription(f.cfg.SubscriptionID, f.cfg.TopUp); err != nil {
		return vrf.Fulfillment{}, fmt.Errorf("top up subscription %d: %w", f.cfg.SubscriptionID, err)
	}
	f.logger.Info("subscription topped up",
		zap.Uint64("sub_id", f.cfg.SubscriptionID),
		zap.String("amount", f.cfg.TopUp.String()),
	)
	return f.queue.FulfillRandomWords(ctx, id, f.consumer)
}
