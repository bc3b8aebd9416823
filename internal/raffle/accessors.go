package raffle

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Address is the stable identity of the raffle.
func (r *Raffle) Address() common.Address {
	return r.cfg.Address
}

func (r *Raffle) EntranceFee() *big.Int {
	return new(big.Int).Set(r.cfg.EntranceFee)
}

func (r *Raffle) Interval() time.Duration {
	return r.cfg.Interval
}

func (r *Raffle) RequestConfirmations() uint16 {
	return r.cfg.RequestConfirmations
}

// RequestConfig is the randomness request issued when a round closes.
func (r *Raffle) RequestConfig() RequestConfig {
	return RequestConfig{
		KeyHash:              r.cfg.KeyHash,
		SubscriptionID:       r.cfg.SubscriptionID,
		RequestConfirmations: r.cfg.RequestConfirmations,
		CallbackGasLimit:     r.cfg.CallbackGasLimit,
		NumWords:             NumWords,
		Consumer:             r.cfg.Address,
	}
}

func (r *Raffle) State() RoundState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Round is the number of the round currently accepting or awaiting randomness.
func (r *Raffle) Round() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.round
}

// Player returns the entrant at index in the current round.
func (r *Raffle) Player(index int) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.players) {
		return common.Address{}, fmt.Errorf("%w: %d of %d", ErrPlayerIndex, index, len(r.players))
	}
	return r.players[index], nil
}

func (r *Raffle) NumberOfPlayers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

func (r *Raffle) RecentWinner() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recentWinner
}

func (r *Raffle) LastTimeStamp() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastTimestamp
}

// Balance is the pool held for the current round.
func (r *Raffle) Balance() *big.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return new(big.Int).Set(r.balance)
}

// PendingRequest returns the outstanding request id, or nil while open.
func (r *Raffle) PendingRequest() *big.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.pendingRequest == nil {
		return nil
	}
	return new(big.Int).Set(r.pendingRequest)
}
