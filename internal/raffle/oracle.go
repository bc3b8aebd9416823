package raffle

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RequestConfig is what the engine sends to the randomness coordinator.
type RequestConfig struct {
	KeyHash              common.Hash
	SubscriptionID       uint64
	RequestConfirmations uint16
	CallbackGasLimit     uint32
	NumWords             uint32
	Consumer             common.Address
}

// Coordinator issues randomness requests. The fulfillment arrives later
// through Raffle.FulfillRandomWords; implementations must not call back
// synchronously from RequestRandomWords.
type Coordinator interface {
	RequestRandomWords(ctx context.Context, req RequestConfig) (*big.Int, error)
}

// Payout moves the prize from the engine to the winner.
type Payout interface {
	Pay(ctx context.Context, to common.Address, amount *big.Int) error
}
