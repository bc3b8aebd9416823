package raffle

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInsufficientPayment  = errors.New("raffle: insufficient payment")
	ErrRoundNotOpen         = errors.New("raffle: round not open")
	ErrUpkeepNotNeeded      = errors.New("raffle: upkeep not needed")
	ErrUnknownRequest       = errors.New("raffle: unknown request")
	ErrPayoutTransferFailed = errors.New("raffle: payout transfer failed")
	ErrInvalidRandomness    = errors.New("raffle: invalid randomness")
	ErrInvalidConfig        = errors.New("raffle: invalid config")
	ErrPlayerIndex          = errors.New("raffle: player index out of range")
)

// UpkeepNotNeededError reports why a close was refused. It matches
// ErrUpkeepNotNeeded with errors.Is.
type UpkeepNotNeededError struct {
	Balance *big.Int
	Players int
	State   RoundState
}

func (e *UpkeepNotNeededError) Error() string {
	return fmt.Sprintf("%s (balance=%s players=%d state=%s)", ErrUpkeepNotNeeded, e.Balance, e.Players, e.State)
}

func (e *UpkeepNotNeededError) Unwrap() error {
	return ErrUpkeepNotNeeded
}
