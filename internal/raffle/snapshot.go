package raffle

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vrfLottery/internal/model"
)

// Snapshot captures the mutable state for persistence.
func (r *Raffle) Snapshot() model.RaffleSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	players := make([]string, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p.Hex())
	}

	snap := model.RaffleSnapshot{
		Address:       r.cfg.Address.Hex(),
		State:         r.state.String(),
		Round:         r.round,
		Players:       players,
		Balance:       r.balance.String(),
		LastTimestamp: r.lastTimestamp.Unix(),
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	if r.pendingRequest != nil {
		snap.PendingRequestID = r.pendingRequest.String()
	}
	if r.recentWinner != (common.Address{}) {
		snap.RecentWinner = r.recentWinner.Hex()
	}
	return snap
}

// Restore replaces the mutable state with snap after validating it
// against the engine's configuration and invariants.
func (r *Raffle) Restore(snap model.RaffleSnapshot) error {
	if !common.IsHexAddress(snap.Address) || common.HexToAddress(snap.Address) != r.cfg.Address {
		return fmt.Errorf("snapshot address %s does not match raffle %s", snap.Address, r.cfg.Address.Hex())
	}

	state, err := ParseRoundState(snap.State)
	if err != nil {
		return fmt.Errorf("snapshot state: %w", err)
	}

	players := make([]common.Address, 0, len(snap.Players))
	for _, p := range snap.Players {
		if !common.IsHexAddress(p) {
			return fmt.Errorf("snapshot player: invalid address %s", p)
		}
		players = append(players, common.HexToAddress(p))
	}

	balance, ok := new(big.Int).SetString(strings.TrimSpace(snap.Balance), 10)
	if !ok || balance.Sign() < 0 {
		return fmt.Errorf("snapshot balance: invalid amount %q", snap.Balance)
	}
	minimum := new(big.Int).Mul(r.cfg.EntranceFee, big.NewInt(int64(len(players))))
	if balance.Cmp(minimum) < 0 {
		return fmt.Errorf("snapshot balance %s below %d entries at fee %s", balance, len(players), r.cfg.EntranceFee)
	}
	if len(players) == 0 && balance.Sign() != 0 {
		return fmt.Errorf("snapshot balance %s without players", balance)
	}

	var pending *big.Int
	if snap.PendingRequestID != "" {
		pending, ok = new(big.Int).SetString(snap.PendingRequestID, 10)
		if !ok {
			return fmt.Errorf("snapshot pending request: invalid id %q", snap.PendingRequestID)
		}
	}

	switch state {
	case StateOpen:
		if pending != nil {
			return fmt.Errorf("snapshot is open with pending request %s", pending)
		}
	case StateClosing:
		if pending == nil {
			return fmt.Errorf("snapshot is closing without pending request")
		}
		if len(players) == 0 {
			return fmt.Errorf("snapshot is closing without players")
		}
	}

	var winner common.Address
	if snap.RecentWinner != "" {
		if !common.IsHexAddress(snap.RecentWinner) {
			return fmt.Errorf("snapshot recent winner: invalid address %s", snap.RecentWinner)
		}
		winner = common.HexToAddress(snap.RecentWinner)
	}

	round := snap.Round
	if round == 0 {
		round = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.round = round
	r.players = players
	r.balance = balance
	r.lastTimestamp = time.Unix(snap.LastTimestamp, 0).UTC()
	r.pendingRequest = pending
	r.recentWinner = winner
	return nil
}
