package contract

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"vrfLottery/internal/model"
	"vrfLottery/internal/raffle"
)

// Caller executes read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader reads the public state of a deployed raffle.
type Reader struct {
	caller  Caller
	address common.Address
	abi     abi.ABI
}

func NewReader(caller Caller, address common.Address) (*Reader, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is nil")
	}
	parsed, err := RaffleABI()
	if err != nil {
		return nil, fmt.Errorf("parse raffle abi: %w", err)
	}
	return &Reader{caller: caller, address: address, abi: parsed}, nil
}

func (r *Reader) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &r.address, Data: data}
	resp, err := r.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := r.abi.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: no values", method)
	}
	return values, nil
}

func (r *Reader) callBig(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	values, err := r.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func (r *Reader) callAddress(ctx context.Context, method string, args ...interface{}) (common.Address, error) {
	values, err := r.call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

func (r *Reader) EntranceFee(ctx context.Context) (*big.Int, error) {
	return r.callBig(ctx, "getEntranceFee")
}

func (r *Reader) Interval(ctx context.Context) (time.Duration, error) {
	secs, err := r.callBig(ctx, "getInterval")
	if err != nil {
		return 0, err
	}
	return time.Duration(secs.Int64()) * time.Second, nil
}

func (r *Reader) State(ctx context.Context) (raffle.RoundState, error) {
	value, err := r.callBig(ctx, "getRaffleState")
	if err != nil {
		return 0, err
	}
	switch state := raffle.RoundState(value.Uint64()); state {
	case raffle.StateOpen, raffle.StateClosing:
		return state, nil
	default:
		return 0, fmt.Errorf("unknown raffle state %s", value)
	}
}

func (r *Reader) NumberOfPlayers(ctx context.Context) (uint64, error) {
	value, err := r.callBig(ctx, "getNumberOfPlayers")
	if err != nil {
		return 0, err
	}
	return value.Uint64(), nil
}

func (r *Reader) Player(ctx context.Context, index uint64) (common.Address, error) {
	return r.callAddress(ctx, "getPlayer", new(big.Int).SetUint64(index))
}

func (r *Reader) RecentWinner(ctx context.Context) (common.Address, error) {
	return r.callAddress(ctx, "getRecentWinner")
}

func (r *Reader) LastTimeStamp(ctx context.Context) (time.Time, error) {
	value, err := r.callBig(ctx, "getLastTimeStamp")
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(value.Int64(), 0).UTC(), nil
}

func (r *Reader) Balance(ctx context.Context) (*big.Int, error) {
	return r.callBig(ctx, "getBalance")
}

// CheckUpkeep runs the contract's eligibility check.
func (r *Reader) CheckUpkeep(ctx context.Context) (bool, error) {
	values, err := r.call(ctx, "checkUpkeep", []byte{})
	if err != nil {
		return false, err
	}
	needed, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unsupported bool type %T", values[0])
	}
	return needed, nil
}

// Snapshot collects the observable state of the deployed raffle. Players
// are listed up to maxPlayers.
func (r *Reader) Snapshot(ctx context.Context, maxPlayers uint64) (model.RaffleSnapshot, error) {
	state, err := r.State(ctx)
	if err != nil {
		return model.RaffleSnapshot{}, err
	}
	count, err := r.NumberOfPlayers(ctx)
	if err != nil {
		return model.RaffleSnapshot{}, err
	}
	balance, err := r.Balance(ctx)
	if err != nil {
		return model.RaffleSnapshot{}, err
	}
	last, err := r.LastTimeStamp(ctx)
	if err != nil {
		return model.RaffleSnapshot{}, err
	}
	winner, err := r.RecentWinner(ctx)
	if err != nil {
		return model.RaffleSnapshot{}, err
	}

	if maxPlayers > count {
		maxPlayers = count
	}
	players := make([]string, 0, maxPlayers)
	for i := uint64(0); i < maxPlayers; i++ {
		player, err := r.Player(ctx, i)
		if err != nil {
			return model.RaffleSnapshot{}, fmt.Errorf("player %d: %w", i, err)
		}
		players = append(players, player.Hex())
	}

	snap := model.RaffleSnapshot{
		Address:       r.address.Hex(),
		State:         state.String(),
		Players:       players,
		Balance:       balance.String(),
		LastTimestamp: last.Unix(),
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	if winner != (common.Address{}) {
		snap.RecentWinner = winner.Hex()
	}
	return snap, nil
}
