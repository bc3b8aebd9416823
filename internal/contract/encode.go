package contract

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"vrfLottery/internal/model"
	"vrfLottery/internal/raffle"
)

// Encode renders a committed raffle event as the log the contract would
// emit. Local events have no block, so the round is used as block number
// and the tx hash is derived from the event contents.
func Encode(evt raffle.Event, chainID uint64, logIndex uint64) (model.LogRecord, error) {
	parsed, err := RaffleABI()
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("parse raffle abi: %w", err)
	}

	var (
		name    string
		indexed common.Hash
		values  []interface{}
	)
	switch evt.Kind {
	case raffle.EventEntryAccepted:
		name = EventEntryAccepted
		indexed = common.BytesToHash(evt.Player.Bytes())
		values = []interface{}{orZero(evt.Amount)}
	case raffle.EventRoundClosing:
		name = EventRoundClosing
		indexed = common.BigToHash(orZero(evt.RequestID))
		values = []interface{}{big.NewInt(int64(evt.Entrants))}
	case raffle.EventWinnerPicked:
		name = EventWinnerPicked
		indexed = common.BytesToHash(evt.Winner.Bytes())
		values = []interface{}{orZero(evt.Amount), new(big.Int).SetUint64(evt.Round)}
	default:
		return model.LogRecord{}, fmt.Errorf("unsupported event kind: %s", evt.Kind)
	}

	event := parsed.Events[name]
	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("pack %s: %w", name, err)
	}

	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: evt.Round,
		TxHash:      syntheticTxHash(evt, event.ID, data).Hex(),
		LogIndex:    logIndex,
		Address:     evt.Raffle.Hex(),
		Topics:      []string{event.ID.Hex(), indexed.Hex()},
		Data:        hexutil.Encode(data),
		Timestamp:   uint64(evt.Time.Unix()),
		IngestedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

func syntheticTxHash(evt raffle.Event, topic0 common.Hash, data []byte) common.Hash {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(evt.Time.UnixNano()))
	return crypto.Keccak256Hash(evt.Raffle.Bytes(), topic0.Bytes(), ts[:], data)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
