package contract

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"vrfLottery/internal/model"
	"vrfLottery/internal/raffle"
)

var (
	raffleAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	player     = common.HexToAddress("0x2222222222222222222222222222222222222222")
	eventTime  = time.Unix(1700000000, 0).UTC()
)

func TestEncodeDecodeEntryAccepted(t *testing.T) {
	record, err := Encode(raffle.Event{
		Kind:   raffle.EventEntryAccepted,
		Raffle: raffleAddr,
		Round:  3,
		Time:   eventTime,
		Player: player,
		Amount: big.NewInt(10000000000000000),
	}, 31337, 4)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if record.BlockNumber != 3 || record.LogIndex != 4 || record.ChainID != 31337 {
		t.Fatalf("position mismatch: %+v", record)
	}
	if record.Timestamp != uint64(eventTime.Unix()) {
		t.Fatalf("timestamp mismatch: %d", record.Timestamp)
	}

	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if !decoder.CanDecode(record.Topic0()) {
		t.Fatalf("decoder should accept topic0 %s", record.Topic0())
	}

	event, err := decoder.Decode(record)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.EventName != EventEntryAccepted {
		t.Fatalf("event name mismatch: %s", event.EventName)
	}
	entry, ok := event.Decoded.(model.EntryAcceptedData)
	if !ok {
		t.Fatalf("decoded type mismatch")
	}
	if entry.Player != player.Hex() || entry.Amount != "10000000000000000" {
		t.Fatalf("entry mismatch: %+v", entry)
	}
}

func TestEncodeDecodeRoundClosingAndWinner(t *testing.T) {
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	closing, err := Encode(raffle.Event{
		Kind:      raffle.EventRoundClosing,
		Raffle:    raffleAddr,
		Round:     1,
		Time:      eventTime,
		RequestID: big.NewInt(77),
		Entrants:  4,
	}, 31337, 0)
	if err != nil {
		t.Fatalf("encode closing: %v", err)
	}
	event, err := decoder.Decode(closing)
	if err != nil {
		t.Fatalf("decode closing: %v", err)
	}
	data, ok := event.Decoded.(model.RoundClosingData)
	if !ok {
		t.Fatalf("decoded type mismatch")
	}
	if data.RequestID != "77" || data.Entrants != 4 {
		t.Fatalf("closing mismatch: %+v", data)
	}

	picked, err := Encode(raffle.Event{
		Kind:      raffle.EventWinnerPicked,
		Raffle:    raffleAddr,
		Round:     1,
		Time:      eventTime,
		RequestID: big.NewInt(77),
		Amount:    big.NewInt(400),
		Winner:    player,
	}, 31337, 1)
	if err != nil {
		t.Fatalf("encode winner: %v", err)
	}
	event, err = decoder.Decode(picked)
	if err != nil {
		t.Fatalf("decode winner: %v", err)
	}
	winner, ok := event.Decoded.(model.WinnerPickedData)
	if !ok {
		t.Fatalf("decoded type mismatch")
	}
	if winner.Winner != player.Hex() || winner.Prize != "400" || winner.Round != 1 {
		t.Fatalf("winner mismatch: %+v", winner)
	}
	if closing.TxHash == picked.TxHash {
		t.Fatalf("tx hashes should differ")
	}
}

func TestDecodeRejectsMalformedLogs(t *testing.T) {
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if decoder.CanDecode("") || decoder.CanDecode("0x1234") {
		t.Fatalf("unexpected topic accepted")
	}
	if _, err := decoder.Decode(model.LogRecord{}); err == nil {
		t.Fatalf("expected error for missing topics")
	}

	record, err := Encode(raffle.Event{Kind: raffle.EventEntryAccepted, Raffle: raffleAddr, Player: player, Amount: big.NewInt(1)}, 1, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	record.Topics = record.Topics[:1]
	if _, err := decoder.Decode(record); err == nil {
		t.Fatalf("expected error for missing indexed topic")
	}

	if _, err := Encode(raffle.Event{Kind: "Unknown"}, 1, 0); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

type fakeCaller struct {
	outputs map[string][]interface{}
	players []common.Address
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	parsed, err := RaffleABI()
	if err != nil {
		return nil, err
	}
	method, err := parsed.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	if method.Name == "getPlayer" {
		args, err := method.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		index := args[0].(*big.Int).Uint64()
		if index >= uint64(len(f.players)) {
			return nil, fmt.Errorf("execution reverted")
		}
		return method.Outputs.Pack(f.players[index])
	}
	values, ok := f.outputs[method.Name]
	if !ok {
		return nil, fmt.Errorf("no output for %s", method.Name)
	}
	return method.Outputs.Pack(values...)
}

func TestReaderSnapshot(t *testing.T) {
	caller := &fakeCaller{
		outputs: map[string][]interface{}{
			"getEntranceFee":     {big.NewInt(100)},
			"getInterval":        {big.NewInt(30)},
			"getRaffleState":     {uint8(1)},
			"getNumberOfPlayers": {big.NewInt(2)},
			"getRecentWinner":    {common.Address{}},
			"getLastTimeStamp":   {big.NewInt(eventTime.Unix())},
			"getBalance":         {big.NewInt(200)},
			"checkUpkeep":        {false, []byte{}},
		},
		players: []common.Address{player, raffleAddr},
	}

	reader, err := NewReader(caller, raffleAddr)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}

	ctx := context.Background()
	fee, err := reader.EntranceFee(ctx)
	if err != nil || fee.Int64() != 100 {
		t.Fatalf("entrance fee: %v %v", fee, err)
	}
	interval, err := reader.Interval(ctx)
	if err != nil || interval != 30*time.Second {
		t.Fatalf("interval: %v %v", interval, err)
	}
	needed, err := reader.CheckUpkeep(ctx)
	if err != nil || needed {
		t.Fatalf("check upkeep: %v %v", needed, err)
	}

	snap, err := reader.Snapshot(ctx, 10)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.State != "CLOSING" || snap.Balance != "200" || len(snap.Players) != 2 {
		t.Fatalf("snapshot mismatch: %+v", snap)
	}
	if snap.Players[0] != player.Hex() || snap.RecentWinner != "" {
		t.Fatalf("snapshot players mismatch: %+v", snap)
	}
	if snap.LastTimestamp != eventTime.Unix() {
		t.Fatalf("snapshot timestamp mismatch: %d", snap.LastTimestamp)
	}

	if _, err := reader.Player(ctx, 5); err == nil {
		t.Fatalf("expected error for out of range player")
	}
}
