package contract

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	EventEntryAccepted = "EntryAccepted"
	EventRoundClosing  = "RoundClosing"
	EventWinnerPicked  = "WinnerPicked"
)

const raffleABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "player", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "EntryAccepted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "uint256", "name": "requestId", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "entrants", "type": "uint256"}
    ],
    "name": "RoundClosing",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "winner", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "prize", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "round", "type": "uint256"}
    ],
    "name": "WinnerPicked",
    "type": "event"
  },
  {
    "inputs": [{"internalType": "bytes", "name": "", "type": "bytes"}],
    "name": "checkUpkeep",
    "outputs": [
      {"internalType": "bool", "name": "upkeepNeeded", "type": "bool"},
      {"internalType": "bytes", "name": "", "type": "bytes"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getEntranceFee",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getInterval",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getRaffleState",
    "outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getNumberOfPlayers",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "index", "type": "uint256"}],
    "name": "getPlayer",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getRecentWinner",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getLastTimeStamp",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "getBalance",
    "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	raffleABI     abi.ABI
	raffleABIOnce sync.Once
	raffleABIErr  error
)

// RaffleABI returns the parsed raffle ABI.
func RaffleABI() (abi.ABI, error) {
	raffleABIOnce.Do(func() {
		raffleABI, raffleABIErr = abi.JSON(strings.NewReader(raffleABIJSON))
	})
	return raffleABI, raffleABIErr
}

// EventTopics returns the topic0 hashes of all raffle events.
func EventTopics() ([]string, error) {
	parsed, err := RaffleABI()
	if err != nil {
		return nil, err
	}
	return []string{
		parsed.Events[EventEntryAccepted].ID.Hex(),
		parsed.Events[EventRoundClosing].ID.Hex(),
		parsed.Events[EventWinnerPicked].ID.Hex(),
	}, nil
}
