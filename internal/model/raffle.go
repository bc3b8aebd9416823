package model

import "time"

// RaffleSnapshot is the persisted form of a raffle engine.
// Amounts and request ids are decimal strings.
type RaffleSnapshot struct {
	Address          string   `json:"address"`
	State            string   `json:"state"`
	Round            uint64   `json:"round"`
	Players          []string `json:"players"`
	Balance          string   `json:"balance"`
	LastTimestamp    int64    `json:"last_timestamp"`
	PendingRequestID string   `json:"pending_request_id,omitempty"`
	RecentWinner     string   `json:"recent_winner,omitempty"`
	UpdatedAt        string   `json:"updated_at"`
}

// WinnerRecord is one paid-out round.
type WinnerRecord struct {
	Address   string    `json:"address"`
	Round     uint64    `json:"round"`
	Winner    string    `json:"winner"`
	Prize     string    `json:"prize"`
	RequestID string    `json:"request_id"`
	PickedAt  time.Time `json:"picked_at"`
}

// RaffleEvent is a decoded raffle contract log.
type RaffleEvent struct {
	ChainID     uint64      `json:"chain_id"`
	BlockNumber uint64      `json:"block_number"`
	TxHash      string      `json:"tx_hash"`
	LogIndex    uint64      `json:"log_index"`
	Address     string      `json:"address"`
	EventName   string      `json:"event_name"`
	Timestamp   uint64      `json:"timestamp"`
	Decoded     interface{} `json:"decoded"`
}

// EntryAcceptedData is the decoded EntryAccepted payload.
type EntryAcceptedData struct {
	Player string `json:"player"`
	Amount string `json:"amount"`
}

// RoundClosingData is the decoded RoundClosing payload.
type RoundClosingData struct {
	RequestID string `json:"request_id"`
	Entrants  uint64 `json:"entrants"`
}

// WinnerPickedData is the decoded WinnerPicked payload.
type WinnerPickedData struct {
	Winner string `json:"winner"`
	Prize  string `json:"prize"`
	Round  uint64 `json:"round"`
}
