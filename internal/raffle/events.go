package raffle

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names a raffle notification.
type EventKind string

const (
	EventEntryAccepted EventKind = "EntryAccepted"
	EventRoundClosing  EventKind = "RoundClosing"
	EventWinnerPicked  EventKind = "WinnerPicked"
)

// Event is emitted after an operation commits. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind   EventKind
	Raffle common.Address
	Round  uint64
	Time   time.Time

	// EntryAccepted
	Player common.Address

	// EntryAccepted: payment. WinnerPicked: prize.
	Amount *big.Int

	// RoundClosing and WinnerPicked
	RequestID *big.Int

	// RoundClosing
	Entrants int

	// WinnerPicked
	Winner common.Address
}

// Listener receives committed raffle events.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) HandleEvent(evt Event) {
	f(evt)
}
