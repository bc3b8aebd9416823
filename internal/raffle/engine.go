package raffle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const (
	// DefaultRequestConfirmations is the block confirmations requested from the coordinator.
	DefaultRequestConfirmations uint16 = 3
	// NumWords is the number of random words requested per close. Only the first is used.
	NumWords uint32 = 1
)

// Config holds the immutable construction parameters of a raffle.
type Config struct {
	Address              common.Address
	EntranceFee          *big.Int
	Interval             time.Duration
	KeyHash              common.Hash
	SubscriptionID       uint64
	CallbackGasLimit     uint32
	RequestConfirmations uint16
}

// Deps are the external collaborators of the engine.
type Deps struct {
	Coordinator Coordinator
	Payout      Payout
	Logger      *zap.Logger
	Listeners   []Listener
}

// Raffle is the entry/closing/selection/payout state machine.
// Every mutating operation holds the write lock for its full duration, so
// operations never interleave.
type Raffle struct {
	cfg         Config
	coordinator Coordinator
	payout      Payout
	logger      *zap.Logger
	listeners   []Listener

	mu             sync.RWMutex
	state          RoundState
	round          uint64
	players        []common.Address
	balance        *big.Int
	lastTimestamp  time.Time
	pendingRequest *big.Int
	recentWinner   common.Address
}

// New builds a raffle whose first round starts at start.
func New(cfg Config, deps Deps, start time.Time) (*Raffle, error) {
	if cfg.EntranceFee == nil || cfg.EntranceFee.Sign() <= 0 {
		return nil, fmt.Errorf("%w: entrance fee must be positive", ErrInvalidConfig)
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("%w: interval must not be negative", ErrInvalidConfig)
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("%w: coordinator is nil", ErrInvalidConfig)
	}
	if deps.Payout == nil {
		return nil, fmt.Errorf("%w: payout is nil", ErrInvalidConfig)
	}
	if cfg.RequestConfirmations == 0 {
		cfg.RequestConfirmations = DefaultRequestConfirmations
	}
	cfg.EntranceFee = new(big.Int).Set(cfg.EntranceFee)

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Raffle{
		cfg:           cfg,
		coordinator:   deps.Coordinator,
		payout:        deps.Payout,
		logger:        logger.With(zap.String("raffle", cfg.Address.Hex())),
		listeners:     deps.Listeners,
		state:         StateOpen,
		round:         1,
		balance:       new(big.Int),
		lastTimestamp: start,
	}, nil
}

// Enter records a paid entry for player. The full amount is pooled,
// including any overpayment.
func (r *Raffle) Enter(now time.Time, player common.Address, amount *big.Int) error {
	r.mu.Lock()
	if err := r.checkEntryLocked(amount); err != nil {
		r.mu.Unlock()
		return err
	}

	paid := new(big.Int).Set(amount)
	r.players = append(r.players, player)
	r.balance = new(big.Int).Add(r.balance, paid)

	evt := Event{
		Kind:   EventEntryAccepted,
		Raffle: r.cfg.Address,
		Round:  r.round,
		Time:   now,
		Player: player,
		Amount: paid,
	}
	listeners := r.listeners
	r.logger.Debug("entry accepted",
		zap.String("player", player.Hex()),
		zap.String("amount", paid.String()),
		zap.Int("players", len(r.players)),
	)
	r.mu.Unlock()

	emit(listeners, evt)
	return nil
}

// CheckEntry reports the error Enter would return for amount, without
// recording anything.
func (r *Raffle) CheckEntry(amount *big.Int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checkEntryLocked(amount)
}

func (r *Raffle) checkEntryLocked(amount *big.Int) error {
	if amount == nil || amount.Cmp(r.cfg.EntranceFee) < 0 {
		return fmt.Errorf("%w: paid %s, fee %s", ErrInsufficientPayment, amountString(amount), r.cfg.EntranceFee)
	}
	if r.state != StateOpen {
		return fmt.Errorf("%w: state %s", ErrRoundNotOpen, r.state)
	}
	return nil
}

// CheckUpkeep reports whether a close is due at now. It never mutates
// state. The returned data is always empty.
func (r *Raffle) CheckUpkeep(now time.Time, _ []byte) (bool, []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.upkeepNeeded(now), []byte{}
}

func (r *Raffle) upkeepNeeded(now time.Time) bool {
	timePassed := now.Sub(r.lastTimestamp) >= r.cfg.Interval
	isOpen := r.state == StateOpen
	hasPlayers := len(r.players) > 0
	hasBalance := r.balance.Sign() > 0
	return timePassed && isOpen && hasPlayers && hasBalance
}

// PerformUpkeep closes the round and requests randomness. Eligibility is
// re-evaluated here; a stale positive check from a caller is not trusted.
func (r *Raffle) PerformUpkeep(ctx context.Context, now time.Time, _ []byte) (*big.Int, error) {
	r.mu.Lock()
	if !r.upkeepNeeded(now) {
		err := &UpkeepNotNeededError{
			Balance: new(big.Int).Set(r.balance),
			Players: len(r.players),
			State:   r.state,
		}
		r.mu.Unlock()
		return nil, err
	}

	requestID, err := r.coordinator.RequestRandomWords(ctx, r.RequestConfig())
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("request random words: %w", err)
	}
	if requestID == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("request random words: coordinator returned no request id")
	}

	r.state = StateClosing
	r.pendingRequest = new(big.Int).Set(requestID)

	evt := Event{
		Kind:      EventRoundClosing,
		Raffle:    r.cfg.Address,
		Round:     r.round,
		Time:      now,
		RequestID: new(big.Int).Set(requestID),
		Entrants:  len(r.players),
	}
	listeners := r.listeners
	r.logger.Info("round closing",
		zap.Uint64("round", r.round),
		zap.String("request_id", requestID.String()),
		zap.Int("players", len(r.players)),
		zap.String("pool_balance", r.balance.String()),
	)
	r.mu.Unlock()

	emit(listeners, evt)
	return new(big.Int).Set(requestID), nil
}

// FulfillRandomWords completes the round for requestID: it selects
// players[randomWords[0] mod len(players)], pays out the full pool and
// reopens. If the payout fails nothing changes and the round stays closing.
func (r *Raffle) FulfillRandomWords(ctx context.Context, now time.Time, requestID *big.Int, randomWords []*big.Int) (common.Address, error) {
	r.mu.Lock()

	switch r.state {
	case StateOpen:
		if r.pendingRequest != nil {
			r.mu.Unlock()
			panic("raffle: invariant violated: pending request while open")
		}
		r.mu.Unlock()
		return common.Address{}, fmt.Errorf("%w: %s (no request outstanding)", ErrUnknownRequest, amountString(requestID))
	case StateClosing:
		if r.pendingRequest == nil || len(r.players) == 0 {
			r.mu.Unlock()
			panic("raffle: invariant violated: closing without pending request or players")
		}
	default:
		state := r.state
		r.mu.Unlock()
		panic(fmt.Sprintf("raffle: invariant violated: unhandled state %s", state))
	}

	if requestID == nil || requestID.Cmp(r.pendingRequest) != 0 {
		pending := r.pendingRequest.String()
		r.mu.Unlock()
		return common.Address{}, fmt.Errorf("%w: %s (pending %s)", ErrUnknownRequest, amountString(requestID), pending)
	}
	if len(randomWords) == 0 || randomWords[0] == nil || randomWords[0].Sign() < 0 {
		r.mu.Unlock()
		return common.Address{}, fmt.Errorf("%w: missing or negative random word", ErrInvalidRandomness)
	}

	count := big.NewInt(int64(len(r.players)))
	index := new(big.Int).Mod(randomWords[0], count).Int64()
	winner := r.players[index]
	prize := new(big.Int).Set(r.balance)

	if err := r.payout.Pay(ctx, winner, prize); err != nil {
		r.logger.Error("payout transfer failed, round stays closing",
			zap.Uint64("round", r.round),
			zap.String("request_id", requestID.String()),
			zap.String("winner", winner.Hex()),
			zap.String("prize", prize.String()),
			zap.Error(err),
		)
		r.mu.Unlock()
		return common.Address{}, fmt.Errorf("%w: pay %s: %w", ErrPayoutTransferFailed, winner.Hex(), err)
	}

	finished := r.round
	r.recentWinner = winner
	r.players = nil
	r.balance = new(big.Int)
	r.lastTimestamp = now
	r.state = StateOpen
	r.pendingRequest = nil
	r.round++

	evt := Event{
		Kind:      EventWinnerPicked,
		Raffle:    r.cfg.Address,
		Round:     finished,
		Time:      now,
		Amount:    prize,
		RequestID: new(big.Int).Set(requestID),
		Winner:    winner,
	}
	listeners := r.listeners
	r.logger.Info("winner picked",
		zap.Uint64("round", finished),
		zap.String("request_id", requestID.String()),
		zap.Int64("winner_index", index),
		zap.String("winner", winner.Hex()),
		zap.String("prize", prize.String()),
	)
	r.mu.Unlock()

	emit(listeners, evt)
	return winner, nil
}

func emit(listeners []Listener, evt Event) {
	for _, l := range listeners {
		l.HandleEvent(evt)
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.String()
}
