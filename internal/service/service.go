package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vrfLottery/internal/ledger"
	"vrfLottery/internal/model"
	"vrfLottery/internal/raffle"
	"vrfLottery/internal/storage"
)

// Deps are the collaborators of a Service. States and Winners are optional;
// without Winners the history is kept in memory.
type Deps struct {
	Coordinator raffle.Coordinator
	Ledger      *ledger.Ledger
	Clock       Clock
	States      storage.StateStore
	Winners     storage.WinnerStore
	Logger      *zap.Logger
}

// Service is the transaction boundary around a raffle engine. Every
// operation runs under one mutex: the clock is read, funds move through the
// ledger, the engine commits and the resulting state is persisted.
//
// Listeners run while the operation still holds the mutex and must not call
// back into the Service.
type Service struct {
	cfg     raffle.Config
	engine  *raffle.Raffle
	ledger  *ledger.Ledger
	clock   Clock
	states  storage.StateStore
	winners storage.WinnerStore
	logger  *zap.Logger

	mu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []raffle.Listener
}

// New builds the engine and restores its state from deps.States when a
// snapshot for cfg.Address exists.
func New(ctx context.Context, cfg raffle.Config, deps Deps) (*Service, error) {
	if deps.Ledger == nil {
		return nil, fmt.Errorf("%w: ledger is nil", raffle.ErrInvalidConfig)
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Winners == nil {
		deps.Winners = NewMemoryWinners()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	now, err := deps.Clock.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("read clock: %w", err)
	}

	s := &Service{
		cfg:     cfg,
		ledger:  deps.Ledger,
		clock:   deps.Clock,
		states:  deps.States,
		winners: deps.Winners,
		logger:  logger,
	}

	engine, err := raffle.New(cfg, raffle.Deps{
		Coordinator: deps.Coordinator,
		Payout:      deps.Ledger.PayerFor(cfg.Address),
		Logger:      logger,
		Listeners:   []raffle.Listener{raffle.ListenerFunc(s.dispatch)},
	}, now)
	if err != nil {
		return nil, err
	}
	s.engine = engine

	if s.states != nil {
		snap, ok, err := s.states.LoadSnapshot(ctx, cfg.Address.Hex())
		if err != nil {
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		if ok {
			if err := engine.Restore(snap); err != nil {
				return nil, fmt.Errorf("restore snapshot: %w", err)
			}
			if err := s.reconcilePool(); err != nil {
				return nil, err
			}
			logger.Info("raffle restored",
				zap.String("raffle", cfg.Address.Hex()),
				zap.String("state", snap.State),
				zap.Uint64("round", snap.Round),
				zap.Int("players", len(snap.Players)),
				zap.String("pool_balance", snap.Balance),
			)
		}
	}

	return s, nil
}

// Subscribe registers a listener for committed events.
func (s *Service) Subscribe(l raffle.Listener) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, l)
	s.listenersMu.Unlock()
}

// Enter debits amount from player into the raffle account and records the
// entry. The debit is returned if the engine refuses the entry.
func (s *Service) Enter(ctx context.Context, player common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now, err := s.clock.Now(ctx)
	if err != nil {
		return fmt.Errorf("read clock: %w", err)
	}

	if err := s.engine.CheckEntry(amount); err != nil {
		return err
	}
	if err := s.ledger.Transfer(player, s.cfg.Address, amount); err != nil {
		return fmt.Errorf("debit entry: %w", err)
	}
	if err := s.engine.Enter(now, player, amount); err != nil {
		if refundErr := s.ledger.Refund(s.cfg.Address, player, amount); refundErr != nil {
			panic(fmt.Sprintf("raffle: refund of rejected entry failed: %v", refundErr))
		}
		return err
	}

	s.persist(ctx)
	return nil
}

// CheckUpkeep reports whether the round can be closed now.
func (s *Service) CheckUpkeep(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now, err := s.clock.Now(ctx)
	if err != nil {
		return false, fmt.Errorf("read clock: %w", err)
	}
	needed, _ := s.engine.CheckUpkeep(now, nil)
	return needed, nil
}

// PerformUpkeep closes the round and requests randomness.
func (s *Service) PerformUpkeep(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now, err := s.clock.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("read clock: %w", err)
	}
	requestID, err := s.engine.PerformUpkeep(ctx, now, nil)
	if err != nil {
		return nil, err
	}

	s.persist(ctx)
	return requestID, nil
}

// FulfillRandomWords delivers the coordinator's answer. It satisfies
// vrf.Consumer.
func (s *Service) FulfillRandomWords(ctx context.Context, requestID *big.Int, randomWords []*big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now, err := s.clock.Now(ctx)
	if err != nil {
		return fmt.Errorf("read clock: %w", err)
	}
	if _, err := s.engine.FulfillRandomWords(ctx, now, requestID, randomWords); err != nil {
		return err
	}

	s.persist(ctx)
	return nil
}

// PendingRequest returns the outstanding randomness request with the
// parameters it was issued with. The id is nil while the round is open.
func (s *Service) PendingRequest() (*big.Int, raffle.RequestConfig) {
	return s.engine.PendingRequest(), s.engine.RequestConfig()
}

// Snapshot returns the current engine state.
func (s *Service) Snapshot() model.RaffleSnapshot {
	return s.engine.Snapshot()
}

func (s *Service) Address() common.Address {
	return s.cfg.Address
}

func (s *Service) EntranceFee() *big.Int {
	return s.engine.EntranceFee()
}

func (s *Service) Interval() time.Duration {
	return s.engine.Interval()
}

func (s *Service) Player(index int) (common.Address, error) {
	return s.engine.Player(index)
}

// Winners lists the most recent paid-out rounds, newest first.
func (s *Service) Winners(ctx context.Context, limit int) ([]model.WinnerRecord, error) {
	return s.winners.ListWinners(ctx, s.cfg.Address.Hex(), limit)
}

// AccountBalance reports the ledger balance of addr.
func (s *Service) AccountBalance(addr common.Address) *big.Int {
	return s.ledger.Balance(addr)
}

// reconcilePool credits the raffle account with whatever part of a restored
// pool it does not hold. Account balances live only in the ledger, so after
// a restart the entry fees behind the pool have to be re-established before
// a payout can succeed.
func (s *Service) reconcilePool() error {
	pool := s.engine.Balance()
	held := s.ledger.Balance(s.cfg.Address)
	if held.Cmp(pool) >= 0 {
		return nil
	}
	missing := new(big.Int).Sub(pool, held)
	if err := s.ledger.Credit(s.cfg.Address, missing); err != nil {
		return fmt.Errorf("restore pool funds: %w", err)
	}
	s.logger.Warn("raffle account credited with restored pool",
		zap.String("raffle", s.cfg.Address.Hex()),
		zap.String("pool_balance", pool.String()),
		zap.String("credited", missing.String()),
	)
	return nil
}

func (s *Service) persist(ctx context.Context) {
	if s.states == nil {
		return
	}
	snap := s.engine.Snapshot()
	if err := s.states.SaveSnapshot(ctx, snap); err != nil {
		s.logger.Error("save snapshot failed",
			zap.String("raffle", snap.Address),
			zap.String("state", snap.State),
			zap.Uint64("round", snap.Round),
			zap.Error(err),
		)
	}
}

func (s *Service) dispatch(evt raffle.Event) {
	if evt.Kind == raffle.EventWinnerPicked {
		rec := model.WinnerRecord{
			Address:  evt.Raffle.Hex(),
			Round:    evt.Round,
			Winner:   evt.Winner.Hex(),
			Prize:    evt.Amount.String(),
			PickedAt: evt.Time.UTC(),
		}
		if evt.RequestID != nil {
			rec.RequestID = evt.RequestID.String()
		}
		if err := s.winners.PutWinner(context.Background(), rec); err != nil {
			s.logger.Error("record winner failed",
				zap.Uint64("round", rec.Round),
				zap.String("winner", rec.Winner),
				zap.String("prize", rec.Prize),
				zap.Error(err),
			)
		}
	}

	s.listenersMu.RLock()
	listeners := s.listeners
	s.listenersMu.RUnlock()
	for _, l := range listeners {
		l.HandleEvent(evt)
	}
}
