package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrRecipientRejected = errors.New("ledger: recipient rejects transfers")
	ErrInvalidAmount     = errors.New("ledger: invalid amount")
)

// Ledger holds native balances keyed by address.
type Ledger struct {
	mu        sync.RWMutex
	balances  map[common.Address]*big.Int
	rejecting map[common.Address]struct{}
}

func New() *Ledger {
	return &Ledger{
		balances:  make(map[common.Address]*big.Int),
		rejecting: make(map[common.Address]struct{}),
	}
}

// Credit mints amount into addr.
func (l *Ledger) Credit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[addr] = new(big.Int).Add(l.balanceLocked(addr), amount)
	return nil
}

func (l *Ledger) Balance(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.balanceLocked(addr))
}

// Reject marks addr as unable to receive transfers.
func (l *Ledger) Reject(addr common.Address) {
	l.mu.Lock()
	l.rejecting[addr] = struct{}{}
	l.mu.Unlock()
}

// Accept clears a previous Reject.
func (l *Ledger) Accept(addr common.Address) {
	l.mu.Lock()
	delete(l.rejecting, addr)
	l.mu.Unlock()
}

// Transfer moves amount from one account to another. Either both balances
// change or neither does.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.rejecting[to]; ok {
		return fmt.Errorf("%w: %s", ErrRecipientRejected, to.Hex())
	}
	fromBalance := l.balanceLocked(from)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Hex(), fromBalance, amount)
	}
	l.balances[from] = new(big.Int).Sub(fromBalance, amount)
	l.balances[to] = new(big.Int).Add(l.balanceLocked(to), amount)
	return nil
}

// Refund returns amount from one account to another regardless of whether
// the recipient rejects transfers. It is used to undo a debit.
func (l *Ledger) Refund(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fromBalance := l.balanceLocked(from)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Hex(), fromBalance, amount)
	}
	l.balances[from] = new(big.Int).Sub(fromBalance, amount)
	l.balances[to] = new(big.Int).Add(l.balanceLocked(to), amount)
	return nil
}

func (l *Ledger) balanceLocked(addr common.Address) *big.Int {
	if bal, ok := l.balances[addr]; ok {
		return bal
	}
	return new(big.Int)
}

// Payer pays out of a fixed account. It satisfies raffle.Payout.
type Payer struct {
	ledger *Ledger
	from   common.Address
}

// PayerFor returns a Payer drawing on from.
func (l *Ledger) PayerFor(from common.Address) *Payer {
	return &Payer{ledger: l, from: from}
}

func (p *Payer) Pay(_ context.Context, to common.Address, amount *big.Int) error {
	return p.ledger.Transfer(p.from, to, amount)
}
