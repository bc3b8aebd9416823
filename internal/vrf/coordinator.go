package vrf

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"go.uber.org/zap"

	"vrfLottery/internal/raffle"
)

const (
	MaxNumWords             uint32 = 500
	MaxRequestConfirmations uint16 = 200
	MaxCallbackGasLimit     uint32 = 2_500_000
)

var (
	// DefaultBaseFee is 0.25 LINK per request.
	DefaultBaseFee = big.NewInt(params.Ether / 4)
	// DefaultGasPriceLink is the LINK price per unit of callback gas.
	DefaultGasPriceLink = big.NewInt(params.GWei)
)

var (
	ErrInvalidSubscription = errors.New("vrf: invalid subscription")
	ErrInvalidConsumer     = errors.New("vrf: invalid consumer")
	ErrInvalidRequest      = errors.New("vrf: invalid request")
	ErrNonexistentRequest  = errors.New("vrf: nonexistent request")
	ErrInsufficientBalance = errors.New("vrf: insufficient subscription balance")
)

// Consumer receives random words for a request it issued.
type Consumer interface {
	FulfillRandomWords(ctx context.Context, requestID *big.Int, randomWords []*big.Int) error
}

// Subscription is a funded account that pays for requests of its consumers.
type Subscription struct {
	ID        uint64
	Owner     common.Address
	Balance   *big.Int
	Consumers []common.Address
}

// Fulfillment reports the outcome of a delivered request.
type Fulfillment struct {
	RequestID *big.Int
	Payment   *big.Int
	Success   bool
	Err       error
}

type request struct {
	id     *big.Int
	config raffle.RequestConfig
}

// Coordinator is an in-process randomness coordinator with subscription
// billing. Words are derived deterministically from the request id, so it
// is only suitable for development chains and tests.
type Coordinator struct {
	baseFee      *big.Int
	gasPriceLink *big.Int
	logger       *zap.Logger

	mu            sync.Mutex
	nextSubID     uint64
	nextRequestID *big.Int
	subscriptions map[uint64]*Subscription
	requests      map[string]request
}

// NewCoordinator builds a coordinator. Nil fees fall back to the defaults.
func NewCoordinator(baseFee, gasPriceLink *big.Int, logger *zap.Logger) *Coordinator {
	if baseFee == nil {
		baseFee = DefaultBaseFee
	}
	if gasPriceLink == nil {
		gasPriceLink = DefaultGasPriceLink
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		baseFee:       new(big.Int).Set(baseFee),
		gasPriceLink:  new(big.Int).Set(gasPriceLink),
		logger:        logger,
		nextRequestID: big.NewInt(1),
		subscriptions: make(map[uint64]*Subscription),
		requests:      make(map[string]request),
	}
}

// CreateSubscription opens an empty subscription for owner.
func (c *Coordinator) CreateSubscription(owner common.Address) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	id := c.nextSubID
	c.subscriptions[id] = &Subscription{ID: id, Owner: owner, Balance: new(big.Int)}
	c.logger.Info("subscription created", zap.Uint64("sub_id", id), zap.String("owner", owner.Hex()))
	return id
}

func (c *Coordinator) FundSubscription(subID uint64, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: fund amount must be positive", ErrInvalidRequest)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subscriptions[subID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	sub.Balance = new(big.Int).Add(sub.Balance, amount)
	c.logger.Info("subscription funded", zap.Uint64("sub_id", subID), zap.String("balance", sub.Balance.String()))
	return nil
}

func (c *Coordinator) AddConsumer(subID uint64, consumer common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subscriptions[subID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	for _, existing := range sub.Consumers {
		if existing == consumer {
			return nil
		}
	}
	sub.Consumers = append(sub.Consumers, consumer)
	c.logger.Info("consumer added", zap.Uint64("sub_id", subID), zap.String("consumer", consumer.Hex()))
	return nil
}

func (c *Coordinator) RemoveConsumer(subID uint64, consumer common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subscriptions[subID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	for i, existing := range sub.Consumers {
		if existing == consumer {
			sub.Consumers = append(sub.Consumers[:i], sub.Consumers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidConsumer, consumer.Hex())
}

// GetSubscription returns a copy of the subscription.
func (c *Coordinator) GetSubscription(subID uint64) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subscriptions[subID]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %d", ErrInvalidSubscription, subID)
	}
	out := Subscription{
		ID:        sub.ID,
		Owner:     sub.Owner,
		Balance:   new(big.Int).Set(sub.Balance),
		Consumers: append([]common.Address(nil), sub.Consumers...),
	}
	return out, nil
}

// RequestRandomWords queues a request. It satisfies raffle.Coordinator.
func (c *Coordinator) RequestRandomWords(_ context.Context, req raffle.RequestConfig) (*big.Int, error) {
	if req.NumWords == 0 || req.NumWords > MaxNumWords {
		return nil, fmt.Errorf("%w: num words %d", ErrInvalidRequest, req.NumWords)
	}
	if req.RequestConfirmations > MaxRequestConfirmations {
		return nil, fmt.Errorf("%w: request confirmations %d", ErrInvalidRequest, req.RequestConfirmations)
	}
	if req.CallbackGasLimit > MaxCallbackGasLimit {
		return nil, fmt.Errorf("%w: callback gas limit %d", ErrInvalidRequest, req.CallbackGasLimit)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subscriptions[req.SubscriptionID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSubscription, req.SubscriptionID)
	}
	registered := false
	for _, consumer := range sub.Consumers {
		if consumer == req.Consumer {
			registered = true
			break
		}
	}
	if !registered {
		return nil, fmt.Errorf("%w: %s not on subscription %d", ErrInvalidConsumer, req.Consumer.Hex(), req.SubscriptionID)
	}

	id := new(big.Int).Set(c.nextRequestID)
	c.nextRequestID.Add(c.nextRequestID, big.NewInt(1))
	c.requests[id.String()] = request{id: id, config: req}

	c.logger.Info("random words requested",
		zap.String("request_id", id.String()),
		zap.Uint64("sub_id", req.SubscriptionID),
		zap.String("consumer", req.Consumer.Hex()),
		zap.Uint32("num_words", req.NumWords),
	)
	return new(big.Int).Set(id), nil
}

// Resume re-registers an outstanding request that was issued before a
// restart, so it can still be fulfilled. Later request ids start after it.
func (c *Coordinator) Resume(requestID *big.Int, req raffle.RequestConfig) error {
	if requestID == nil || requestID.Sign() <= 0 {
		return fmt.Errorf("%w: request id must be positive", ErrInvalidRequest)
	}
	if req.NumWords == 0 || req.NumWords > MaxNumWords {
		return fmt.Errorf("%w: num words %d", ErrInvalidRequest, req.NumWords)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subscriptions[req.SubscriptionID]; !ok {
		return fmt.Errorf("%w: %d", ErrInvalidSubscription, req.SubscriptionID)
	}
	if _, ok := c.requests[requestID.String()]; ok {
		return nil
	}
	id := new(big.Int).Set(requestID)
	c.requests[id.String()] = request{id: id, config: req}
	if c.nextRequestID.Cmp(id) <= 0 {
		c.nextRequestID = new(big.Int).Add(id, big.NewInt(1))
	}
	c.logger.Info("request resumed", zap.String("request_id", id.String()), zap.Uint64("sub_id", req.SubscriptionID))
	return nil
}

// Pending returns the outstanding request ids in ascending order.
func (c *Coordinator) Pending() []*big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*big.Int, 0, len(c.requests))
	for _, req := range c.requests {
		out = append(out, new(big.Int).Set(req.id))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

// FulfillRandomWords delivers derived words for requestID to consumer.
func (c *Coordinator) FulfillRandomWords(ctx context.Context, requestID *big.Int, consumer Consumer) (Fulfillment, error) {
	return c.FulfillRandomWordsWithOverride(ctx, requestID, consumer, nil)
}

// FulfillRandomWordsWithOverride delivers words to consumer. When words is
// empty they are derived from the request id. The request is removed and
// the subscription charged before the callback runs, so a failing consumer
// still pays and cannot be fulfilled twice.
func (c *Coordinator) FulfillRandomWordsWithOverride(ctx context.Context, requestID *big.Int, consumer Consumer, words []*big.Int) (Fulfillment, error) {
	if requestID == nil {
		return Fulfillment{}, fmt.Errorf("%w: nil id", ErrNonexistentRequest)
	}
	if consumer == nil {
		return Fulfillment{}, fmt.Errorf("%w: nil consumer", ErrInvalidConsumer)
	}

	c.mu.Lock()
	req, ok := c.requests[requestID.String()]
	if !ok {
		c.mu.Unlock()
		return Fulfillment{}, fmt.Errorf("%w: %s", ErrNonexistentRequest, requestID)
	}
	if len(words) == 0 {
		derived, err := DeriveWords(requestID, req.config.NumWords)
		if err != nil {
			c.mu.Unlock()
			return Fulfillment{}, err
		}
		words = derived
	} else if uint32(len(words)) != req.config.NumWords {
		c.mu.Unlock()
		return Fulfillment{}, fmt.Errorf("%w: expected %d words, got %d", ErrInvalidRequest, req.config.NumWords, len(words))
	}

	payment := c.payment(req.config)
	sub, ok := c.subscriptions[req.config.SubscriptionID]
	if !ok {
		c.mu.Unlock()
		return Fulfillment{}, fmt.Errorf("%w: %d", ErrInvalidSubscription, req.config.SubscriptionID)
	}
	if sub.Balance.Cmp(payment) < 0 {
		c.mu.Unlock()
		return Fulfillment{}, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, sub.Balance, payment)
	}
	sub.Balance = new(big.Int).Sub(sub.Balance, payment)
	delete(c.requests, requestID.String())
	c.mu.Unlock()

	result := Fulfillment{RequestID: new(big.Int).Set(requestID), Payment: payment, Success: true}
	if err := consumer.FulfillRandomWords(ctx, requestID, words); err != nil {
		result.Success = false
		result.Err = err
		c.logger.Warn("consumer rejected fulfillment", zap.String("request_id", requestID.String()), zap.Error(err))
	} else {
		c.logger.Info("random words fulfilled", zap.String("request_id", requestID.String()), zap.String("payment", payment.String()))
	}
	return result, nil
}

func (c *Coordinator) payment(cfg raffle.RequestConfig) *big.Int {
	gas := new(big.Int).SetUint64(uint64(cfg.CallbackGasLimit))
	gasCost := new(big.Int).Mul(gas, c.gasPriceLink)
	return gasCost.Add(gasCost, c.baseFee)
}

var wordArguments = func() abi.Arguments {
	uint256Type, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: uint256Type}, {Type: uint256Type}}
}()

// DeriveWords returns keccak256(abi.encode(requestID, i)) for i in [0, n).
func DeriveWords(requestID *big.Int, n uint32) ([]*big.Int, error) {
	words := make([]*big.Int, 0, n)
	for i := uint32(0); i < n; i++ {
		packed, err := wordArguments.Pack(requestID, new(big.Int).SetUint64(uint64(i)))
		if err != nil {
			return nil, fmt.Errorf("pack word %d: %w", i, err)
		}
		words = append(words, new(big.Int).SetBytes(crypto.Keccak256(packed)))
	}
	return words, nil
}
