package keeper

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vrfLottery/internal/raffle"
	"vrfLottery/internal/vrf"
)

type scriptedUpkeeper struct {
	checks      []error
	needed      bool
	performErrs []error
	checkCalls  int
	performs    int
}

func (s *scriptedUpkeeper) CheckUpkeep(context.Context) (bool, error) {
	s.checkCalls++
	if len(s.checks) > 0 {
		err := s.checks[0]
		s.checks = s.checks[1:]
		if err != nil {
			return false, err
		}
	}
	return s.needed, nil
}

func (s *scriptedUpkeeper) PerformUpkeep(context.Context) (*big.Int, error) {
	s.performs++
	if len(s.performErrs) > 0 {
		err := s.performErrs[0]
		s.performErrs = s.performErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return big.NewInt(int64(s.performs)), nil
}

func testConfig() RunConfig {
	return RunConfig{PollInterval: time.Millisecond, MaxRetries: 2, RetryBackoff: time.Millisecond}
}

func TestTickSkipsWhenNotNeeded(t *testing.T) {
	target := &scriptedUpkeeper{}
	id, err := NewRunner(testConfig(), target, zap.NewNop()).Tick(context.Background())
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Equal(t, 0, target.performs)
}

func TestTickRetriesTransientFailures(t *testing.T) {
	target := &scriptedUpkeeper{
		needed:      true,
		checks:      []error{errors.New("rpc down")},
		performErrs: []error{errors.New("coordinator busy")},
	}
	id, err := NewRunner(testConfig(), target, zap.NewNop()).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), id.Int64())
	assert.Equal(t, 2, target.checkCalls)
	assert.Equal(t, 2, target.performs)
}

func TestTickLostRaceIsNotRetried(t *testing.T) {
	target := &scriptedUpkeeper{
		needed:      true,
		performErrs: []error{&raffle.UpkeepNotNeededError{Balance: big.NewInt(0), State: raffle.StateClosing}},
	}
	id, err := NewRunner(testConfig(), target, zap.NewNop()).Tick(context.Background())
	require.NoError(t, err)
	assert.Nil(t, id)
	assert.Equal(t, 1, target.performs)
}

func TestTickGivesUp(t *testing.T) {
	boom := errors.New("boom")
	target := &scriptedUpkeeper{
		needed:      true,
		performErrs: []error{boom, boom, boom},
	}
	_, err := NewRunner(testConfig(), target, zap.NewNop()).Tick(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, target.performs)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	target := &scriptedUpkeeper{}
	err := NewRunner(testConfig(), target, zap.NewNop()).Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, target.checkCalls)
}

func TestRunRejectsBadConfig(t *testing.T) {
	err := NewRunner(RunConfig{}, &scriptedUpkeeper{}, nil).Run(context.Background())
	assert.Error(t, err)
}

type countingConsumer struct {
	calls int
	err   error
}

func (c *countingConsumer) FulfillRandomWords(context.Context, *big.Int, []*big.Int) error {
	c.calls++
	return c.err
}

func (c *countingConsumer) PendingRequest() (*big.Int, raffle.RequestConfig) {
	return nil, raffle.RequestConfig{}
}

// waitingConsumer holds one outstanding request and rejects the first
// failures callbacks for it.
type waitingConsumer struct {
	pending  *big.Int
	req      raffle.RequestConfig
	failures int
	calls    int
}

func (c *waitingConsumer) FulfillRandomWords(_ context.Context, id *big.Int, _ []*big.Int) error {
	c.calls++
	if c.pending == nil || c.pending.Cmp(id) != 0 {
		return errors.New("unknown request")
	}
	if c.failures > 0 {
		c.failures--
		return errors.New("payout rejected")
	}
	c.pending = nil
	return nil
}

func (c *waitingConsumer) PendingRequest() (*big.Int, raffle.RequestConfig) {
	return c.pending, c.req
}

var (
	ownerAddr    = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	consumerAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

func newCoordinator(t *testing.T, funding *big.Int) (*vrf.Coordinator, raffle.RequestConfig) {
	t.Helper()
	coordinator := vrf.NewCoordinator(nil, nil, zap.NewNop())
	sub := coordinator.CreateSubscription(ownerAddr)
	require.NoError(t, coordinator.FundSubscription(sub, funding))
	require.NoError(t, coordinator.AddConsumer(sub, consumerAddr))
	req := raffle.RequestConfig{SubscriptionID: sub, RequestConfirmations: 3, CallbackGasLimit: 100000, NumWords: 1, Consumer: consumerAddr}
	return coordinator, req
}

func TestFulfillerDrainsPending(t *testing.T) {
	coordinator, req := newCoordinator(t, big.NewInt(1e18))
	for i := 0; i < 2; i++ {
		_, err := coordinator.RequestRandomWords(context.Background(), req)
		require.NoError(t, err)
	}

	consumer := &countingConsumer{err: errors.New("rejected")}
	f := NewFulfiller(FulfillConfig{Delay: time.Millisecond, SubscriptionID: req.SubscriptionID}, coordinator, consumer, zap.NewNop())
	assert.Equal(t, 2, f.Tick(context.Background()))
	assert.Equal(t, 2, consumer.calls)
	assert.Empty(t, coordinator.Pending())
	assert.Equal(t, 0, f.Tick(context.Background()))
}

func TestFulfillerRetriesRejectedCallback(t *testing.T) {
	ctx := context.Background()
	coordinator, req := newCoordinator(t, big.NewInt(1e18))
	id, err := coordinator.RequestRandomWords(ctx, req)
	require.NoError(t, err)

	consumer := &waitingConsumer{pending: id, req: req, failures: 1}
	f := NewFulfiller(FulfillConfig{Delay: time.Millisecond, SubscriptionID: req.SubscriptionID}, coordinator, consumer, zap.NewNop())

	assert.Equal(t, 1, f.Tick(ctx))
	assert.Empty(t, coordinator.Pending(), "coordinator consumed the rejected request")
	require.NotNil(t, consumer.pending)

	assert.Equal(t, 1, f.Tick(ctx))
	assert.Nil(t, consumer.pending)
	assert.Equal(t, 2, consumer.calls)

	assert.Equal(t, 0, f.Tick(ctx))
}

func TestFulfillerResumesRequestUnknownToCoordinator(t *testing.T) {
	ctx := context.Background()
	coordinator, req := newCoordinator(t, big.NewInt(1e18))

	consumer := &waitingConsumer{pending: big.NewInt(9), req: req}
	f := NewFulfiller(FulfillConfig{Delay: time.Millisecond, SubscriptionID: req.SubscriptionID}, coordinator, consumer, zap.NewNop())

	assert.Equal(t, 1, f.Tick(ctx))
	assert.Nil(t, consumer.pending)

	next, err := coordinator.RequestRandomWords(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(10), next.Int64())
}

func TestFulfillerTopsUpSubscription(t *testing.T) {
	ctx := context.Background()
	coordinator, req := newCoordinator(t, big.NewInt(1))
	id, err := coordinator.RequestRandomWords(ctx, req)
	require.NoError(t, err)

	consumer := &waitingConsumer{pending: id, req: req}
	dry := NewFulfiller(FulfillConfig{Delay: time.Millisecond, SubscriptionID: req.SubscriptionID}, coordinator, consumer, zap.NewNop())
	assert.Equal(t, 0, dry.Tick(ctx))
	assert.Len(t, coordinator.Pending(), 1)

	topUp := big.NewInt(1e18)
	f := NewFulfiller(FulfillConfig{Delay: time.Millisecond, SubscriptionID: req.SubscriptionID, TopUp: topUp}, coordinator, consumer, zap.NewNop())
	for round := 0; round < 10; round++ {
		require.Equal(t, 1, f.Tick(ctx), "round %d", round)
		require.Nil(t, consumer.pending)

		next, err := coordinator.RequestRandomWords(ctx, req)
		require.NoError(t, err)
		consumer.pending = next
	}

	sub, err := coordinator.GetSubscription(req.SubscriptionID)
	require.NoError(t, err)
	assert.Positive(t, sub.Balance.Sign())
}
