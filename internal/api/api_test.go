package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vrfLottery/internal/ledger"
	"vrfLottery/internal/raffle"
	"vrfLottery/internal/service"
	"vrfLottery/internal/vrf"
)

var (
	raffleAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	owner      = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	alice      = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now(context.Context) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now, nil
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	router      *gin.Engine
	svc         *service.Service
	hub         *Hub
	clock       *testClock
	coordinator *vrf.Coordinator
}

func newTestEnv(t *testing.T, withFaucet bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	coordinator := vrf.NewCoordinator(nil, nil, zap.NewNop())
	sub := coordinator.CreateSubscription(owner)
	require.NoError(t, coordinator.FundSubscription(sub, big.NewInt(1e18)))
	require.NoError(t, coordinator.AddConsumer(sub, raffleAddr))

	l := ledger.New()
	clock := &testClock{now: time.Unix(1700000000, 0).UTC()}
	svc, err := service.New(context.Background(), raffle.Config{
		Address:          raffleAddr,
		EntranceFee:      big.NewInt(1e16),
		Interval:         30 * time.Second,
		SubscriptionID:   sub,
		CallbackGasLimit: 500000,
	}, service.Deps{Coordinator: coordinator, Ledger: l, Clock: clock, Logger: zap.NewNop()})
	require.NoError(t, err)

	hub := NewHub(8)
	svc.Subscribe(hub)

	var funder Funder
	if withFaucet {
		funder = l
	}
	return &testEnv{
		router:      NewRouter(NewHandler(svc, hub, funder, zap.NewNop())),
		svc:         svc,
		hub:         hub,
		clock:       clock,
		coordinator: coordinator,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestEnterFlow(t *testing.T) {
	env := newTestEnv(t, true)

	code, body := env.do(t, http.MethodPost, "/api/enter", gin.H{"player": alice.Hex(), "amount": "0.01"})
	assert.Equal(t, http.StatusPaymentRequired, code, "no funds yet")
	assert.Contains(t, body["error"], "insufficient funds")

	code, _ = env.do(t, http.MethodPost, "/api/faucet", gin.H{"address": alice.Hex(), "amount": "1"})
	require.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodPost, "/api/enter", gin.H{"player": alice.Hex(), "amount": "0.001"})
	assert.Equal(t, http.StatusPaymentRequired, code)

	code, body = env.do(t, http.MethodPost, "/api/enter", gin.H{"player": alice.Hex(), "amount": "10000000000000000", "raw": true})
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["number_of_players"])

	code, body = env.do(t, http.MethodGet, "/api/players/0", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, alice.Hex(), body["player"])

	code, _ = env.do(t, http.MethodGet, "/api/players/1", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = env.do(t, http.MethodGet, "/api/accounts/"+alice.Hex(), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0.99", body["balance_eth"])

	code, body = env.do(t, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OPEN", body["state"])
	assert.Equal(t, "0.01", body["balance_eth"])
	assert.EqualValues(t, 30, body["interval_seconds"])
}

func TestBadInput(t *testing.T) {
	env := newTestEnv(t, false)

	code, _ := env.do(t, http.MethodPost, "/api/enter", gin.H{"player": "0x123", "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/api/enter", gin.H{"player": alice.Hex(), "amount": "abc"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodGet, "/api/players/x", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodGet, "/api/winners?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/api/faucet", gin.H{"address": alice.Hex(), "amount": "1"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUpkeepAndWinners(t *testing.T) {
	env := newTestEnv(t, true)

	code, body := env.do(t, http.MethodPost, "/api/upkeep", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "0", body["balance"])
	assert.EqualValues(t, 0, body["number_of_players"])
	assert.Equal(t, "OPEN", body["state"])

	code, _ = env.do(t, http.MethodPost, "/api/faucet", gin.H{"address": alice.Hex(), "amount": "1"})
	require.Equal(t, http.StatusOK, code)
	code, _ = env.do(t, http.MethodPost, "/api/enter", gin.H{"player": alice.Hex(), "amount": "0.01"})
	require.Equal(t, http.StatusOK, code)

	code, body = env.do(t, http.MethodGet, "/api/upkeep", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["upkeep_needed"])

	env.clock.Advance(time.Minute)
	code, body = env.do(t, http.MethodGet, "/api/upkeep", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["upkeep_needed"])

	code, body = env.do(t, http.MethodPost, "/api/upkeep", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1", body["request_id"])

	code, _ = env.do(t, http.MethodPost, "/api/enter", gin.H{"player": alice.Hex(), "amount": "0.01"})
	assert.Equal(t, http.StatusConflict, code)

	_, err := env.coordinator.FulfillRandomWords(context.Background(), big.NewInt(1), env.svc)
	require.NoError(t, err)

	code, body = env.do(t, http.MethodGet, "/api/winners", nil)
	require.Equal(t, http.StatusOK, code)
	winners, ok := body["winners"].([]interface{})
	require.True(t, ok)
	require.Len(t, winners, 1)
	assert.Equal(t, alice.Hex(), winners[0].(map[string]interface{})["winner"])
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusPaymentRequired, statusFor(raffle.ErrInsufficientPayment))
	assert.Equal(t, http.StatusConflict, statusFor(raffle.ErrRoundNotOpen))
	assert.Equal(t, http.StatusConflict, statusFor(&raffle.UpkeepNotNeededError{Balance: big.NewInt(0)}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(raffle.ErrPayoutTransferFailed))
}

func TestStreamEvents(t *testing.T) {
	env := newTestEnv(t, true)
	server := httptest.NewServer(env.router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	nextEvent := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "event:") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
		}
	}

	assert.Equal(t, "state", nextEvent())

	require.Eventually(t, func() bool {
		env.hub.mu.Lock()
		defer env.hub.mu.Unlock()
		return len(env.hub.clients) == 1
	}, time.Second, 10*time.Millisecond)

	code, _ := env.do(t, http.MethodPost, "/api/faucet", gin.H{"address": alice.Hex(), "amount": "1"})
	require.Equal(t, http.StatusOK, code)
	code, _ = env.do(t, http.MethodPost, "/api/enter", gin.H{"player": alice.Hex(), "amount": "0.01"})
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, string(raffle.EventEntryAccepted), nextEvent())
}
