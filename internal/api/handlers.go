package api

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vrfLottery/internal/ledger"
	"vrfLottery/internal/model"
	"vrfLottery/internal/raffle"
)

const defaultWinnersLimit = 20

// Raffle is the service surface exposed over HTTP.
type Raffle interface {
	Enter(ctx context.Context, player common.Address, amount *big.Int) error
	CheckUpkeep(ctx context.Context) (bool, error)
	PerformUpkeep(ctx context.Context) (*big.Int, error)
	Snapshot() model.RaffleSnapshot
	Address() common.Address
	EntranceFee() *big.Int
	Interval() time.Duration
	Player(index int) (common.Address, error)
	Winners(ctx context.Context, limit int) ([]model.WinnerRecord, error)
	AccountBalance(addr common.Address) *big.Int
}

// Funder credits test funds to an account.
type Funder interface {
	Credit(addr common.Address, amount *big.Int) error
}

// Handler serves the raffle API. Faucet is nil outside development chains.
type Handler struct {
	raffle Raffle
	hub    *Hub
	faucet Funder
	logger *zap.Logger
}

func NewHandler(r Raffle, hub *Hub, faucet Funder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{raffle: r, hub: hub, faucet: faucet, logger: logger}
}

type enterRequest struct {
	Player string `json:"player" binding:"required"`
	Amount string `json:"amount" binding:"required"`
	// Raw marks Amount as wei rather than ether.
	Raw bool `json:"raw"`
}

func (h *Handler) Enter(c *gin.Context) {
	var payload enterRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	player, amount, ok := parseTransfer(c, payload.Player, payload.Amount, payload.Raw)
	if !ok {
		return
	}

	if err := h.raffle.Enter(c.Request.Context(), player, amount); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"player":            player.Hex(),
		"amount":            amount.String(),
		"number_of_players": len(h.raffle.Snapshot().Players),
	})
}

func (h *Handler) CheckUpkeep(c *gin.Context) {
	needed, err := h.raffle.CheckUpkeep(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upkeep_needed": needed, "perform_data": "0x"})
}

func (h *Handler) PerformUpkeep(c *gin.Context) {
	requestID, err := h.raffle.PerformUpkeep(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request_id": requestID.String()})
}

func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.stateView())
}

func (h *Handler) stateView() gin.H {
	snap := h.raffle.Snapshot()
	balance, _ := new(big.Int).SetString(snap.Balance, 10)
	return gin.H{
		"address":            snap.Address,
		"state":              snap.State,
		"round":              snap.Round,
		"entrance_fee":       h.raffle.EntranceFee().String(),
		"interval_seconds":   int64(h.raffle.Interval() / time.Second),
		"number_of_players":  len(snap.Players),
		"players":            snap.Players,
		"balance":            snap.Balance,
		"balance_eth":        model.FormatAmount(balance, model.EtherDecimals),
		"last_timestamp":     snap.LastTimestamp,
		"recent_winner":      snap.RecentWinner,
		"pending_request_id": snap.PendingRequestID,
	}
}

func (h *Handler) GetPlayer(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index must be an integer"})
		return
	}
	player, err := h.raffle.Player(index)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": index, "player": player.Hex()})
}

func (h *Handler) ListWinners(c *gin.Context) {
	limit := defaultWinnersLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	winners, err := h.raffle.Winners(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if winners == nil {
		winners = []model.WinnerRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"winners": winners})
}

func (h *Handler) GetAccount(c *gin.Context) {
	input := c.Param("address")
	if !common.IsHexAddress(input) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	addr := common.HexToAddress(input)
	balance := h.raffle.AccountBalance(addr)
	c.JSON(http.StatusOK, gin.H{
		"address":     addr.Hex(),
		"balance":     balance.String(),
		"balance_eth": model.FormatAmount(balance, model.EtherDecimals),
	})
}

type faucetRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	Raw     bool   `json:"raw"`
}

func (h *Handler) Faucet(c *gin.Context) {
	if h.faucet == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "faucet is only available on development chains"})
		return
	}
	var payload faucetRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body: " + err.Error()})
		return
	}
	addr, amount, ok := parseTransfer(c, payload.Address, payload.Amount, payload.Raw)
	if !ok {
		return
	}
	if err := h.faucet.Credit(addr, amount); err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("faucet credit", zap.String("address", addr.Hex()), zap.String("amount", amount.String()))
	c.JSON(http.StatusOK, gin.H{"address": addr.Hex(), "balance": h.raffle.AccountBalance(addr).String()})
}

// StreamEvents sends the current state, then every committed event, as
// server-sent events until the client disconnects.
func (h *Handler) StreamEvents(c *gin.Context) {
	client := h.hub.Register()
	defer h.hub.Unregister(client)

	c.SSEvent("state", h.stateView())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case evt, ok := <-client.Chan():
			if !ok {
				return false
			}
			c.SSEvent(evt.Type, evt.Data)
			return true
		}
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	body := gin.H{"error": err.Error()}
	var notNeeded *raffle.UpkeepNotNeededError
	if errors.As(err, &notNeeded) {
		body["balance"] = notNeeded.Balance.String()
		body["number_of_players"] = notNeeded.Players
		body["state"] = notNeeded.State.String()
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, raffle.ErrInsufficientPayment), errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, raffle.ErrRoundNotOpen), errors.Is(err, raffle.ErrUpkeepNotNeeded):
		return http.StatusConflict
	case errors.Is(err, raffle.ErrPlayerIndex), errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseTransfer(c *gin.Context, address, amount string, raw bool) (common.Address, *big.Int, bool) {
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return common.Address{}, nil, false
	}
	value, err := model.ParseAmount(amount, model.EtherDecimals, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return common.Address{}, nil, false
	}
	return common.HexToAddress(address), value, true
}
