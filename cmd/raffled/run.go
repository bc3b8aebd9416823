package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vrfLottery/internal/api"
	"vrfLottery/internal/chain"
	"vrfLottery/internal/config"
	"vrfLottery/internal/indexer"
	"vrfLottery/internal/keeper"
	"vrfLottery/internal/ledger"
	"vrfLottery/internal/model"
	"vrfLottery/internal/raffle"
	"vrfLottery/internal/service"
	"vrfLottery/internal/storage"
	"vrfLottery/internal/vrf"
)

// subscriptionFunding is the 2 LINK a fresh development subscription is
// funded with, and topped up by whenever it runs dry.
var subscriptionFunding = new(big.Int).Mul(big.NewInt(2), big.NewInt(params.Ether))

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.Development() {
		return fmt.Errorf("run serves a local raffle and needs a development chain, %s is not one; use status or history for deployed contracts", cfg.Network.Name)
	}

	address, err := indexer.ParseAddress(cfg.Address)
	if err != nil {
		return err
	}
	entranceFee, err := model.ParseAmount(cfg.EntranceFee, model.EtherDecimals, false)
	if err != nil {
		return fmt.Errorf("entrance fee: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock, closeClock, err := newClock(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeClock()

	accounts := ledger.New()
	if err := fundDevAccounts(accounts, cfg, logger); err != nil {
		return err
	}

	coordinator := vrf.NewCoordinator(nil, nil, logger.Named("vrf"))
	subID := coordinator.CreateSubscription(address)
	if err := coordinator.FundSubscription(subID, subscriptionFunding); err != nil {
		return err
	}
	if err := coordinator.AddConsumer(subID, address); err != nil {
		return err
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	svc, err := service.New(ctx, raffle.Config{
		Address:              address,
		EntranceFee:          entranceFee,
		Interval:             cfg.Interval,
		KeyHash:              common.HexToHash(cfg.KeyHash),
		SubscriptionID:       subID,
		CallbackGasLimit:     cfg.CallbackGasLimit,
		RequestConfirmations: cfg.RequestConfirmations,
	}, service.Deps{
		Coordinator: coordinator,
		Ledger:      accounts,
		Clock:       clock,
		States:      st.states,
		Winners:     st.winners,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if cfg.Journal != "" {
		journal, err := service.NewJournal(storage.NewJsonlStorage(cfg.Journal), cfg.ChainID, logger)
		if err != nil {
			return err
		}
		svc.Subscribe(journal)
	}
	hub := api.NewHub(32)
	svc.Subscribe(hub)

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewRouter(api.NewHandler(svc, hub, accounts, logger.Named("api"))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	keeperRunner := keeper.NewRunner(keeper.RunConfig{
		PollInterval: cfg.PollInterval,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, svc, logger.Named("keeper"))
	fulfiller := keeper.NewFulfiller(keeper.FulfillConfig{
		Delay:          cfg.FulfillDelay,
		SubscriptionID: subID,
		TopUp:          subscriptionFunding,
	}, coordinator, svc, logger.Named("fulfiller"))

	logger.Info("raffle start",
		zap.String("network", cfg.Network.Name),
		zap.Uint64("chain_id", cfg.ChainID),
		zap.String("raffle", address.Hex()),
		zap.String("entrance_fee", entranceFee.String()),
		zap.Duration("interval", cfg.Interval),
		zap.Uint64("sub_id", subID),
		zap.String("store", cfg.Store),
		zap.String("journal", cfg.Journal),
		zap.String("listen", cfg.Listen),
		zap.String("clock", cfg.ClockSource),
	)

	var wg sync.WaitGroup
	errCh := make(chan error, 3)
	background := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	background("keeper", keeperRunner.Run)
	background("fulfiller", fulfiller.Run)
	background("http", func(context.Context) error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case runErr = <-errCh:
		logger.Error("component failed", zap.Error(runErr))
		stop()
	}

	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	wg.Wait()

	return runErr
}

func newClock(ctx context.Context, cfg config.Config) (service.Clock, func(), error) {
	if cfg.ClockSource != "chain" {
		return service.SystemClock{}, func() {}, nil
	}
	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect rpc: %w", err)
	}
	return chain.BlockClock{Source: client}, client.Close, nil
}

func fundDevAccounts(accounts *ledger.Ledger, cfg config.Config, logger *zap.Logger) error {
	balance, err := model.ParseAmount(cfg.DevBalance, model.EtherDecimals, false)
	if err != nil {
		return fmt.Errorf("dev balance: %w", err)
	}
	for _, input := range cfg.DevAccounts {
		addr, err := indexer.ParseAddress(input)
		if err != nil {
			return fmt.Errorf("dev account: %w", err)
		}
		if err := accounts.Credit(addr, balance); err != nil {
			return err
		}
		logger.Debug("dev account funded", zap.String("address", addr.Hex()), zap.String("balance", balance.String()))
	}
	return nil
}
