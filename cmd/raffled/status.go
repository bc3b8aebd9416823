package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vrfLottery/internal/chain"
	"vrfLottery/internal/config"
	"vrfLottery/internal/contract"
	"vrfLottery/internal/indexer"
	"vrfLottery/internal/model"
)

type statusReport struct {
	Source      string               `json:"source"`
	Network     string               `json:"network"`
	ChainID     uint64               `json:"chain_id"`
	Coordinator string               `json:"coordinator,omitempty"`
	SubID       uint64               `json:"subscription_id,omitempty"`
	Snapshot    model.RaffleSnapshot `json:"snapshot"`
	EntranceFee string               `json:"entrance_fee,omitempty"`
	Interval    string               `json:"interval,omitempty"`
	Upkeep      *bool                `json:"upkeep_needed,omitempty"`
	Winners     []model.WinnerRecord `json:"winners,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
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

	address, err := indexer.ParseAddress(cfg.Address)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report := statusReport{Network: cfg.Network.Name, ChainID: cfg.ChainID}

	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()

		reader, err := contract.NewReader(chainClient, address)
		if err != nil {
			return err
		}
		snap, err := reader.Snapshot(ctx, cfg.MaxPlayers)
		if err != nil {
			return fmt.Errorf("read contract: %w", err)
		}
		fee, err := reader.EntranceFee(ctx)
		if err != nil {
			return fmt.Errorf("read contract: %w", err)
		}
		interval, err := reader.Interval(ctx)
		if err != nil {
			return fmt.Errorf("read contract: %w", err)
		}
		needed, err := reader.CheckUpkeep(ctx)
		if err != nil {
			return fmt.Errorf("read contract: %w", err)
		}

		report.Source = "chain"
		report.Coordinator = cfg.Coordinator
		report.SubID = cfg.SubscriptionID
		report.Snapshot = snap
		report.EntranceFee = fee.String()
		report.Interval = interval.String()
		report.Upkeep = &needed
		logger.Debug("status read from contract", zap.String("raffle", address.Hex()))
		return writeJSON(os.Stdout, report)
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()
	if st.states == nil {
		return fmt.Errorf("store %q keeps no snapshots", cfg.Store)
	}

	snap, ok, err := st.states.LoadSnapshot(ctx, address.Hex())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no snapshot for raffle %s in %s store", address.Hex(), cfg.Store)
	}
	report.Source = cfg.Store
	report.Snapshot = snap

	if st.winners != nil {
		limit, _ := cmd.Flags().GetInt("winners")
		winners, err := st.winners.ListWinners(ctx, address.Hex(), limit)
		if err != nil {
			return err
		}
		report.Winners = winners
	}

	return writeJSON(os.Stdout, report)
}

func writeJSON(w io.Writer, value interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
