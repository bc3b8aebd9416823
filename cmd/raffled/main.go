package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "raffled",
		Short:        "Provably fair raffle service",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Serve a raffle with its keeper and HTTP API",
		RunE:  runServe,
	}

	addRaffleFlags(runCmd.Flags())
	runCmd.Flags().String("rpc", "", "RPC URL, used when --clock=chain")
	runCmd.Flags().String("clock", "system", "time source for round intervals (system, chain)")
	runCmd.Flags().String("store", "file", "snapshot store (none, file, sqlite, postgres)")
	runCmd.Flags().String("state-file", "./data/raffle_state.json", "snapshot file for --store=file")
	runCmd.Flags().String("sqlite-path", "./data/raffle.db", "database path for --store=sqlite")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN for --store=postgres")
	runCmd.Flags().String("journal", "./data/raffle_events.jsonl", "event journal JSONL path, empty disables")
	runCmd.Flags().String("listen", ":8080", "HTTP listen address")
	runCmd.Flags().Duration("poll-interval", 5*time.Second, "keeper eligibility poll interval")
	runCmd.Flags().Duration("fulfill-delay", 2*time.Second, "delay before pending randomness requests are answered")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().StringSlice("dev-accounts", nil, "accounts funded at start on development chains")
	runCmd.Flags().String("dev-balance", "10000", "ether credited to each development account")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print raffle state from the snapshot store or a deployed contract",
		RunE:  runStatus,
	}

	statusCmd.Flags().Uint64("chain-id", 31337, "chain id")
	statusCmd.Flags().String("address", "", "raffle address")
	statusCmd.Flags().String("rpc", "", "RPC URL; when set the deployed contract is read")
	statusCmd.Flags().String("coordinator", "", "VRF coordinator address (default from network preset)")
	statusCmd.Flags().Uint64("subscription-id", 0, "randomness subscription id of the deployed raffle")
	statusCmd.Flags().Uint64("max-players", 1000, "maximum players listed from a deployed contract")
	statusCmd.Flags().String("store", "file", "snapshot store (file, sqlite, postgres)")
	statusCmd.Flags().String("state-file", "./data/raffle_state.json", "snapshot file for --store=file")
	statusCmd.Flags().String("sqlite-path", "./data/raffle.db", "database path for --store=sqlite")
	statusCmd.Flags().String("pg-dsn", "", "Postgres DSN for --store=postgres")
	statusCmd.Flags().Int("winners", 5, "recent winners listed from a history store")
	statusCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(statusCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Decode raffle events from the journal or from chain logs",
		RunE:  runHistory,
	}

	historyCmd.Flags().String("address", "", "raffle address")
	historyCmd.Flags().String("journal", "./data/raffle_events.jsonl", "journal to read when --rpc is not set")
	historyCmd.Flags().String("rpc", "", "RPC URL; when set logs are fetched from the chain")
	historyCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	historyCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	historyCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	historyCmd.Flags().String("out", "", "append fetched raw logs to this JSONL file")
	historyCmd.Flags().String("checkpoint", "./data/history_checkpoint.json", "checkpoint file path")
	historyCmd.Flags().Bool("checkpoint-enabled", false, "resume from and update the checkpoint")
	historyCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	historyCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	historyCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(historyCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRaffleFlags(flags *pflag.FlagSet) {
	flags.Uint64("chain-id", 31337, "chain id, selects the network preset")
	flags.String("address", "", "raffle address")
	flags.String("entrance-fee", "", "entrance fee in ether (default from network preset)")
	flags.Duration("interval", 0, "minimum round duration (default from network preset)")
	flags.String("key-hash", "", "gas lane key hash (default from network preset)")
	flags.Uint64("subscription-id", 0, "randomness subscription id on deployed networks")
	flags.Uint32("callback-gas-limit", 0, "callback gas limit (default from network preset)")
	flags.Uint16("request-confirmations", 3, "block confirmations requested with randomness")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
