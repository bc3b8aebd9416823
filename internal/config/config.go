package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Hardhat's first two default accounts, funded on development chains.
var defaultDevAccounts = []string{
	"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
	"0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
}

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	ChainID uint64
	Network Network

	Address              string
	EntranceFee          string
	Interval             time.Duration
	KeyHash              string
	SubscriptionID       uint64
	CallbackGasLimit     uint32
	RequestConfirmations uint16
	Coordinator          string

	RPCURL      string
	ClockSource string

	Store      string
	StateFile  string
	SQLitePath string
	PGDSN      string
	Journal    string

	Listen       string
	PollInterval time.Duration
	FulfillDelay time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	DevAccounts []string
	DevBalance  string

	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	Checkpoint        string
	CheckpointEnabled bool
	MaxPlayers        uint64

	LogLevel string
}

// Development reports whether the configured chain is a local one.
func (c Config) Development() bool {
	return IsDevelopment(c.ChainID)
}

// Load merges config file, environment variables, and flags into Config.
// Values not given explicitly fall back to the preset of the selected chain.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RAFFLE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", DevChainID)
	v.SetDefault("address", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	v.SetDefault("request-confirmations", 3)
	v.SetDefault("clock", "system")
	v.SetDefault("store", "file")
	v.SetDefault("state-file", "./data/raffle_state.json")
	v.SetDefault("sqlite-path", "./data/raffle.db")
	v.SetDefault("journal", "./data/raffle_events.jsonl")
	v.SetDefault("listen", ":8080")
	v.SetDefault("poll-interval", 5*time.Second)
	v.SetDefault("fulfill-delay", 2*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("dev-accounts", defaultDevAccounts)
	v.SetDefault("dev-balance", "10000")
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("checkpoint", "./data/history_checkpoint.json")
	v.SetDefault("checkpoint-enabled", false)
	v.SetDefault("max-players", uint64(1000))
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	chainID := v.GetUint64("chain-id")
	network, ok := LookupNetwork(chainID)
	if !ok {
		network = Network{Name: fmt.Sprintf("chain-%d", chainID)}
	}
	applyNetworkDefaults(v, network)

	cfg := Config{
		ChainID:              chainID,
		Network:              network,
		Address:              v.GetString("address"),
		EntranceFee:          v.GetString("entrance-fee"),
		Interval:             v.GetDuration("interval"),
		KeyHash:              v.GetString("key-hash"),
		SubscriptionID:       v.GetUint64("subscription-id"),
		CallbackGasLimit:     v.GetUint32("callback-gas-limit"),
		RequestConfirmations: v.GetUint16("request-confirmations"),
		Coordinator:          v.GetString("coordinator"),
		RPCURL:               v.GetString("rpc"),
		ClockSource:          v.GetString("clock"),
		Store:                v.GetString("store"),
		StateFile:            v.GetString("state-file"),
		SQLitePath:           v.GetString("sqlite-path"),
		PGDSN:                v.GetString("pg-dsn"),
		Journal:              v.GetString("journal"),
		Listen:               v.GetString("listen"),
		PollInterval:         v.GetDuration("poll-interval"),
		FulfillDelay:         v.GetDuration("fulfill-delay"),
		MaxRetries:           v.GetInt("max-retries"),
		RetryBackoff:         v.GetDuration("retry-backoff"),
		DevAccounts:          getStringSlice(v, "dev-accounts"),
		DevBalance:           v.GetString("dev-balance"),
		FromBlock:            v.GetUint64("from"),
		ToBlock:              v.GetUint64("to"),
		BatchSize:            v.GetUint64("batch-size"),
		Checkpoint:           v.GetString("checkpoint"),
		CheckpointEnabled:    v.GetBool("checkpoint-enabled"),
		MaxPlayers:           v.GetUint64("max-players"),
		LogLevel:             v.GetString("log-level"),
	}

	return cfg, nil
}

func applyNetworkDefaults(v *viper.Viper, n Network) {
	if n.EntranceFee != "" {
		v.SetDefault("entrance-fee", n.EntranceFee)
	}
	if n.Interval > 0 {
		v.SetDefault("interval", n.Interval)
	}
	if n.KeyHash != "" {
		v.SetDefault("key-hash", n.KeyHash)
	}
	if n.SubscriptionID > 0 {
		v.SetDefault("subscription-id", n.SubscriptionID)
	}
	if n.CallbackGasLimit > 0 {
		v.SetDefault("callback-gas-limit", n.CallbackGasLimit)
	}
	if n.Coordinator != "" {
		v.SetDefault("coordinator", n.Coordinator)
	}
}

// Validate checks the settings the raffle service needs.
func (c Config) Validate() error {
	if c.EntranceFee == "" {
		return fmt.Errorf("entrance fee is required for chain %d", c.ChainID)
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}
	if c.RequestConfirmations == 0 {
		return fmt.Errorf("request confirmations must be greater than zero")
	}
	switch c.ClockSource {
	case "system":
	case "chain":
		if c.RPCURL == "" {
			return fmt.Errorf("clock %q requires an rpc url", c.ClockSource)
		}
	default:
		return fmt.Errorf("unknown clock source %q (want system or chain)", c.ClockSource)
	}
	switch c.Store {
	case "none", "file", "sqlite":
	case "postgres":
		if c.PGDSN == "" {
			return fmt.Errorf("store postgres requires pg-dsn")
		}
	default:
		return fmt.Errorf("unknown store %q (want none, file, sqlite or postgres)", c.Store)
	}
	if c.Development() {
		if c.SubscriptionID != 0 {
			return fmt.Errorf("subscription id %d cannot be used on %s, development subscriptions are created at start", c.SubscriptionID, c.Network.Name)
		}
	} else if c.SubscriptionID == 0 {
		return fmt.Errorf("subscription id is required on %s", c.Network.Name)
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
