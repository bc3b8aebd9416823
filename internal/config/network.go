package config

import "time"

// DevChainID is the chain id of the local development network.
const DevChainID uint64 = 31337

// Network holds the per-chain deployment defaults.
type Network struct {
	Name             string
	EntranceFee      string
	KeyHash          string
	SubscriptionID   uint64
	CallbackGasLimit uint32
	Interval         time.Duration
	Coordinator      string
	Development      bool
}

var networks = map[uint64]Network{
	DevChainID: {
		Name:             "hardhat",
		EntranceFee:      "0.01",
		KeyHash:          "0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c",
		CallbackGasLimit: 500000,
		Interval:         30 * time.Second,
		Development:      true,
	},
	5: {
		Name:             "goerli",
		EntranceFee:      "0.01",
		KeyHash:          "0x79d3d8832d904592c0bf9818b621522c988bb8b0c05cdc3b15aea1b6e8db0c15",
		CallbackGasLimit: 500000,
		Interval:         30 * time.Second,
		Coordinator:      "0x2Ca8E0C643bDe4C2E08ab1fA0da3401AdAD7734D",
	},
	11155111: {
		Name:             "sepolia",
		EntranceFee:      "0.01",
		KeyHash:          "0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c",
		CallbackGasLimit: 500000,
		Interval:         30 * time.Second,
		Coordinator:      "0x8103B0A8A00be2DDC778e6e7eaa21791Cd364625",
	},
}

// LookupNetwork returns the preset for chainID.
func LookupNetwork(chainID uint64) (Network, bool) {
	n, ok := networks[chainID]
	return n, ok
}

// IsDevelopment reports whether chainID is a local development chain.
func IsDevelopment(chainID uint64) bool {
	n, ok := networks[chainID]
	return ok && n.Development
}
