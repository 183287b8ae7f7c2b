package config

import "time"

// Network names.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

const (
	DefaultRPCTimeout     = 10 * time.Second
	DefaultHealthInterval = 15 * time.Second
	DefaultStaleAfter     = 30 * time.Second
	DefaultListen         = ":8080"
	DefaultSendTimeout    = 5 * time.Minute
	DefaultFeeSats        = 10000
)

// chainDefaults are the built-in public endpoints per network. The first
// endpoint of each list is the primary.
var chainDefaults = map[string]map[string]Chain{
	NetworkMainnet: {
		"bitcoin": {
			Family:    "utxo",
			Endpoints: Endpoints{Primary: "https://bitcoin-rpc.publicnode.com"},
			Index: Endpoints{
				Primary:   "https://mempool.space/api",
				Fallbacks: []string{"https://blockstream.info/api"},
			},
			DefaultFeeSats: DefaultFeeSats,
			Aliases:        []string{"btc"},
		},
		"ethereum": {
			Family:  "evm",
			ChainID: 1,
			Endpoints: Endpoints{
				Primary:   "https://ethereum-rpc.publicnode.com",
				Fallbacks: []string{"https://eth.llamarpc.com", "https://rpc.ankr.com/eth"},
			},
			Aliases: []string{"eth"},
		},
		"polygon": {
			Family:  "evm",
			ChainID: 137,
			Endpoints: Endpoints{
				Primary:   "https://polygon-bor-rpc.publicnode.com",
				Fallbacks: []string{"https://polygon-rpc.com"},
			},
			Aliases: []string{"matic", "pol"},
		},
		"bsc": {
			Family:  "evm",
			ChainID: 56,
			Endpoints: Endpoints{
				Primary:   "https://bsc-rpc.publicnode.com",
				Fallbacks: []string{"https://bsc-dataseed.binance.org"},
			},
			Aliases: []string{"bnb"},
		},
		"arbitrum": {
			Family:  "evm",
			ChainID: 42161,
			Endpoints: Endpoints{
				Primary:   "https://arbitrum-one-rpc.publicnode.com",
				Fallbacks: []string{"https://arb1.arbitrum.io/rpc"},
			},
			Aliases: []string{"arb"},
		},
		"base": {
			Family:  "evm",
			ChainID: 8453,
			Endpoints: Endpoints{
				Primary:   "https://base-rpc.publicnode.com",
				Fallbacks: []string{"https://mainnet.base.org"},
			},
		},
		"solana": {
			Family: "solana",
			Endpoints: Endpoints{
				Primary:   "https://api.mainnet-beta.solana.com",
				Fallbacks: []string{"https://solana-rpc.publicnode.com"},
			},
			Aliases: []string{"sol"},
		},
	},
	NetworkTestnet: {
		"bitcoin": {
			Family:    "utxo",
			Endpoints: Endpoints{Primary: "https://bitcoin-testnet-rpc.publicnode.com"},
			Index: Endpoints{
				Primary:   "https://mempool.space/testnet/api",
				Fallbacks: []string{"https://blockstream.info/testnet/api"},
			},
			DefaultFeeSats: DefaultFeeSats,
			Aliases:        []string{"btc"},
		},
		"ethereum": {
			Family:  "evm",
			ChainID: 11155111,
			Endpoints: Endpoints{
				Primary:   "https://ethereum-sepolia.publicnode.com",
				Fallbacks: []string{"https://rpc.sepolia.org"},
			},
			Aliases: []string{"eth"},
		},
		"polygon": {
			Family:    "evm",
			ChainID:   80002,
			Endpoints: Endpoints{Primary: "https://polygon-amoy-bor-rpc.publicnode.com"},
			Aliases:   []string{"matic", "pol"},
		},
		"bsc": {
			Family:  "evm",
			ChainID: 97,
			Endpoints: Endpoints{
				Primary:   "https://bsc-testnet-rpc.publicnode.com",
				Fallbacks: []string{"https://data-seed-prebsc-1-s1.bnbchain.org:8545"},
			},
			Aliases: []string{"bnb"},
		},
		"arbitrum": {
			Family:    "evm",
			ChainID:   421614,
			Endpoints: Endpoints{Primary: "https://arbitrum-sepolia-rpc.publicnode.com"},
			Aliases:   []string{"arb"},
		},
		"base": {
			Family:  "evm",
			ChainID: 84532,
			Endpoints: Endpoints{
				Primary:   "https://base-sepolia-rpc.publicnode.com",
				Fallbacks: []string{"https://sepolia.base.org"},
			},
		},
		"solana": {
			Family:    "solana",
			Endpoints: Endpoints{Primary: "https://api.devnet.solana.com"},
			Aliases:   []string{"sol"},
		},
	},
}
