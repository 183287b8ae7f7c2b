package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "odyssey.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, NetworkMainnet, cfg.Network)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DefaultRPCTimeout, cfg.RPC.Timeout)
	assert.Equal(t, DefaultHealthInterval, cfg.Health.Interval)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Empty(t, cfg.File)

	assert.Equal(t, []string{"arbitrum", "base", "bitcoin", "bsc", "ethereum", "polygon", "solana"}, cfg.ChainIDs())

	eth := cfg.Chains["ethereum"]
	assert.Equal(t, "evm", eth.Family)
	assert.Equal(t, int64(1), eth.ChainID)
	assert.Equal(t, "https://ethereum-rpc.publicnode.com", eth.Primary)
	assert.Len(t, eth.Fallbacks, 2)

	btc := cfg.Chains["bitcoin"]
	assert.Equal(t, "https://mempool.space/api", btc.Index.Primary)
	assert.Equal(t, int64(DefaultFeeSats), btc.DefaultFeeSats)
	assert.Equal(t, []string{"btc"}, btc.Aliases)
}

func TestLoad_TestnetDefaults(t *testing.T) {
	cfg, err := Load("", "TESTNET")
	require.NoError(t, err)
	assert.Equal(t, NetworkTestnet, cfg.Network)
	assert.Equal(t, int64(11155111), cfg.Chains["ethereum"].ChainID)
	assert.Equal(t, "https://api.devnet.solana.com", cfg.Chains["solana"].Primary)
}

func TestLoad_FileOverridesSingleFields(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
rpc:
  timeout: 4s
chains:
  ethereum:
    primary: http://localhost:8545
    confirm_timeout: 1m
  optimism:
    family: evm
    chain_id: 10
    primary: https://optimism-rpc.publicnode.com
    fallbacks: [https://mainnet.optimism.io]
`)
	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 4*time.Second, cfg.RPC.Timeout)

	eth := cfg.Chains["ethereum"]
	assert.Equal(t, "http://localhost:8545", eth.Primary)
	assert.Equal(t, time.Minute, eth.ConfirmTimeout)
	assert.Equal(t, int64(1), eth.ChainID, "unset fields keep the built-in value")

	op := cfg.Chains["optimism"]
	assert.Equal(t, int64(10), op.ChainID)
	assert.Equal(t, []string{"https://mainnet.optimism.io"}, op.Fallbacks)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ODYSSEY_KEYS_SECRET", "from-env")
	t.Setenv("ODYSSEY_NETWORK", "testnet")
	t.Setenv("ODYSSEY_CHAINS_SOLANA_PRIMARY", "http://localhost:8899")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Keys.Secret)
	assert.Equal(t, NetworkTestnet, cfg.Network)
	assert.Equal(t, "http://localhost:8899", cfg.Chains["solana"].Primary)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"bad network": `network: regtest`,
		"bad family": `
chains:
  dogecoin:
    family: scrypt
    primary: http://localhost`,
		"evm without chain id": `
chains:
  optimism:
    family: evm
    primary: http://localhost`,
		"utxo without index": `
chains:
  litecoin:
    family: utxo
    primary: http://localhost`,
		"no primary": `
chains:
  ethereum:
    primary: ""`,
		"alias clash": `
chains:
  optimism:
    family: evm
    chain_id: 10
    primary: http://localhost
    aliases: [eth]`,
		"bad log level": `
log:
  level: loud`,
		"bad key mode": `
keys:
  mode: hsm`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body), "")
			assert.Error(t, err)
		})
	}
}

func TestIndexGroup(t *testing.T) {
	assert.Equal(t, "bitcoin-index", IndexGroup("bitcoin"))
}
