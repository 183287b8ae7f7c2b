package wallet

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/chains/bitcoin"
	"github.com/chinmay1088/odyssey-core/chains/ethereum"
	"github.com/chinmay1088/odyssey-core/chains/solana"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func testSeed(t *testing.T) []byte {
	t.Helper()
	seed, err := Seed(testMnemonic, "")
	require.NoError(t, err)
	return seed
}

func TestGenerateMnemonic(t *testing.T) {
	m, err := GenerateMnemonic()
	require.NoError(t, err)
	assert.Len(t, strings.Fields(m), 24)

	_, err = Seed(m, "")
	assert.NoError(t, err)
}

func TestSeed_Invalid(t *testing.T) {
	_, err := Seed("abandon abandon abandon", "")
	assert.Error(t, err)

	_, err = Seed(strings.Replace(testMnemonic, "about", "abandon", 1), "")
	assert.Error(t, err, "bad checksum")
}

func TestSeed_NormalizesWhitespace(t *testing.T) {
	a, err := Seed("  "+strings.ReplaceAll(testMnemonic, " ", "\n ")+"\n", "")
	require.NoError(t, err)
	assert.Equal(t, testSeed(t), a)
}

func TestDerive_Ethereum(t *testing.T) {
	key, err := Derive(testSeed(t), chains.FamilyEVM, EthDerivationPath, &chaincfg.MainNetParams)
	require.NoError(t, err)
	assert.Equal(t, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", key.Address)
	assert.True(t, strings.HasPrefix(string(key.Secret), "0x"))

	priv, err := ethereum.ParsePrivateKey(key.Secret)
	require.NoError(t, err)
	assert.Equal(t, key.Address, ethcrypto.PubkeyToAddress(priv.PublicKey).Hex())

	key.Zero()
	assert.Equal(t, make([]byte, len(key.Secret)), key.Secret)
}

func TestDerive_Bitcoin(t *testing.T) {
	for _, params := range []*chaincfg.Params{&chaincfg.MainNetParams, &chaincfg.TestNet3Params} {
		t.Run(params.Name, func(t *testing.T) {
			path, err := DerivationPath(chains.FamilyUTXO, params != &chaincfg.MainNetParams)
			require.NoError(t, err)

			key, err := Derive(testSeed(t), chains.FamilyUTXO, path, params)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(key.Address, params.Bech32HRPSegwit+"1"))

			_, err = bitcoin.ParseAddress(key.Address, params)
			require.NoError(t, err)

			priv, err := bitcoin.ParsePrivateKey(key.Secret)
			require.NoError(t, err)
			addr, err := bitcoin.CreateP2WPKHAddress(priv.PubKey(), params)
			require.NoError(t, err)
			assert.Equal(t, key.Address, addr.EncodeAddress())
		})
	}
}

func TestDerive_Solana(t *testing.T) {
	seed := testSeed(t)
	key, err := Derive(seed, chains.FamilySolana, SolDerivationPath, nil)
	require.NoError(t, err)

	priv, err := solana.ParsePrivateKey(key.Secret)
	require.NoError(t, err)
	assert.Equal(t, key.Address, priv.PublicKey().String())

	testnet, err := Derive(seed, chains.FamilySolana, SolTestnetDerivationPath, nil)
	require.NoError(t, err)
	assert.NotEqual(t, key.Address, testnet.Address)
}

func TestDerive_Errors(t *testing.T) {
	seed := testSeed(t)

	_, err := Derive(seed, chains.FamilySolana, "m/44'/501'/0'/0", nil)
	assert.Error(t, err, "ed25519 needs hardened indexes")

	_, err = Derive(seed, chains.FamilyEVM, "not/a/path", nil)
	assert.Error(t, err)

	_, err = Derive(seed, chains.Family("cosmos"), EthDerivationPath, nil)
	assert.ErrorIs(t, err, chains.ErrUnsupportedChain)

	_, err = DerivationPath(chains.Family("cosmos"), false)
	assert.ErrorIs(t, err, chains.ErrUnsupportedChain)
}

// SLIP-0010 ed25519 test vector 1.
func TestDeriveEd25519_Vector(t *testing.T) {
	seed, err := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)

	master, err := deriveEd25519(seed, accounts.DerivationPath{})
	require.NoError(t, err)
	assert.Equal(t, "2b4be7f19ee27bbf30c667b642d5f4aa69fd169872f8fc3059c08ebae2eb19e7", hex.EncodeToString(master.Seed()))

	child, err := deriveEd25519(seed, accounts.DerivationPath{hdkeychain.HardenedKeyStart})
	require.NoError(t, err)
	assert.Equal(t, "68e0fe46dfb67e368c75379acec591dad19df3cde26e63b93a8e704f1dade7a3", hex.EncodeToString(child.Seed()))
}
