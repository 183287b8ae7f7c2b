// Package wallet derives chain signing keys from a BIP-39 mnemonic. It is
// used to provision keys for the transaction core, which never stores them.
package wallet

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	"github.com/chinmay1088/odyssey-core/chains"
)

// Derivation paths (mainnet)
const (
	EthDerivationPath = "m/44'/60'/0'/0/0"
	BtcDerivationPath = "m/44'/0'/0'/0/0"
	SolDerivationPath = "m/44'/501'/0'/0'"
)

// Derivation paths (testnet)
const (
	EthTestnetDerivationPath = "m/44'/1'/0'/0/0"
	BtcTestnetDerivationPath = "m/44'/1'/0'/0/0"
	SolTestnetDerivationPath = "m/44'/501'/0'/1'"
)

// Key is a derived signing key. Secret is in the encoding the family's
// builder accepts: WIF for utxo, 0x-hex for evm, base58 for solana.
type Key struct {
	Family  chains.Family
	Path    string
	Address string
	Secret  []byte
}

// Zero clears the secret.
func (k *Key) Zero() {
	clear(k.Secret)
}

// DerivationPath returns the path used for family on network.
func DerivationPath(family chains.Family, testnet bool) (string, error) {
	switch family {
	case chains.FamilyUTXO:
		if testnet {
			return BtcTestnetDerivationPath, nil
		}
		return BtcDerivationPath, nil
	case chains.FamilyEVM:
		if testnet {
			return EthTestnetDerivationPath, nil
		}
		return EthDerivationPath, nil
	case chains.FamilySolana:
		if testnet {
			return SolTestnetDerivationPath, nil
		}
		return SolDerivationPath, nil
	}
	return "", errors.Wrapf(chains.ErrUnsupportedChain, "family %q", family)
}

// Derive derives the key of family from seed along path. params selects the
// Bitcoin network and is ignored by other families.
func Derive(seed []byte, family chains.Family, path string, params *chaincfg.Params) (*Key, error) {
	dp, err := accounts.ParseDerivationPath(path)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid derivation path %s", path)
	}

	switch family {
	case chains.FamilyUTXO:
		priv, err := deriveSecp256k1(seed, dp, params)
		if err != nil {
			return nil, err
		}
		return bitcoinKey(priv, path, params)
	case chains.FamilyEVM:
		priv, err := deriveSecp256k1(seed, dp, &chaincfg.MainNetParams)
		if err != nil {
			return nil, err
		}
		return ethereumKey(priv, path)
	case chains.FamilySolana:
		priv, err := deriveEd25519(seed, dp)
		if err != nil {
			return nil, err
		}
		defer clear(priv)
		sk := solana.PrivateKey(priv)
		return &Key{
			Family:  family,
			Path:    path,
			Address: sk.PublicKey().String(),
			Secret:  []byte(sk.String()),
		}, nil
	}
	return nil, errors.Wrapf(chains.ErrUnsupportedChain, "family %q", family)
}

// deriveSecp256k1 walks a BIP-32 path from the master key of seed.
func deriveSecp256k1(seed []byte, path accounts.DerivationPath, params *chaincfg.Params) (*btcec.PrivateKey, error) {
	key, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create master key")
	}
	for _, index := range path {
		key, err = key.Derive(index)
		if err != nil {
			return nil, errors.Wrap(err, "failed to derive child")
		}
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to extract private key")
	}
	return priv, nil
}

func bitcoinKey(priv *btcec.PrivateKey, path string, params *chaincfg.Params) (*Key, error) {
	defer priv.Zero()

	witnessProg := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	address, err := btcutil.NewAddressWitnessPubKeyHash(witnessProg, params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Bitcoin address")
	}
	wif, err := btcutil.NewWIF(priv, params, true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode WIF")
	}
	return &Key{
		Family:  chains.FamilyUTXO,
		Path:    path,
		Address: address.EncodeAddress(),
		Secret:  []byte(wif.String()),
	}, nil
}

func ethereumKey(priv *btcec.PrivateKey, path string) (*Key, error) {
	defer priv.Zero()

	ecdsaKey := priv.ToECDSA()
	raw := ethcrypto.FromECDSA(ecdsaKey)
	defer clear(raw)

	secret := make([]byte, 2+hex.EncodedLen(len(raw)))
	copy(secret, "0x")
	hex.Encode(secret[2:], raw)
	return &Key{
		Family:  chains.FamilyEVM,
		Path:    path,
		Address: ethcrypto.PubkeyToAddress(ecdsaKey.PublicKey).Hex(),
		Secret:  secret,
	}, nil
}

// deriveEd25519 follows SLIP-0010 for ed25519, where every level is
// hardened.
func deriveEd25519(seed []byte, path accounts.DerivationPath) (ed25519.PrivateKey, error) {
	sum := hmacSHA512([]byte("ed25519 seed"), seed)
	key, chainCode := sum[:32], sum[32:]
	for _, index := range path {
		if index < hdkeychain.HardenedKeyStart {
			return nil, errors.Errorf("ed25519 derivation supports hardened indexes only, got %d", index)
		}
		data := make([]byte, 0, 1+32+4)
		data = append(data, 0x00)
		data = append(data, key...)
		data = binary.BigEndian.AppendUint32(data, index)
		next := hmacSHA512(chainCode, data)
		clear(data)
		clear(sum)
		sum = next
		key, chainCode = sum[:32], sum[32:]
	}
	priv := ed25519.NewKeyFromSeed(key)
	clear(sum)
	return priv, nil
}

func hmacSHA512(key, data []byte) []byte {
	h := hmac.New(sha512.New, key)
	h.Write(data)
	return h.Sum(nil)
}
