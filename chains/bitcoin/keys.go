package bitcoin

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"

	"github.com/chinmay1088/odyssey-core/chains"
)

// ParseAddress decodes address and checks that it belongs to params' network
func ParseAddress(address string, params *chaincfg.Params) (btcutil.Address, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, errors.Wrapf(chains.ErrInvalidAddress, "%s: %v", address, err)
	}
	if !addr.IsForNet(params) {
		return nil, errors.Wrapf(chains.ErrInvalidAddress, "%s is not a %s address", address, params.Name)
	}
	return addr, nil
}

// CreateP2WPKHAddress creates a P2WPKH address from public key
func CreateP2WPKHAddress(publicKey *btcec.PublicKey, params *chaincfg.Params) (*btcutil.AddressWitnessPubKeyHash, error) {
	pubKeyHash := btcutil.Hash160(publicKey.SerializeCompressed())
	return btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, params)
}

// ParsePrivateKey accepts a WIF string or 32 hex-encoded bytes. The returned
// key must be zeroed by the caller.
func ParsePrivateKey(key []byte) (*btcec.PrivateKey, error) {
	trimmed := bytes.TrimSpace(key)

	if len(trimmed) == 64 {
		raw := make([]byte, 32)
		defer clear(raw)
		if _, err := hex.Decode(raw, trimmed); err == nil {
			priv, _ := btcec.PrivKeyFromBytes(raw)
			return priv, nil
		}
	}

	wif, err := btcutil.DecodeWIF(string(trimmed))
	if err != nil {
		return nil, errors.Wrap(chains.ErrKeyDecryptionFailed, "private key is neither WIF nor 32-byte hex")
	}
	return wif.PrivKey, nil
}
