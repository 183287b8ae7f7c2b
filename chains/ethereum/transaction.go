package ethereum

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/chinmay1088/odyssey-core/chains"
)

// FeeMode says which pricing fields a transaction carries.
type FeeMode int

const (
	FeeLegacy FeeMode = iota
	FeeDynamic
)

func (m FeeMode) String() string {
	if m == FeeDynamic {
		return "eip1559"
	}
	return "legacy"
}

// Fees holds exactly one pricing mode: GasPrice for legacy, or the
// MaxFee/MaxPriorityFee pair for EIP-1559.
type Fees struct {
	Mode           FeeMode
	GasPrice       *big.Int
	MaxFee         *big.Int
	MaxPriorityFee *big.Int
	Source         string // "caller" or "network"
}

// LegacyFees prices a transaction with a flat gas price.
func LegacyFees(gasPrice *big.Int, source string) Fees {
	return Fees{Mode: FeeLegacy, GasPrice: new(big.Int).Set(gasPrice), Source: source}
}

// DynamicFees prices a transaction with an EIP-1559 pair.
func DynamicFees(maxFee, maxPriorityFee *big.Int, source string) Fees {
	return Fees{
		Mode:           FeeDynamic,
		MaxFee:         new(big.Int).Set(maxFee),
		MaxPriorityFee: new(big.Int).Set(maxPriorityFee),
		Source:         source,
	}
}

// NetworkDynamicFees derives the EIP-1559 pair from the latest base fee and
// the suggested tip: maxFee = 2*baseFee + tip.
func NetworkDynamicFees(baseFee, tip *big.Int) Fees {
	maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)
	return DynamicFees(maxFee, tip, "network")
}

// UnsignedTransaction is a transfer ready for signing.
type UnsignedTransaction struct {
	ChainID  *big.Int
	Nonce    uint64
	To       common.Address
	Value    *big.Int
	GasLimit uint64
	Fees     Fees
}

// Tx returns the go-ethereum transaction for u. Legacy fees produce a legacy
// (EIP-155) transaction, dynamic fees an EIP-1559 transaction.
func (u *UnsignedTransaction) Tx() *types.Transaction {
	to := u.To
	if u.Fees.Mode == FeeDynamic {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   u.ChainID,
			Nonce:     u.Nonce,
			GasTipCap: u.Fees.MaxPriorityFee,
			GasFeeCap: u.Fees.MaxFee,
			Gas:       u.GasLimit,
			To:        &to,
			Value:     u.Value,
		})
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    u.Nonce,
		GasPrice: u.Fees.GasPrice,
		Gas:      u.GasLimit,
		To:       &to,
		Value:    u.Value,
	})
}

// Sign signs u with key. The chain ID is bound into the signature.
func (u *UnsignedTransaction) Sign(key *ecdsa.PrivateKey) (*types.Transaction, error) {
	signed, err := types.SignTx(u.Tx(), types.LatestSignerForChainID(u.ChainID), key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}
	return signed, nil
}

// ParseAddress validates a hex address
func ParseAddress(address string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, errors.Wrapf(chains.ErrInvalidAddress, "%q is not a hex address", address)
	}
	return common.HexToAddress(address), nil
}

// ParsePrivateKey decodes a hex private key, with or without 0x prefix. The
// caller must zero the returned key with ZeroKey.
func ParsePrivateKey(key []byte) (*ecdsa.PrivateKey, error) {
	s := bytes.TrimPrefix(bytes.TrimSpace(key), []byte("0x"))

	raw := make([]byte, hex.DecodedLen(len(s)))
	defer clear(raw)
	if _, err := hex.Decode(raw, s); err != nil {
		return nil, errors.Wrap(chains.ErrKeyDecryptionFailed, "private key is not valid hex")
	}
	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, errors.Wrapf(chains.ErrKeyDecryptionFailed, "invalid private key: %v", err)
	}
	return priv, nil
}

// ZeroKey overwrites the secret scalar of k.
func ZeroKey(k *ecdsa.PrivateKey) {
	if k == nil || k.D == nil {
		return
	}
	clear(k.D.Bits())
}
