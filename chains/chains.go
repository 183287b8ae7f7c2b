// Package chains holds the vocabulary shared by the per-family transaction
// builders: chain families, the normalized result envelope, transfer requests
// and the error taxonomy.
package chains

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
)

// Family identifies a transaction model.
type Family string

const (
	FamilyUTXO    Family = "utxo"
	FamilyEVM     Family = "evm"
	FamilySolana  Family = "solana"
	familyUnknown Family = ""
)

// ParseFamily converts a config string to a Family.
func ParseFamily(s string) (Family, bool) {
	switch Family(s) {
	case FamilyUTXO, FamilyEVM, FamilySolana:
		return Family(s), true
	}
	return familyUnknown, false
}

// Status is the normalized confirmation state of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Result is the normalized envelope returned after broadcast and by status
// lookups. Height is a block number for UTXO/EVM chains and a slot for Solana;
// it is nil until the transaction has been observed in a block.
type Result struct {
	TxReference   string  `json:"txReference"`
	Status        Status  `json:"status"`
	Height        *uint64 `json:"blockHeightOrSlot,omitempty"`
	Confirmations uint64  `json:"confirmations"`
}

// Pending returns a pending result for ref.
func Pending(ref string) *Result {
	return &Result{TxReference: ref, Status: StatusPending}
}

// Confirmed returns a confirmed result observed at height.
func Confirmed(ref string, height uint64, confirmations uint64) *Result {
	h := height
	return &Result{TxReference: ref, Status: StatusConfirmed, Height: &h, Confirmations: confirmations}
}

// Failed returns a failed result. height may be zero when the chain did not
// report one.
func Failed(ref string, height uint64) *Result {
	r := &Result{TxReference: ref, Status: StatusFailed}
	if height > 0 {
		h := height
		r.Height = &h
	}
	return r
}

// SendOptions are the caller-tunable knobs of a transfer. Fields that do not
// apply to a family are ignored by its builder.
type SendOptions struct {
	// UTXO
	FeeRate         *float64 // sat/vB
	EstimateFeeRate bool

	// EVM
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasLimit             *uint64
}

// TransferRequest is a user intent to move Amount (in the chain's display
// unit, e.g. BTC, ETH, SOL) from From to To.
type TransferRequest struct {
	Chain   string
	From    string
	To      string
	Amount  decimal.Decimal
	Options SendOptions
}

// Builder is implemented once per chain family. The dispatch service holds
// one Builder per chain identifier.
type Builder interface {
	Family() Family
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
	Transfer(ctx context.Context, req TransferRequest, key []byte) (*Result, error)
}

// StatusSource looks up the confirmation state of a transaction reference.
// A reference the chain has not seen yet yields a Pending result, not an error.
type StatusSource interface {
	Lookup(ctx context.Context, ref string) (*Result, error)
}
