package chains

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Smallest-unit exponents of the supported native assets.
const (
	BitcoinDecimals int32 = 8
	EtherDecimals   int32 = 18
	SolanaDecimals  int32 = 9
)

// ParseAmount parses a decimal amount string. The amount must be positive.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "%q", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidAmount, "%s is not positive", s)
	}
	return d, nil
}

// ToBaseUnits converts a display amount into the chain's smallest unit.
// Amounts with more precision than the unit allows are rejected rather than
// rounded.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if !amount.IsPositive() {
		return nil, errors.Wrapf(ErrInvalidAmount, "%s is not positive", amount)
	}
	shifted := amount.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, errors.Wrapf(ErrInvalidAmount, "%s has more than %d decimal places", amount, decimals)
	}
	return shifted.BigInt(), nil
}

// FromBaseUnits converts a smallest-unit integer into a display amount.
func FromBaseUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}
