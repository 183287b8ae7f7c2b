package ethereum

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/health"
	"github.com/chinmay1088/odyssey-core/log"
)

const (
	DefaultConfirmInterval = 2 * time.Second
	DefaultConfirmTimeout  = 3 * time.Minute
)

// Config describes one EVM chain.
type Config struct {
	Group           string // health group of the chain's endpoints
	ChainID         *big.Int
	ConfirmInterval time.Duration
	ConfirmTimeout  time.Duration
}

// Builder builds, signs, broadcasts and confirms EVM transfers.
//
// Nonces are read from the pending state immediately before signing and are
// not serialized: concurrent sends from the same sender may race for the same
// nonce.
type Builder struct {
	cfg   Config
	nodes nodes
}

// NewBuilder creates an EVM builder.
func NewBuilder(cfg Config, registry *health.Registry, dial Dialer) *Builder {
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = DefaultConfirmInterval
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	return &Builder{
		cfg:   cfg,
		nodes: nodes{group: cfg.Group, registry: registry, dial: dial},
	}
}

// Family returns chains.FamilyEVM.
func (b *Builder) Family() chains.Family {
	return chains.FamilyEVM
}

// Balance returns the native balance of address in ether units.
func (b *Builder) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	wei, err := call(ctx, b.nodes, func(ctx context.Context, node Node) (*big.Int, error) {
		return node.BalanceAt(ctx, addr, nil)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return chains.FromBaseUnits(wei, chains.EtherDecimals), nil
}

// Build resolves nonce, fees and gas limit for a transfer of value wei.
func (b *Builder) Build(ctx context.Context, from, to common.Address, value *big.Int, opts chains.SendOptions) (*UnsignedTransaction, error) {
	nonce, err := call(ctx, b.nodes, func(ctx context.Context, node Node) (uint64, error) {
		return node.PendingNonceAt(ctx, from)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch nonce")
	}

	fees, err := b.resolveFees(ctx, opts)
	if err != nil {
		return nil, err
	}

	gasLimit, err := b.resolveGasLimit(ctx, from, to, value, fees, opts)
	if err != nil {
		return nil, err
	}

	return &UnsignedTransaction{
		ChainID:  b.cfg.ChainID,
		Nonce:    nonce,
		To:       to,
		Value:    value,
		GasLimit: gasLimit,
		Fees:     fees,
	}, nil
}

// Transfer builds, signs and broadcasts a transfer, then waits for one
// confirmation. If the wait is abandoned the result is Pending and carries
// the reference; the transaction stays broadcast.
func (b *Builder) Transfer(ctx context.Context, req chains.TransferRequest, key []byte) (*chains.Result, error) {
	from, err := ParseAddress(req.From)
	if err != nil {
		return nil, err
	}
	to, err := ParseAddress(req.To)
	if err != nil {
		return nil, err
	}
	value, err := chains.ToBaseUnits(req.Amount, chains.EtherDecimals)
	if err != nil {
		return nil, err
	}

	priv, err := ParsePrivateKey(key)
	if err != nil {
		return nil, err
	}
	defer ZeroKey(priv)
	if crypto.PubkeyToAddress(priv.PublicKey) != from {
		return nil, errors.Wrapf(chains.ErrInvalidAddress, "key does not control %s", req.From)
	}

	unsigned, err := b.Build(ctx, from, to, value, req.Options)
	if err != nil {
		return nil, err
	}
	signed, err := unsigned.Sign(priv)
	if err != nil {
		return nil, err
	}
	ZeroKey(priv)

	if err := b.Broadcast(ctx, signed); err != nil {
		return nil, err
	}
	ref := signed.Hash().Hex()

	log.Ethereum.Info().
		Str("group", b.cfg.Group).
		Str("tx", ref).
		Uint64("nonce", unsigned.Nonce).
		Str("fee_mode", unsigned.Fees.Mode.String()).
		Str("fee_source", unsigned.Fees.Source).
		Uint64("gas", unsigned.GasLimit).
		Msg("Transaction broadcast")

	return b.WaitForReceipt(ctx, signed.Hash())
}

// Broadcast submits a signed transaction. A node that already knows it
// counts as success, so retries on other endpoints are idempotent.
func (b *Builder) Broadcast(ctx context.Context, signed *types.Transaction) error {
	_, err := call(ctx, b.nodes, func(ctx context.Context, node Node) (struct{}, error) {
		err := node.SendTransaction(ctx, signed)
		if err == nil || isAlreadyKnown(err) {
			return struct{}{}, nil
		}
		return struct{}{}, classify(err)
	})
	return err
}

// WaitForReceipt polls for the receipt of hash every ConfirmInterval until
// it is mined or ConfirmTimeout passes.
func (b *Builder) WaitForReceipt(ctx context.Context, hash common.Hash) (*chains.Result, error) {
	ref := hash.Hex()
	waitCtx, cancel := context.WithTimeout(ctx, b.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(b.cfg.ConfirmInterval)
	defer ticker.Stop()

	for {
		res, err := lookupReceipt(waitCtx, b.nodes, hash)
		if err == nil && res.Status != chains.StatusPending {
			return res, nil
		}
		if err != nil && !chains.Retryable(err) {
			return chains.Pending(ref), err
		}

		select {
		case <-ctx.Done():
			return chains.Pending(ref), chains.Wrap(chains.ErrTimeout, ctx.Err())
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return chains.Pending(ref), chains.Wrap(chains.ErrTimeout, ctx.Err())
			}
			log.Ethereum.Warn().Str("tx", ref).Dur("timeout", b.cfg.ConfirmTimeout).Msg("Gave up waiting for receipt")
			return chains.Pending(ref), nil
		case <-ticker.C:
		}
	}
}

func (b *Builder) resolveFees(ctx context.Context, opts chains.SendOptions) (Fees, error) {
	if opts.GasPrice != nil {
		if opts.GasPrice.Sign() <= 0 {
			return Fees{}, errors.Wrap(chains.ErrInvalidAmount, "gas price must be positive")
		}
		return LegacyFees(opts.GasPrice, "caller"), nil
	}

	if opts.MaxFeePerGas != nil || opts.MaxPriorityFeePerGas != nil {
		if opts.MaxFeePerGas == nil || opts.MaxPriorityFeePerGas == nil {
			return Fees{}, errors.Wrap(chains.ErrInvalidAmount, "maxFeePerGas and maxPriorityFeePerGas must be given together")
		}
		if opts.MaxFeePerGas.Cmp(opts.MaxPriorityFeePerGas) < 0 {
			return Fees{}, errors.Wrap(chains.ErrInvalidAmount, "maxFeePerGas is below maxPriorityFeePerGas")
		}
		return DynamicFees(opts.MaxFeePerGas, opts.MaxPriorityFeePerGas, "caller"), nil
	}

	header, err := call(ctx, b.nodes, func(ctx context.Context, node Node) (*types.Header, error) {
		return node.HeaderByNumber(ctx, nil)
	})
	if err == nil && header.BaseFee != nil {
		tip, err := call(ctx, b.nodes, func(ctx context.Context, node Node) (*big.Int, error) {
			return node.SuggestGasTipCap(ctx)
		})
		if err == nil && tip != nil {
			return NetworkDynamicFees(header.BaseFee, tip), nil
		}
		log.Ethereum.Debug().Err(err).Str("group", b.cfg.Group).Msg("Tip suggestion unavailable, using legacy gas price")
	}

	gasPrice, err := call(ctx, b.nodes, func(ctx context.Context, node Node) (*big.Int, error) {
		return node.SuggestGasPrice(ctx)
	})
	if err != nil {
		return Fees{}, errors.Wrap(err, "failed to fetch gas price")
	}
	return LegacyFees(gasPrice, "network"), nil
}

func (b *Builder) resolveGasLimit(ctx context.Context, from, to common.Address, value *big.Int, fees Fees, opts chains.SendOptions) (uint64, error) {
	if opts.GasLimit != nil {
		if *opts.GasLimit == 0 {
			return 0, errors.Wrap(chains.ErrInvalidAmount, "gas limit must be positive")
		}
		return *opts.GasLimit, nil
	}

	msg := ethereum.CallMsg{From: from, To: &to, Value: value}
	if fees.Mode == FeeDynamic {
		msg.GasFeeCap = fees.MaxFee
		msg.GasTipCap = fees.MaxPriorityFee
	} else {
		msg.GasPrice = fees.GasPrice
	}

	gas, err := call(ctx, b.nodes, func(ctx context.Context, node Node) (uint64, error) {
		gas, err := node.EstimateGas(ctx, msg)
		if err != nil {
			return 0, classify(err)
		}
		return gas, nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to estimate gas")
	}
	return gas, nil
}
