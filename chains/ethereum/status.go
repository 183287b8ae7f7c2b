package ethereum

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/health"
)

// Tracker looks up EVM transaction status by receipt.
type Tracker struct {
	nodes nodes
}

// NewTracker creates a tracker for the chain's endpoint group.
func NewTracker(cfg Config, registry *health.Registry, dial Dialer) *Tracker {
	return &Tracker{nodes: nodes{group: cfg.Group, registry: registry, dial: dial}}
}

// Lookup returns the normalized status of the transaction hash ref.
func (t *Tracker) Lookup(ctx context.Context, ref string) (*chains.Result, error) {
	raw, err := hexutil.Decode(ref)
	if err != nil || len(raw) != common.HashLength {
		return nil, errors.Wrapf(chains.ErrInvalidAddress, "invalid transaction hash %q", ref)
	}
	return lookupReceipt(ctx, t.nodes, common.BytesToHash(raw))
}

// lookupReceipt maps a receipt to a result: status 1 is Confirmed, status 0
// Failed, and no receipt yet Pending.
func lookupReceipt(ctx context.Context, n nodes, hash common.Hash) (*chains.Result, error) {
	ref := hash.Hex()

	type observation struct {
		receipt *types.Receipt
		head    uint64
	}
	obs, err := call(ctx, n, func(ctx context.Context, node Node) (observation, error) {
		receipt, err := node.TransactionReceipt(ctx, hash)
		if isNotFound(err) {
			return observation{}, nil
		}
		if err != nil {
			return observation{}, err
		}
		head, err := node.BlockNumber(ctx)
		if err != nil {
			return observation{}, err
		}
		return observation{receipt: receipt, head: head}, nil
	})
	if err != nil {
		return nil, err
	}
	if obs.receipt == nil || obs.receipt.BlockNumber == nil {
		return chains.Pending(ref), nil
	}

	height := obs.receipt.BlockNumber.Uint64()
	if obs.receipt.Status != types.ReceiptStatusSuccessful {
		return chains.Failed(ref, height), nil
	}
	confirmations := uint64(1)
	if obs.head >= height {
		confirmations = obs.head - height + 1
	}
	return chains.Confirmed(ref, height, confirmations), nil
}
