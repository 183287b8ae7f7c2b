// Package ethereum implements the account/nonce transaction builder shared by
// every EVM chain. Chains differ only by chain ID and endpoint group.
package ethereum

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/chinmay1088/odyssey-core/api"
	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/health"
)

// Node is the subset of ethclient.Client the builder uses.
type Node interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Dialer returns the Node for an endpoint URL.
type Dialer func(ctx context.Context, endpoint string) (Node, error)

// ClientDialer serves nodes from a shared go-ethereum client cache.
func ClientDialer(clients *api.EthereumClients) Dialer {
	return func(ctx context.Context, endpoint string) (Node, error) {
		c, err := clients.Get(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// nodes runs calls against the healthy endpoints of one group.
type nodes struct {
	group    string
	registry *health.Registry
	dial     Dialer
}

// call runs fn through the failover loop. A JSON-RPC error object means the
// endpoint answered, so it is never retried on another endpoint.
func call[T any](ctx context.Context, n nodes, fn func(ctx context.Context, node Node) (T, error)) (T, error) {
	return health.Do(ctx, n.registry, n.group, func(ctx context.Context, endpoint string) (T, error) {
		node, err := n.dial(ctx, endpoint)
		if err != nil {
			var zero T
			return zero, err
		}
		v, err := fn(ctx, node)
		var rpcErr rpc.Error
		if err != nil && !health.IsPermanent(err) && errors.As(err, &rpcErr) {
			return v, health.Permanent(err)
		}
		return v, err
	})
}

// classify turns a JSON-RPC error from a node into a typed, permanent error.
// Transport failures are returned unchanged so the call fails over.
func classify(err error) error {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return err
	}
	msg := strings.ToLower(rpcErr.Error())
	if strings.Contains(msg, "insufficient funds") {
		return health.Permanent(chains.Wrap(chains.ErrInsufficientFunds, err))
	}
	return health.Permanent(chains.Wrap(chains.ErrBroadcastRejected, err))
}

// isAlreadyKnown reports whether the node already holds the transaction.
func isAlreadyKnown(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

// isNotFound reports whether err is the "no such receipt" answer.
func isNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}
