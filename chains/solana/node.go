// Package solana implements the blockhash-scoped transaction builder: a
// fresh blockhash per transfer, a single native transfer instruction, and
// bounded resend of the same signed bytes until a status is observed.
package solana

import (
	"context"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/pkg/errors"

	"github.com/chinmay1088/odyssey-core/api"
	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/health"
)

// SignatureStatus is the part of a getSignatureStatuses entry the builder
// reads.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64 // nil once rooted
	ConfirmationStatus string  // processed, confirmed or finalized
	Err                interface{}
}

// Node is the Solana RPC surface the builder uses.
type Node interface {
	Balance(ctx context.Context, account solana.PublicKey) (uint64, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	// SignatureStatus returns nil when the signature is unknown.
	SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error)
}

// Dialer returns the Node for an endpoint URL.
type Dialer func(ctx context.Context, endpoint string) (Node, error)

// ClientDialer serves nodes backed by a shared solana-go client cache.
func ClientDialer(clients *api.SolanaClients) Dialer {
	return func(_ context.Context, endpoint string) (Node, error) {
		return &rpcNode{client: clients.Get(endpoint)}, nil
	}
}

type rpcNode struct {
	client *rpc.Client
}

func (n *rpcNode) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	out, err := n.client.GetBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, err
	}
	return out.Value, nil
}

func (n *rpcNode) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := n.client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, err
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, chains.Wrap(chains.ErrMalformedResponse, errors.New("empty getLatestBlockhash result"))
	}
	return out.Value.Blockhash, nil
}

func (n *rpcNode) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return n.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
}

func (n *rpcNode) SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	out, err := n.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return nil, nil
	}
	v := out.Value[0]
	return &SignatureStatus{
		Slot:               v.Slot,
		Confirmations:      v.Confirmations,
		ConfirmationStatus: string(v.ConfirmationStatus),
		Err:                v.Err,
	}, nil
}

type nodes struct {
	group    string
	registry *health.Registry
	dial     Dialer
}

// call runs fn through the failover loop. A JSON-RPC error object is the
// node's verdict and is not retried on another endpoint.
func call[T any](ctx context.Context, n nodes, fn func(ctx context.Context, node Node) (T, error)) (T, error) {
	return health.Do(ctx, n.registry, n.group, func(ctx context.Context, endpoint string) (T, error) {
		node, err := n.dial(ctx, endpoint)
		if err != nil {
			var zero T
			return zero, err
		}
		v, err := fn(ctx, node)
		if err != nil && !health.IsPermanent(err) && isRPCError(err) {
			return v, health.Permanent(err)
		}
		return v, err
	})
}

func isRPCError(err error) bool {
	var rpcErr *jsonrpc.RPCError
	return errors.As(err, &rpcErr)
}

// isAlreadyProcessed reports whether the cluster has already seen the
// transaction.
func isAlreadyProcessed(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already been processed")
}

// Rejections that repeat for the same signed bytes on any node.
var deterministicRejections = []string{
	"insufficient",
	"signature verification",
	"failed to deserialize",
	"sanitize",
	"custom program error",
}

// transientRejection reports whether a send rejected by a node may succeed
// when the same bytes are sent again, such as an unknown blockhash or a node
// that is behind (-32005).
func transientRejection(err error) bool {
	if chains.Kind(err) != chains.ErrBroadcastRejected {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range deterministicRejections {
		if strings.Contains(msg, s) {
			return false
		}
	}
	return true
}
