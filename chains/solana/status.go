package solana

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/health"
)

// rootedConfirmations is reported for signatures the cluster has rooted,
// which getSignatureStatuses returns without a confirmation count.
const rootedConfirmations = 32

// Tracker looks up Solana transaction status by signature.
type Tracker struct {
	nodes nodes
}

// NewTracker creates a tracker for the cluster's endpoint group.
func NewTracker(cfg Config, registry *health.Registry, dial Dialer) *Tracker {
	return &Tracker{nodes: nodes{group: cfg.Group, registry: registry, dial: dial}}
}

// Lookup returns the normalized status of the base58 signature ref.
func (t *Tracker) Lookup(ctx context.Context, ref string) (*chains.Result, error) {
	sig, err := solana.SignatureFromBase58(ref)
	if err != nil {
		return nil, errors.Wrapf(chains.ErrInvalidAddress, "invalid signature %q", ref)
	}
	return lookupSignature(ctx, t.nodes, sig)
}

// lookupSignature maps a signature status to a result. An error recorded by
// the runtime is Failed; confirmed or finalized is Confirmed; processed or
// unknown is Pending.
func lookupSignature(ctx context.Context, n nodes, sig solana.Signature) (*chains.Result, error) {
	ref := sig.String()
	st, err := call(ctx, n, func(ctx context.Context, node Node) (*SignatureStatus, error) {
		return node.SignatureStatus(ctx, sig)
	})
	if err != nil {
		return nil, err
	}
	if st == nil {
		return chains.Pending(ref), nil
	}
	if st.Err != nil {
		return chains.Failed(ref, st.Slot), nil
	}

	switch rpc.ConfirmationStatusType(st.ConfirmationStatus) {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		confirmations := uint64(rootedConfirmations)
		if st.Confirmations != nil {
			confirmations = max(*st.Confirmations, 1)
		}
		return chains.Confirmed(ref, st.Slot, confirmations), nil
	}
	return chains.Pending(ref), nil
}
