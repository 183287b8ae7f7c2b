package bitcoin

import (
	"context"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"

	"github.com/chinmay1088/odyssey-core/api"
	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/health"
	"github.com/chinmay1088/odyssey-core/log"
)

// Tracker looks up UTXO transaction status. The node is asked first; nodes
// without a transaction index cannot see confirmed transactions outside their
// wallet, so a miss falls back to the Esplora index.
type Tracker struct {
	cfg      Config
	registry *health.Registry
	client   *api.Client
}

// NewTracker creates a status tracker sharing the builder's endpoint groups.
func NewTracker(cfg Config, registry *health.Registry, client *api.Client) *Tracker {
	return &Tracker{cfg: cfg, registry: registry, client: client}
}

// Lookup returns the normalized status of txid.
func (t *Tracker) Lookup(ctx context.Context, txid string) (*chains.Result, error) {
	if _, err := chainhash.NewHashFromStr(txid); err != nil || len(txid) != chainhash.MaxHashStringSize {
		return nil, errors.Wrapf(chains.ErrInvalidAddress, "invalid transaction id %q", txid)
	}

	raw, err := health.Do(ctx, t.registry, t.cfg.NodeGroup, func(ctx context.Context, endpoint string) (*btcjson.TxRawResult, error) {
		tx, err := t.client.GetBitcoinRawTransaction(ctx, endpoint, txid)
		if api.IsBitcoinNotFound(err) {
			return nil, nil
		}
		return tx, nodeVerdict(err)
	})
	if err != nil {
		log.Bitcoin.Debug().Err(err).Str("txid", txid).Msg("Node lookup failed, trying index")
		return t.lookupIndex(ctx, txid)
	}
	if raw == nil {
		return t.lookupIndex(ctx, txid)
	}
	if raw.Confirmations == 0 || raw.BlockHash == "" {
		return chains.Pending(txid), nil
	}

	header, err := health.Do(ctx, t.registry, t.cfg.NodeGroup, func(ctx context.Context, endpoint string) (*btcjson.GetBlockHeaderVerboseResult, error) {
		header, err := t.client.GetBitcoinBlockHeader(ctx, endpoint, raw.BlockHash)
		return header, nodeVerdict(err)
	})
	if err != nil {
		return nil, err
	}
	if header.Height < 0 {
		return nil, chains.Wrap(chains.ErrMalformedResponse, errors.Errorf("negative block height %d", header.Height))
	}
	return chains.Confirmed(txid, uint64(header.Height), raw.Confirmations), nil
}

func (t *Tracker) lookupIndex(ctx context.Context, txid string) (*chains.Result, error) {
	type indexStatus struct {
		status api.TxStatus
		found  bool
		tip    uint64
	}

	st, err := health.Do(ctx, t.registry, t.cfg.IndexGroup, func(ctx context.Context, endpoint string) (indexStatus, error) {
		status, found, err := t.client.GetBitcoinTxStatus(ctx, endpoint, txid)
		if err != nil || !found || !status.Confirmed {
			return indexStatus{status: status, found: found}, err
		}
		tip, err := t.client.GetBitcoinTipHeight(ctx, endpoint)
		if err != nil {
			return indexStatus{}, err
		}
		return indexStatus{status: status, found: true, tip: tip}, nil
	})
	if err != nil {
		return nil, err
	}

	if !st.found || !st.status.Confirmed || st.status.BlockHeight == 0 {
		return chains.Pending(txid), nil
	}
	confirmations := uint64(1)
	if st.tip >= st.status.BlockHeight {
		confirmations = st.tip - st.status.BlockHeight + 1
	}
	return chains.Confirmed(txid, st.status.BlockHeight, confirmations), nil
}

// nodeVerdict marks a JSON-RPC error object as Permanent: the node answered,
// so asking another node is not a failover. Transport errors pass through.
func nodeVerdict(err error) error {
	var rpcErr *api.RPCError
	if errors.As(err, &rpcErr) {
		return health.Permanent(err)
	}
	return err
}
