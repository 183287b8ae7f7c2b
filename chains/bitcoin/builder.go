// Package bitcoin implements the UTXO transaction builder: coin selection
// over an Esplora-style index, PSBT construction, P2WPKH signing and
// broadcast through bitcoind JSON-RPC.
package bitcoin

import (
	"context"
	"math"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/chinmay1088/odyssey-core/api"
	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/health"
	"github.com/chinmay1088/odyssey-core/log"
)

// Config describes one UTXO chain.
type Config struct {
	// NodeGroup is the health group of the bitcoind JSON-RPC endpoints.
	NodeGroup string
	// IndexGroup is the health group of the Esplora index endpoints.
	IndexGroup string
	Params     *chaincfg.Params
	DefaultFee int64 // sats, used when no fee rate is given
}

// Builder builds, signs and broadcasts UTXO transfers.
type Builder struct {
	cfg      Config
	registry *health.Registry
	client   *api.Client
}

// NewBuilder creates a UTXO builder.
func NewBuilder(cfg Config, registry *health.Registry, client *api.Client) *Builder {
	if cfg.Params == nil {
		cfg.Params = &chaincfg.MainNetParams
	}
	if cfg.DefaultFee <= 0 {
		cfg.DefaultFee = DefaultFee
	}
	return &Builder{cfg: cfg, registry: registry, client: client}
}

// Family returns chains.FamilyUTXO.
func (b *Builder) Family() chains.Family {
	return chains.FamilyUTXO
}

// Balance returns the sum of address's unspent outputs in BTC.
func (b *Builder) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	if _, err := ParseAddress(address, b.cfg.Params); err != nil {
		return decimal.Zero, err
	}
	utxos, err := b.fetchUTXOs(ctx, address)
	if err != nil {
		return decimal.Zero, err
	}
	var total int64
	for _, u := range utxos {
		total += u.Value
	}
	return decimal.New(total, -chains.BitcoinDecimals), nil
}

// Build fetches the sender's UTXOs and constructs an unsigned transaction.
func (b *Builder) Build(ctx context.Context, from, to string, amount decimal.Decimal, opts chains.SendOptions) (*Transaction, error) {
	fromAddr, err := ParseAddress(from, b.cfg.Params)
	if err != nil {
		return nil, err
	}
	toAddr, err := ParseAddress(to, b.cfg.Params)
	if err != nil {
		return nil, err
	}
	sats, err := chains.ToBaseUnits(amount, chains.BitcoinDecimals)
	if err != nil {
		return nil, err
	}
	if !sats.IsInt64() {
		return nil, errors.Wrapf(chains.ErrInvalidAmount, "%s BTC", amount)
	}

	utxos, err := b.fetchUTXOs(ctx, from)
	if err != nil {
		return nil, err
	}
	if len(utxos) == 0 {
		return nil, errors.Wrapf(chains.ErrNoFundsAvailable, "no UTXOs for %s", from)
	}

	var total int64
	for _, u := range utxos {
		total += u.Value
	}
	fee, rate, err := b.resolveFee(ctx, len(utxos), total, opts)
	if err != nil {
		return nil, err
	}

	pkScript, err := txscript.PayToAddrScript(fromAddr)
	if err != nil {
		return nil, errors.Wrapf(chains.ErrInvalidAddress, "failed to create script for %s: %v", from, err)
	}

	tx, err := BuildTransaction(utxos, pkScript, toAddr, fromAddr, sats.Int64(), fee)
	if err != nil {
		return nil, err
	}
	tx.FeeRate = rate

	log.Bitcoin.Debug().
		Str("from", from).
		Str("to", to).
		Int("inputs", len(utxos)).
		Int64("total_input", tx.TotalInput).
		Int64("amount", tx.Amount).
		Int64("fee", tx.Fee).
		Int64("change", tx.Change).
		Msg("Built transaction")
	return tx, nil
}

// Transfer builds, signs and broadcasts a transfer. The result is Pending;
// confirmation is observed through the status tracker.
func (b *Builder) Transfer(ctx context.Context, req chains.TransferRequest, key []byte) (*chains.Result, error) {
	priv, err := ParsePrivateKey(key)
	if err != nil {
		return nil, err
	}
	defer priv.Zero()

	fromAddr, err := ParseAddress(req.From, b.cfg.Params)
	if err != nil {
		return nil, err
	}
	owned, err := CreateP2WPKHAddress(priv.PubKey(), b.cfg.Params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive sender address")
	}
	if owned.EncodeAddress() != fromAddr.EncodeAddress() {
		return nil, errors.Wrapf(chains.ErrInvalidAddress, "key does not control %s", req.From)
	}

	tx, err := b.Build(ctx, req.From, req.To, req.Amount, req.Options)
	if err != nil {
		return nil, err
	}
	if err := tx.Sign(priv); err != nil {
		return nil, err
	}

	txid, err := b.Broadcast(ctx, tx)
	if err != nil {
		return nil, err
	}
	return chains.Pending(txid), nil
}

// Broadcast submits a signed transaction, failing over across node
// endpoints. Re-sending identical bytes is harmless: a node that already has
// the transaction is treated as success. The returned reference is always
// the locally computed txid.
func (b *Builder) Broadcast(ctx context.Context, tx *Transaction) (string, error) {
	rawHex, err := tx.Serialize()
	if err != nil {
		return "", err
	}
	txid := tx.TxID()

	_, err = health.Do(ctx, b.registry, b.cfg.NodeGroup, func(ctx context.Context, endpoint string) (string, error) {
		got, err := b.client.SendBitcoinTransaction(ctx, endpoint, rawHex)
		if err != nil {
			if api.IsBitcoinAlreadyKnown(err) {
				log.Bitcoin.Info().Str("txid", txid).Str("endpoint", endpoint).Msg("Transaction already known to node")
				return txid, nil
			}
			var rpcErr *api.RPCError
			if errors.As(err, &rpcErr) {
				return "", health.Permanent(chains.Wrap(chains.ErrBroadcastRejected, rpcErr))
			}
			return "", err
		}
		if got != txid {
			log.Bitcoin.Warn().Str("txid", txid).Str("node_txid", got).Msg("Node reported a different txid")
		}
		return got, nil
	})
	if err != nil {
		return "", err
	}

	log.Bitcoin.Info().Str("txid", txid).Int64("amount", tx.Amount).Int64("fee", tx.Fee).Msg("Transaction broadcast")
	return txid, nil
}

func (b *Builder) fetchUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	raw, err := health.Do(ctx, b.registry, b.cfg.IndexGroup, func(ctx context.Context, endpoint string) ([]api.BitcoinUTXO, error) {
		utxos, err := b.client.GetBitcoinUTXOs(ctx, endpoint, address)
		if errors.Is(err, chains.ErrInvalidAddress) {
			return nil, health.Permanent(err)
		}
		return utxos, err
	})
	if err != nil {
		return nil, err
	}

	utxos := make([]UTXO, 0, len(raw))
	for _, u := range raw {
		utxos = append(utxos, UTXO{TxID: u.TxID, Vout: u.Vout, Value: u.Value})
	}
	return utxos, nil
}

// resolveFee returns the absolute fee and the fee rate it was derived from
// (zero for the default fee). A rate whose fee cannot be covered by the
// inputs fails with ErrInsufficientFunds before any integer conversion.
func (b *Builder) resolveFee(ctx context.Context, numInputs int, totalInput int64, opts chains.SendOptions) (int64, float64, error) {
	if opts.FeeRate != nil {
		rate := *opts.FeeRate
		if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
			return 0, 0, errors.Wrapf(chains.ErrInvalidAmount, "fee rate %v", rate)
		}
		fee, err := feeForRate(numInputs, rate, totalInput)
		if err != nil {
			return 0, 0, err
		}
		return fee, rate, nil
	}
	if opts.EstimateFeeRate {
		rate, err := health.Do(ctx, b.registry, b.cfg.IndexGroup, func(ctx context.Context, endpoint string) (int64, error) {
			return b.client.GetBitcoinFeeEstimate(ctx, endpoint)
		})
		if err == nil {
			fee, err := feeForRate(numInputs, float64(rate), totalInput)
			if err != nil {
				return 0, 0, err
			}
			return fee, float64(rate), nil
		}
		log.Bitcoin.Warn().Err(err).Int64("default_fee", b.cfg.DefaultFee).Msg("Fee estimate unavailable, using default fee")
	}
	return b.cfg.DefaultFee, 0, nil
}

// feeForRate is EstimateFee bounded by what the inputs can pay.
func feeForRate(numInputs int, rate float64, totalInput int64) (int64, error) {
	size := float64(numInputs*inputSize + outputSize + overheadSize)
	if fee := math.Ceil(size * rate); fee > float64(totalInput) || fee >= math.MaxInt64 {
		return 0, errors.Wrapf(chains.ErrInsufficientFunds, "fee rate %v sat/byte needs %.0f sats, have %d", rate, fee, totalInput)
	}
	return EstimateFee(numInputs, rate), nil
}
