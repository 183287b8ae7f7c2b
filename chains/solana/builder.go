package solana

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/health"
	"github.com/chinmay1088/odyssey-core/log"
)

const (
	DefaultConfirmInterval = 2 * time.Second
	DefaultConfirmTimeout  = 90 * time.Second
	DefaultSendRetries     = 3
)

// Config describes the Solana cluster.
type Config struct {
	Group           string
	ConfirmInterval time.Duration
	// ConfirmTimeout bounds all send rounds together.
	ConfirmTimeout time.Duration
	SendRetries    int
}

// Builder builds, signs and submits native SOL transfers.
type Builder struct {
	cfg   Config
	nodes nodes
}

// NewBuilder creates a Solana builder.
func NewBuilder(cfg Config, registry *health.Registry, dial Dialer) *Builder {
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = DefaultConfirmInterval
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.SendRetries <= 0 {
		cfg.SendRetries = DefaultSendRetries
	}
	return &Builder{
		cfg:   cfg,
		nodes: nodes{group: cfg.Group, registry: registry, dial: dial},
	}
}

// Family returns chains.FamilySolana.
func (b *Builder) Family() chains.Family {
	return chains.FamilySolana
}

// Balance returns the balance of address in SOL.
func (b *Builder) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	account, err := ParseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	lamports, err := call(ctx, b.nodes, func(ctx context.Context, node Node) (uint64, error) {
		return node.Balance(ctx, account)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return chains.FromBaseUnits(new(big.Int).SetUint64(lamports), chains.SolanaDecimals), nil
}

// Transfer signs a transfer against a freshly fetched blockhash and submits
// it until a status is observed or the send rounds run out.
func (b *Builder) Transfer(ctx context.Context, req chains.TransferRequest, key []byte) (*chains.Result, error) {
	from, err := ParseAddress(req.From)
	if err != nil {
		return nil, err
	}
	to, err := ParseAddress(req.To)
	if err != nil {
		return nil, err
	}
	amount, err := chains.ToBaseUnits(req.Amount, chains.SolanaDecimals)
	if err != nil {
		return nil, err
	}
	if !amount.IsUint64() {
		return nil, errors.Wrapf(chains.ErrInvalidAmount, "%s SOL does not fit in lamports", req.Amount)
	}

	priv, err := ParsePrivateKey(key)
	if err != nil {
		return nil, err
	}
	defer clear(priv)
	if !priv.PublicKey().Equals(from) {
		return nil, errors.Wrapf(chains.ErrInvalidAddress, "key does not control %s", req.From)
	}

	blockhash, err := call(ctx, b.nodes, func(ctx context.Context, node Node) (solana.Hash, error) {
		return node.LatestBlockhash(ctx)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch blockhash")
	}

	signed, err := NewTransferTransaction(from, to, amount.Uint64(), blockhash).Sign(priv)
	clear(priv)
	if err != nil {
		return nil, err
	}

	return b.SendAndConfirm(ctx, signed)
}

// Broadcast submits a signed transaction once through the failover loop.
// A cluster that already processed it counts as success.
func (b *Builder) Broadcast(ctx context.Context, signed *solana.Transaction) error {
	_, err := call(ctx, b.nodes, func(ctx context.Context, node Node) (struct{}, error) {
		_, err := node.Send(ctx, signed)
		if err == nil || isAlreadyProcessed(err) {
			return struct{}{}, nil
		}
		if isRPCError(err) {
			if strings.Contains(strings.ToLower(err.Error()), "insufficient") {
				return struct{}{}, health.Permanent(chains.Wrap(chains.ErrInsufficientFunds, err))
			}
			return struct{}{}, health.Permanent(chains.Wrap(chains.ErrBroadcastRejected, err))
		}
		return struct{}{}, err
	})
	return err
}

// SendAndConfirm resends the same signed bytes for up to SendRetries rounds,
// polling the signature status within each round's share of ConfirmTimeout.
// Until a send is accepted, a node rejection that can clear on its own (an
// unknown blockhash, a lagging node) is retried in the next round; other
// failures are returned. Once accepted, resend errors are only logged because
// the first copy may still land.
func (b *Builder) SendAndConfirm(ctx context.Context, signed *solana.Transaction) (*chains.Result, error) {
	if len(signed.Signatures) == 0 {
		return nil, errors.New("transaction is not signed")
	}
	sig := signed.Signatures[0]
	ref := sig.String()
	window := b.cfg.ConfirmTimeout / time.Duration(b.cfg.SendRetries)

	var (
		accepted bool
		lastErr  error
	)
	for round := 1; round <= b.cfg.SendRetries; round++ {
		if round > 1 && ctx.Err() != nil {
			if !accepted {
				return nil, chains.Wrap(chains.ErrTimeout, ctx.Err())
			}
			return chains.Pending(ref), chains.Wrap(chains.ErrTimeout, ctx.Err())
		}
		if err := b.Broadcast(ctx, signed); err != nil {
			switch {
			case !accepted && !transientRejection(err):
				return nil, err
			case !accepted:
				lastErr = err
				log.Solana.Warn().Err(err).Str("tx", ref).Int("round", round).Msg("Send rejected, retrying")
			case ctx.Err() != nil:
				return chains.Pending(ref), chains.Wrap(chains.ErrTimeout, ctx.Err())
			default:
				log.Solana.Warn().Err(err).Str("tx", ref).Int("round", round).Msg("Resend failed")
			}
		} else if !accepted {
			accepted = true
			log.Solana.Info().Str("group", b.cfg.Group).Str("tx", ref).Int("round", round).Msg("Transaction broadcast")
		}

		res, err := b.awaitStatus(ctx, sig, window)
		if err != nil && !accepted {
			return nil, err
		}
		if err != nil || res.Status != chains.StatusPending {
			return res, err
		}
	}

	if !accepted {
		return nil, lastErr
	}
	log.Solana.Warn().Str("tx", ref).Int("rounds", b.cfg.SendRetries).Msg("No confirmation observed, leaving pending")
	return chains.Pending(ref), nil
}

// awaitStatus polls the signature until it leaves Pending or window passes.
func (b *Builder) awaitStatus(ctx context.Context, sig solana.Signature, window time.Duration) (*chains.Result, error) {
	ref := sig.String()
	roundCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	ticker := time.NewTicker(b.cfg.ConfirmInterval)
	defer ticker.Stop()

	for {
		res, err := lookupSignature(roundCtx, b.nodes, sig)
		if err == nil && res.Status != chains.StatusPending {
			return res, nil
		}
		if err != nil && !chains.Retryable(err) {
			return chains.Pending(ref), err
		}

		select {
		case <-ctx.Done():
			return chains.Pending(ref), chains.Wrap(chains.ErrTimeout, ctx.Err())
		case <-roundCtx.Done():
			if ctx.Err() != nil {
				return chains.Pending(ref), chains.Wrap(chains.ErrTimeout, ctx.Err())
			}
			return chains.Pending(ref), nil
		case <-ticker.C:
		}
	}
}
