package cmd

import (
	"context"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"

	"github.com/chinmay1088/odyssey-core/api"
	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/chains/bitcoin"
	"github.com/chinmay1088/odyssey-core/chains/ethereum"
	"github.com/chinmay1088/odyssey-core/chains/solana"
	"github.com/chinmay1088/odyssey-core/config"
	"github.com/chinmay1088/odyssey-core/crypto"
	"github.com/chinmay1088/odyssey-core/dispatch"
	"github.com/chinmay1088/odyssey-core/health"
	"github.com/chinmay1088/odyssey-core/metrics"
)

// app is the wired transaction core.
type app struct {
	cfg      *config.Config
	metrics  *metrics.Metrics
	registry *health.Registry
	service  *dispatch.Service
	gate     *crypto.Gate
	keyMode  crypto.KeyMode

	client   *api.Client
	ethereum *api.EthereumClients
	solana   *api.SolanaClients
}

// newApp registers every configured chain's endpoint groups and builders.
// Nothing is dialed until the first call or probe.
func newApp(c *config.Config) (*app, error) {
	mode, err := crypto.ParseKeyMode(c.Keys.Mode)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	a := &app{
		cfg:     c,
		metrics: m,
		registry: health.NewRegistry(health.Options{
			Interval:    c.Health.Interval,
			StaleAfter:  c.Health.StaleAfter,
			CallTimeout: c.RPC.Timeout,
			Metrics:     m,
		}),
		gate:     crypto.NewGate([]byte(c.Keys.Secret), []byte(c.Keys.Salt)),
		keyMode:  mode,
		client:   api.NewClient(api.WithTimeout(c.RPC.Timeout)),
		ethereum: api.NewEthereumClients(),
		solana:   api.NewSolanaClients(),
	}
	a.service = dispatch.NewService(a.gate, a.registry, m)

	for _, id := range c.ChainIDs() {
		if err := a.addChain(id, c.Chains[id]); err != nil {
			return nil, errors.Wrapf(err, "chain %s", id)
		}
	}
	return a, nil
}

func (a *app) addChain(id string, ch config.Chain) error {
	family, _ := chains.ParseFamily(ch.Family)
	nodeSet := health.EndpointSet{Group: id, Primary: ch.Primary, Fallbacks: ch.Fallbacks}

	chain := dispatch.Chain{ID: id, Groups: []string{id}}
	switch family {
	case chains.FamilyUTXO:
		index := config.IndexGroup(id)
		if err := a.registry.Register(nodeSet, a.client.BitcoinNodeProber()); err != nil {
			return err
		}
		indexSet := health.EndpointSet{Group: index, Primary: ch.Index.Primary, Fallbacks: ch.Index.Fallbacks}
		if err := a.registry.Register(indexSet, a.client.BitcoinIndexProber()); err != nil {
			return err
		}
		bc := bitcoin.Config{
			NodeGroup:  id,
			IndexGroup: index,
			Params:     bitcoinParams(a.cfg.Network),
			DefaultFee: ch.DefaultFeeSats,
		}
		chain.Builder = bitcoin.NewBuilder(bc, a.registry, a.client)
		chain.Status = bitcoin.NewTracker(bc, a.registry, a.client)
		chain.Groups = append(chain.Groups, index)

	case chains.FamilyEVM:
		if err := a.registry.Register(nodeSet, a.ethereum.Prober()); err != nil {
			return err
		}
		ec := ethereum.Config{
			Group:           id,
			ChainID:         big.NewInt(ch.ChainID),
			ConfirmInterval: ch.ConfirmInterval,
			ConfirmTimeout:  ch.ConfirmTimeout,
		}
		dial := ethereum.ClientDialer(a.ethereum)
		chain.Builder = ethereum.NewBuilder(ec, a.registry, dial)
		chain.Status = ethereum.NewTracker(ec, a.registry, dial)

	case chains.FamilySolana:
		if err := a.registry.Register(nodeSet, a.solana.Prober()); err != nil {
			return err
		}
		sc := solana.Config{
			Group:           id,
			ConfirmInterval: ch.ConfirmInterval,
			ConfirmTimeout:  ch.ConfirmTimeout,
			SendRetries:     ch.SendRetries,
		}
		dial := solana.ClientDialer(a.solana)
		chain.Builder = solana.NewBuilder(sc, a.registry, dial)
		chain.Status = solana.NewTracker(sc, a.registry, dial)

	default:
		return errors.Wrapf(chains.ErrUnsupportedChain, "family %q", ch.Family)
	}

	if err := a.service.Register(chain); err != nil {
		return err
	}
	for _, alias := range ch.Aliases {
		a.service.Alias(strings.ToLower(alias), id)
	}
	return nil
}

// start runs the background probe loop until ctx ends or close is called.
func (a *app) start(ctx context.Context) {
	a.registry.Start(ctx)
}

func (a *app) close() {
	a.registry.Shutdown()
	a.ethereum.Close()
	a.solana.Close()
}

func bitcoinParams(network string) *chaincfg.Params {
	if network == config.NetworkTestnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}
