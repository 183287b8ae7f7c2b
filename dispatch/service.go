// Package dispatch is the single entry point of the transaction core. It maps
// chain identifiers to builders and status sources and guarantees that every
// error it returns carries a chains taxonomy kind.
package dispatch

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/crypto"
	"github.com/chinmay1088/odyssey-core/health"
	"github.com/chinmay1088/odyssey-core/log"
	"github.com/chinmay1088/odyssey-core/metrics"
	"github.com/chinmay1088/odyssey-core/status"
)

// Chain binds a chain identifier to its builder, status source and the
// endpoint groups it depends on. Groups[0] is the chain's own node group.
type Chain struct {
	ID      string
	Builder chains.Builder
	Status  chains.StatusSource
	Groups  []string
}

// SendRequest is a transfer as received from a caller. Key is either a
// sealed key or plaintext key material, interpreted according to KeyMode.
type SendRequest struct {
	Chain   string
	From    string
	To      string
	Amount  string
	Key     string
	KeyMode crypto.KeyMode
	Options chains.SendOptions
}

// ChainHealth is the health view of one chain.
type ChainHealth struct {
	Healthy         bool                          `json:"healthy"`
	CurrentEndpoint string                        `json:"currentEndpoint,omitempty"`
	Groups          map[string]health.GroupStatus `json:"groups,omitempty"`
}

// Service dispatches calls to the builder registered for a chain.
type Service struct {
	gate     *crypto.Gate
	registry *health.Registry
	poller   *status.Poller
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	chains  map[string]Chain
	aliases map[string]string
}

// NewService creates a service with no chains. m may be nil.
func NewService(gate *crypto.Gate, registry *health.Registry, m *metrics.Metrics) *Service {
	return &Service{
		gate:     gate,
		registry: registry,
		poller:   status.NewPoller(m),
		metrics:  m,
		chains:   make(map[string]Chain),
		aliases:  make(map[string]string),
	}
}

// Register adds a chain. Registering the same identifier twice is an error.
func (s *Service) Register(c Chain) error {
	if c.ID == "" || c.Builder == nil || c.Status == nil {
		return errors.New("chain needs an identifier, a builder and a status source")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chains[c.ID]; ok {
		return errors.Errorf("chain %s already registered", c.ID)
	}
	s.chains[c.ID] = c
	s.poller.Register(c.ID, c.Status)
	return nil
}

// Alias makes alias resolve to the chain id.
func (s *Service) Alias(alias, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aliases[strings.ToLower(alias)] = id
}

// Chains returns the registered chain identifiers, sorted.
func (s *Service) Chains() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.chains))
	for id := range s.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolve returns the canonical identifier for chain or an alias of it.
func (s *Service) Resolve(chain string) (string, error) {
	c, err := s.lookup(chain)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// Family returns the family of chain.
func (s *Service) Family(chain string) (chains.Family, error) {
	c, err := s.lookup(chain)
	if err != nil {
		return "", err
	}
	return c.Builder.Family(), nil
}

func (s *Service) lookup(chain string) (Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id := strings.ToLower(strings.TrimSpace(chain))
	if alias, ok := s.aliases[id]; ok {
		id = alias
	}
	c, ok := s.chains[id]
	if !ok {
		return Chain{}, errors.Wrapf(chains.ErrUnsupportedChain, "%q", chain)
	}
	return c, nil
}

// GetBalance returns the native balance of address on chain.
func (s *Service) GetBalance(ctx context.Context, chain, address string) (decimal.Decimal, error) {
	c, err := s.lookup(chain)
	if err != nil {
		return decimal.Zero, err
	}
	bal, err := c.Builder.Balance(ctx, address)
	if err != nil {
		return decimal.Zero, chains.Classify(err)
	}
	return bal, nil
}

// Send opens the key, builds, signs and broadcasts a transfer. The key
// buffer lives only for the duration of the builder call. When the
// transaction was broadcast but the wait for it was abandoned, both a
// Pending result and an ErrTimeout are returned.
func (s *Service) Send(ctx context.Context, req SendRequest) (*chains.Result, error) {
	c, err := s.lookup(req.Chain)
	if err != nil {
		return nil, err
	}
	amount, err := chains.ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	mode := req.KeyMode
	if mode == "" {
		mode = crypto.KeyModeAuto
	}

	transfer := chains.TransferRequest{
		Chain:   c.ID,
		From:    req.From,
		To:      req.To,
		Amount:  amount,
		Options: req.Options,
	}
	res, err := crypto.WithDecryptedKey(s.gate, req.Key, mode, func(key []byte) (*chains.Result, error) {
		return c.Builder.Transfer(ctx, transfer, key)
	})
	err = chains.Classify(err)

	event := log.Dispatch.Info()
	if err != nil {
		event = log.Dispatch.Warn().Err(err)
	}
	outcome := "error"
	if res != nil {
		outcome = string(res.Status)
		event = event.Str("tx", res.TxReference).Str("status", outcome)
	}
	event.
		Str("chain", c.ID).
		Str("from", req.From).
		Str("to", req.To).
		Str("amount", amount.String()).
		Msg("Send")
	s.metrics.IncTransfer(c.ID, outcome)

	return res, err
}

// GetStatus returns the normalized status of ref on chain. A reference the
// chain has not seen yet is Pending, not an error.
func (s *Service) GetStatus(ctx context.Context, chain, ref string) (*chains.Result, error) {
	c, err := s.lookup(chain)
	if err != nil {
		return nil, err
	}
	return s.poller.Lookup(ctx, c.ID, ref)
}

// WaitStatus polls ref until it is confirmed or failed, or ctx ends.
func (s *Service) WaitStatus(ctx context.Context, chain, ref string) (*chains.Result, error) {
	c, err := s.lookup(chain)
	if err != nil {
		return nil, err
	}
	return s.poller.Wait(ctx, c.ID, ref, status.DefaultInterval)
}

// GetHealth reports every chain as healthy when all of its endpoint groups
// have a healthy endpoint. CurrentEndpoint is that of the chain's node group.
func (s *Service) GetHealth() map[string]ChainHealth {
	snapshot := s.registry.Snapshot()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ChainHealth, len(s.chains))
	for id, c := range s.chains {
		h := ChainHealth{Healthy: len(c.Groups) > 0, Groups: make(map[string]health.GroupStatus, len(c.Groups))}
		for i, name := range c.Groups {
			st, ok := snapshot[name]
			h.Healthy = h.Healthy && ok && st.Healthy
			if i == 0 {
				h.CurrentEndpoint = st.CurrentEndpoint
			}
			if ok {
				h.Groups[name] = st
			}
		}
		out[id] = h
	}
	return out
}
