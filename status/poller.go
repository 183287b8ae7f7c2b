// Package status looks up and normalizes the confirmation state of
// transactions without going through a builder.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/log"
	"github.com/chinmay1088/odyssey-core/metrics"
)

// DefaultInterval is the polling interval of Wait.
const DefaultInterval = 5 * time.Second

// maxConcurrentLookups bounds LookupMany.
const maxConcurrentLookups = 8

// Poller maps chain identifiers to status sources.
type Poller struct {
	mu      sync.RWMutex
	sources map[string]chains.StatusSource
	metrics *metrics.Metrics
}

// NewPoller creates an empty poller. m may be nil.
func NewPoller(m *metrics.Metrics) *Poller {
	return &Poller{sources: make(map[string]chains.StatusSource), metrics: m}
}

// Register adds the status source of chain.
func (p *Poller) Register(chain string, src chains.StatusSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources[chain] = src
}

func (p *Poller) source(chain string) (chains.StatusSource, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	src, ok := p.sources[chain]
	if !ok {
		return nil, errors.Wrapf(chains.ErrUnsupportedChain, "%q", chain)
	}
	return src, nil
}

// Lookup returns the current status of ref on chain. A reference the chain
// has not seen yet is Pending.
func (p *Poller) Lookup(ctx context.Context, chain, ref string) (*chains.Result, error) {
	src, err := p.source(chain)
	if err != nil {
		return nil, err
	}
	res, err := src.Lookup(ctx, ref)
	if err != nil {
		return nil, chains.Classify(err)
	}
	if res == nil {
		res = chains.Pending(ref)
	}
	p.metrics.IncStatusLookup(chain, string(res.Status))
	return res, nil
}

// Refresh re-reads the status of a previously returned result. Terminal
// results are returned unchanged.
func (p *Poller) Refresh(ctx context.Context, chain string, prev *chains.Result) (*chains.Result, error) {
	if prev == nil {
		return nil, errors.New("nothing to refresh")
	}
	if prev.Status == chains.StatusFailed {
		return prev, nil
	}
	return p.Lookup(ctx, chain, prev.TxReference)
}

// Wait polls ref every interval until it leaves Pending. If ctx ends first
// the last observed result is returned with an ErrTimeout.
func (p *Poller) Wait(ctx context.Context, chain, ref string, interval time.Duration) (*chains.Result, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := chains.Pending(ref)
	for {
		res, err := p.Lookup(ctx, chain, ref)
		switch {
		case err == nil && res.Status != chains.StatusPending:
			return res, nil
		case err == nil:
			last = res
		case !chains.Retryable(err):
			return nil, err
		default:
			log.Dispatch.Debug().Err(err).Str("chain", chain).Str("tx", ref).Msg("Status lookup failed, will retry")
		}

		select {
		case <-ctx.Done():
			return last, chains.Wrap(chains.ErrTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// LookupMany looks up refs concurrently. Results are in the order of refs.
func (p *Poller) LookupMany(ctx context.Context, chain string, refs []string) ([]*chains.Result, error) {
	if _, err := p.source(chain); err != nil {
		return nil, err
	}
	out := make([]*chains.Result, len(refs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i, ref := range refs {
		g.Go(func() error {
			res, err := p.Lookup(ctx, chain, ref)
			if err != nil {
				return errors.Wrapf(err, "lookup %s", ref)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
