// Package health tracks the liveness of RPC endpoints and selects a healthy
// one per endpoint group. A group is one primary endpoint plus an ordered list
// of fallbacks, all answering the same protocol.
package health

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

// Prober performs a cheap read against endpoint and returns the reported
// block height or slot. An endpoint is healthy only if the probe succeeds
// with a strictly positive height.
type Prober func(ctx context.Context, endpoint string) (uint64, error)

// EndpointSet is the ordered endpoint list of one group.
type EndpointSet struct {
	Group     string
	Primary   string
	Fallbacks []string
}

// Endpoints returns primary followed by the fallbacks.
func (s EndpointSet) Endpoints() []string {
	return append([]string{s.Primary}, s.Fallbacks...)
}

// EndpointHealth is the last observed state of one endpoint.
type EndpointHealth struct {
	Endpoint    string    `json:"endpoint"`
	LastChecked time.Time `json:"lastChecked"`
	Healthy     bool      `json:"healthy"`
}

// GroupStatus is a point-in-time view of one group.
type GroupStatus struct {
	Healthy         bool             `json:"healthy"`
	CurrentEndpoint string           `json:"currentEndpoint,omitempty"`
	Endpoints       []EndpointHealth `json:"endpoints"`
}

// Options tune the registry. Zero values fall back to defaults.
type Options struct {
	Interval    time.Duration // background probe interval
	StaleAfter  time.Duration // cached health older than this is re-probed
	CallTimeout time.Duration // per-call timeout used by probes and Do
	Metrics     *metrics.Metrics
}

const (
	DefaultInterval    = 15 * time.Second
	DefaultStaleAfter  = 30 * time.Second
	DefaultCallTimeout = 10 * time.Second
)

type group struct {
	set    EndpointSet
	probe  Prober
	health []EndpointHealth // index 0 is the primary
	// current is the selected endpoint index, -1 when none.
	current int
	// lastGood is the fallback index (into set.Fallbacks) of the last fallback
	// found healthy, -1 when none.
	lastGood int
}

// Registry owns the endpoint groups and the background probe loop.
type Registry struct {
	opts Options
	now  func() time.Time

	mu     sync.Mutex
	groups map[string]*group

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &Registry{
		opts:   opts,
		now:    time.Now,
		groups: make(map[string]*group),
	}
}

// Register adds an endpoint group. Registering the same group twice replaces
// the earlier set.
func (r *Registry) Register(set EndpointSet, probe Prober) error {
	if set.Group == "" {
		return errors.New("endpoint group name is empty")
	}
	if set.Primary == "" {
		return errors.Errorf("endpoint group %s has no primary endpoint", set.Group)
	}
	if probe == nil {
		return errors.Errorf("endpoint group %s has no prober", set.Group)
	}

	endpoints := set.Endpoints()
	g := &group{
		set:      set,
		probe:    probe,
		health:   make([]EndpointHealth, len(endpoints)),
		current:  -1,
		lastGood: -1,
	}
	for i, ep := range endpoints {
		g.health[i].Endpoint = ep
	}

	r.mu.Lock()
	r.groups[set.Group] = g
	r.mu.Unlock()
	return nil
}

// CallTimeout returns the per-call timeout.
func (r *Registry) CallTimeout() time.Duration {
	return r.opts.CallTimeout
}

// Attempts returns the failover budget of group: one call against the first
// selection plus one per fallback.
func (r *Registry) Attempts(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[name]
	if !ok {
		return 1
	}
	return 1 + len(g.set.Fallbacks)
}

// SelectHealthy returns a healthy endpoint of group. The current selection is
// returned directly while its cached health is fresh. Otherwise the primary is
// tried first, then the fallbacks in round-robin order starting after the last
// fallback that was found healthy.
func (r *Registry) SelectHealthy(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	g, ok := r.groups[name]
	if !ok {
		r.mu.Unlock()
		return "", errors.Wrapf(chains.ErrUnsupportedChain, "no endpoints registered for %s", name)
	}
	now := r.now()
	if g.current >= 0 {
		h := g.health[g.current]
		if h.Healthy && r.fresh(h, now) {
			r.mu.Unlock()
			return h.Endpoint, nil
		}
	}
	order := g.order()
	r.mu.Unlock()

	for _, idx := range order {
		if err := ctx.Err(); err != nil {
			return "", chains.Wrap(chains.ErrTimeout, err)
		}

		r.mu.Lock()
		h := g.health[idx]
		cached := r.fresh(h, r.now())
		r.mu.Unlock()

		healthy := h.Healthy
		if !cached {
			healthy = r.probeOne(ctx, g, idx)
		}
		if !healthy {
			continue
		}

		r.mu.Lock()
		g.current = idx
		if idx > 0 {
			g.lastGood = idx - 1
		}
		r.mu.Unlock()
		return h.Endpoint, nil
	}

	return "", errors.Wrapf(chains.ErrAllEndpointsUnhealthy, "group %s", name)
}

// ReportFailure marks endpoint unhealthy after a failed call and clears the
// current selection if it pointed there.
func (r *Registry) ReportFailure(name, endpoint string) {
	r.mu.Lock()
	g, ok := r.groups[name]
	if !ok {
		r.mu.Unlock()
		return
	}
	for i := range g.health {
		if g.health[i].Endpoint != endpoint {
			continue
		}
		g.health[i].Healthy = false
		g.health[i].LastChecked = r.now()
		if g.current == i {
			g.current = -1
		}
	}
	r.mu.Unlock()

	log.Health.Warn().Str("group", name).Str("endpoint", endpoint).Msg("Endpoint marked unhealthy after failed call")
	r.opts.Metrics.ObserveProbe(name, endpoint, false)
}

// Snapshot returns the state of every group.
func (r *Registry) Snapshot() map[string]GroupStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]GroupStatus, len(r.groups))
	for name, g := range r.groups {
		st := GroupStatus{Endpoints: append([]EndpointHealth(nil), g.health...)}
		if g.current >= 0 && g.health[g.current].Healthy {
			st.Healthy = true
			st.CurrentEndpoint = g.health[g.current].Endpoint
		} else {
			for _, h := range g.health {
				if h.Healthy {
					st.Healthy = true
					st.CurrentEndpoint = h.Endpoint
					break
				}
			}
		}
		out[name] = st
	}
	return out
}

// Groups returns the registered group names.
func (r *Registry) Groups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	return names
}

// Start launches the background probe loop. The first round runs
// immediately. Calling Start on a running registry is a no-op.
func (r *Registry) Start(ctx context.Context) {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(r.opts.Interval)
		defer ticker.Stop()

		for {
			r.ProbeAll(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}(r.done)

	log.Health.Info().Dur("interval", r.opts.Interval).Msg("Background endpoint probing started")
}

// Shutdown stops the background loop and waits for it to exit. It is safe to
// call more than once, and before Start.
func (r *Registry) Shutdown() {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil

	log.Health.Info().Msg("Background endpoint probing stopped")
}

// ProbeAll probes every endpoint of every group, groups in parallel. A
// healthy primary becomes the current selection again.
func (r *Registry) ProbeAll(ctx context.Context) {
	r.mu.Lock()
	groups := make([]*group, 0, len(r.groups))
	for _, g := range r.groups {
		groups = append(groups, g)
	}
	r.mu.Unlock()

	eg, ctx := errgroup.WithContext(ctx)
	for _, g := range groups {
		g := g
		eg.Go(func() error {
			for idx := range g.health {
				if ctx.Err() != nil {
					return nil
				}
				healthy := r.probeOne(ctx, g, idx)
				if idx == 0 && healthy {
					r.mu.Lock()
					g.current = 0
					r.mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = eg.Wait()
}

func (r *Registry) probeOne(ctx context.Context, g *group, idx int) bool {
	endpoint := g.health[idx].Endpoint

	pctx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	height, err := g.probe(pctx, endpoint)
	cancel()
	healthy := err == nil && height > 0

	r.mu.Lock()
	g.health[idx].Healthy = healthy
	g.health[idx].LastChecked = r.now()
	if !healthy && g.current == idx {
		g.current = -1
	}
	r.mu.Unlock()

	r.opts.Metrics.ObserveProbe(g.set.Group, endpoint, healthy)
	if !healthy {
		ev := log.Health.Debug().Str("group", g.set.Group).Str("endpoint", endpoint)
		if err != nil {
			ev = ev.Err(err)
		} else {
			ev = ev.Uint64("height", height)
		}
		ev.Msg("Probe failed")
	}
	return healthy
}

func (r *Registry) fresh(h EndpointHealth, now time.Time) bool {
	return !h.LastChecked.IsZero() && now.Sub(h.LastChecked) < r.opts.StaleAfter
}

// order returns the selection order as health indexes: primary, then
// fallbacks starting after lastGood and wrapping around. Caller holds r.mu.
func (g *group) order() []int {
	n := len(g.set.Fallbacks)
	order := make([]int, 0, n+1)
	order = append(order, 0)
	for i := 0; i < n; i++ {
		fb := (g.lastGood + 1 + i) % n
		order = append(order, fb+1)
	}
	return order
}
