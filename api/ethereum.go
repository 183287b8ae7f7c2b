package api

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// EthereumClients caches one go-ethereum client per endpoint URL. Clients are
// dialed lazily and reused across calls.
type EthereumClients struct {
	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

// NewEthereumClients creates an empty client cache
func NewEthereumClients() *EthereumClients {
	return &EthereumClients{clients: make(map[string]*ethclient.Client)}
}

// Get returns the client for endpoint, dialing it on first use. Dialing a
// websocket endpoint is network I/O, so it happens outside the lock; when two
// callers race, the first stored client wins and the other is closed.
func (e *EthereumClients) Get(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	e.mu.Lock()
	c, ok := e.clients[endpoint]
	e.mu.Unlock()
	if ok {
		return c, nil
	}

	dialed, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", endpoint)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.clients[endpoint]; ok {
		dialed.Close()
		return c, nil
	}
	e.clients[endpoint] = dialed
	return dialed, nil
}

// Prober probes an EVM endpoint with eth_blockNumber
func (e *EthereumClients) Prober() func(ctx context.Context, endpoint string) (uint64, error) {
	return func(ctx context.Context, endpoint string) (uint64, error) {
		c, err := e.Get(ctx, endpoint)
		if err != nil {
			return 0, err
		}
		return c.BlockNumber(ctx)
	}
}

// Close closes every cached client
func (e *EthereumClients) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for url, c := range e.clients {
		c.Close()
		delete(e.clients, url)
	}
}
