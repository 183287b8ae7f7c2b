package api

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go/rpc"
)

// SolanaClients caches one solana-go RPC client per endpoint URL
type SolanaClients struct {
	mu      sync.Mutex
	clients map[string]*rpc.Client
}

// NewSolanaClients creates an empty client cache
func NewSolanaClients() *SolanaClients {
	return &SolanaClients{clients: make(map[string]*rpc.Client)}
}

// Get returns the client for endpoint
func (s *SolanaClients) Get(endpoint string) *rpc.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[endpoint]; ok {
		return c
	}
	c := rpc.New(endpoint)
	s.clients[endpoint] = c
	return c
}

// Prober probes a Solana endpoint with getSlot at confirmed commitment
func (s *SolanaClients) Prober() func(ctx context.Context, endpoint string) (uint64, error) {
	return func(ctx context.Context, endpoint string) (uint64, error) {
		return s.Get(endpoint).GetSlot(ctx, rpc.CommitmentConfirmed)
	}
}

// Close closes every cached client
func (s *SolanaClients) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for url, c := range s.clients {
		_ = c.Close()
		delete(s.clients, url)
	}
}
