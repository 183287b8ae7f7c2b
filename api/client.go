// Package api holds the outbound transports used by the chain builders.
//
// Files:
//
//	base.go      - context-aware JSON-RPC 2.0 and REST helpers
//	types.go     - wire types (RPC envelopes, UTXO index payloads)
//	bitcoin.go   - bitcoind JSON-RPC calls and the Esplora UTXO index
//	ethereum.go  - per-endpoint go-ethereum clients and the EVM prober
//	solana.go    - per-endpoint solana-go clients and the slot prober
//
// Every call takes the endpoint it should talk to; choosing that endpoint is
// the job of the health registry.
package api

import (
	"net/http"
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds a single HTTP exchange when no deadline is set on the
// request context.
const DefaultTimeout = 30 * time.Second

// Client performs JSON-RPC and REST calls against arbitrary endpoints.
type Client struct {
	httpClient *http.Client
	requestID  atomic.Uint64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a new API client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
