// Package server exposes the dispatch service over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/dispatch"
	"github.com/chinmay1088/odyssey-core/log"
	"github.com/chinmay1088/odyssey-core/metrics"
)

const shutdownTimeout = 10 * time.Second

// Backend is the call surface served over HTTP. *dispatch.Service
// implements it.
type Backend interface {
	GetBalance(ctx context.Context, chain, address string) (decimal.Decimal, error)
	Send(ctx context.Context, req dispatch.SendRequest) (*chains.Result, error)
	GetStatus(ctx context.Context, chain, ref string) (*chains.Result, error)
	GetHealth() map[string]dispatch.ChainHealth
}

// Options configure the HTTP surface.
type Options struct {
	// SendTimeout bounds how long a transfer request waits for confirmation.
	SendTimeout time.Duration
	// LocalMetrics restricts /metrics to loopback clients.
	LocalMetrics bool
}

// Server is the HTTP front of the transaction core.
type Server struct {
	backend Backend
	metrics *metrics.Metrics
	opts    Options
	engine  *gin.Engine
}

// New creates a server and registers its routes.
func New(backend Backend, m *metrics.Metrics, opts Options) *Server {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Minute
	}
	s := &Server{backend: backend, metrics: m, opts: opts, engine: gin.New()}
	s.engine.Use(gin.Recovery(), RequestID(), AccessLog())
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/readyz", s.readyz)

	metricsHandler := gin.WrapH(s.metrics.Handler())
	if s.opts.LocalMetrics {
		s.engine.GET("/metrics", LocalOnly(), metricsHandler)
	} else {
		s.engine.GET("/metrics", metricsHandler)
	}

	v1 := s.engine.Group("/v1")
	v1.GET("/health", s.getHealth)
	v1.GET("/chains/:chain/balance/:address", s.getBalance)
	v1.POST("/chains/:chain/transfers", s.postTransfer)
	v1.GET("/chains/:chain/transactions/:ref", s.getTransaction)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Server.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Server.Info().Msg("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}
	return nil
}
