package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chinmay1088/odyssey-core/log"
	"github.com/chinmay1088/odyssey-core/server"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API with background endpoint probing.

Routes:
  GET  /healthz                                 liveness
  GET  /readyz                                  every chain has a healthy endpoint
  GET  /metrics                                 Prometheus metrics
  GET  /v1/health                               per-chain endpoint health
  GET  /v1/chains/:chain/balance/:address       native balance
  POST /v1/chains/:chain/transfers              sign, broadcast and confirm
  GET  /v1/chains/:chain/transactions/:ref      normalized status`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.start(ctx)

	addr := cfg.Server.Listen
	if cmd.Flags().Changed("listen") {
		addr = serveListen
	}
	log.Logger.Info().
		Str("network", cfg.Network).
		Strs("chains", a.service.Chains()).
		Str("config", cfg.File).
		Msg("Starting odyssey core")

	srv := server.New(a.service, a.metrics, server.Options{
		SendTimeout:  cfg.Server.SendTimeout,
		LocalMetrics: cfg.Server.LocalMetrics,
	})
	return srv.ListenAndServe(ctx, addr)
}

func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "listen address, overrides server.listen")
}
