package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/config"
)

var balanceCmd = &cobra.Command{
	Use:   "balance <address> [chain...]",
	Short: "Check native balances",
	Long: `Check the native balance of an address.

With no chains given, every configured chain that accepts the address format
is queried in parallel.

Examples:
  odyssey balance 0x742d35Cc6634C0532925a3b8D4C9db96C4b4d8b6          # every EVM chain
  odyssey balance bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh btc
  odyssey balance 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU sol`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBalance,
}

type balanceLine struct {
	chain   string
	balance decimal.Decimal
	err     error
}

func runBalance(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	address := args[0]
	requested := args[1:]
	explicit := len(requested) > 0
	if !explicit {
		requested = a.service.Chains()
	}

	lines := make([]balanceLine, len(requested))
	eg, ctx := errgroup.WithContext(contextOrBackground(cmd))
	for i, chain := range requested {
		eg.Go(func() error {
			bal, err := a.service.GetBalance(ctx, chain, address)
			lines[i] = balanceLine{chain: chain, balance: bal, err: err}
			return nil
		})
	}
	_ = eg.Wait()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "💰 Balances of %s (%s)\n\n", address, networkLabel())
	shown := 0
	for _, l := range lines {
		if l.err != nil {
			if !explicit && errors.Is(l.err, chains.ErrInvalidAddress) {
				continue
			}
			fmt.Fprintf(out, "   %-10s %s\n", l.chain, color.RedString("error: %v", l.err))
			shown++
			continue
		}
		fmt.Fprintf(out, "   %-10s %s\n", l.chain, color.GreenString(l.balance.String()))
		shown++
	}
	if shown == 0 {
		return errors.Wrapf(chains.ErrInvalidAddress, "%s is not valid on any configured chain", address)
	}
	return nil
}

func networkLabel() string {
	if cfg.Network == config.NetworkTestnet {
		return color.YellowString("Testnet")
	}
	return color.GreenString("Mainnet")
}

// lookupBalance is used by pay to show the sender's balance before signing.
func lookupBalance(ctx context.Context, a *app, chain, address string) string {
	bal, err := a.service.GetBalance(ctx, chain, address)
	if err != nil {
		return color.RedString("unavailable")
	}
	return bal.String()
}
