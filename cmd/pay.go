package cmd

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/config"
	"github.com/chinmay1088/odyssey-core/crypto"
	"github.com/chinmay1088/odyssey-core/dispatch"
)

var payCmd = &cobra.Command{
	Use:   "pay <chain> <amount> <address>",
	Short: "Send a native transfer",
	Long: `Sign, broadcast and confirm a native transfer.

The signing key is read from standard input, sealed or plaintext according
to --key-mode, and never stored.

Examples:
  odyssey pay eth 0.1 0x742d35Cc6634C0532925a3b8D4C9db96C4b4d8b6 --from 0xabcd...
  odyssey pay btc 0.001 bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh --from bc1q... --estimate-fee
  odyssey pay sol 1.5 7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU --from 9WzD... --yes`,
	Args: cobra.ExactArgs(3),
	RunE: runPay,
}

var payFlags struct {
	from           string
	keyMode        string
	yes            bool
	timeout        time.Duration
	feeRate        float64
	estimateFee    bool
	gasPrice       string
	maxFee         string
	maxPriorityFee string
	gasLimit       uint64
}

func runPay(cmd *cobra.Command, args []string) error {
	if payFlags.from == "" {
		return errors.Wrap(chains.ErrInvalidAddress, "--from is required")
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	chain, err := a.service.Resolve(args[0])
	if err != nil {
		return err
	}
	opts, err := sendOptions(cmd)
	if err != nil {
		return err
	}
	mode := a.keyMode
	if payFlags.keyMode != "" {
		if mode, err = crypto.ParseKeyMode(payFlags.keyMode); err != nil {
			return err
		}
	}

	ctx := contextOrBackground(cmd)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📊 Transaction Details:\n")
	fmt.Fprintf(out, "   Chain:   %s\n", chain)
	fmt.Fprintf(out, "   From:    %s (balance %s)\n", payFlags.from, lookupBalance(ctx, a, chain, payFlags.from))
	fmt.Fprintf(out, "   To:      %s\n", args[2])
	fmt.Fprintf(out, "   Amount:  %s\n", args[1])
	fmt.Fprintf(out, "   Network: %s\n\n", networkLabel())

	p := newPrompter(cmd)
	if !payFlags.yes {
		if cfg.Network == config.NetworkTestnet {
			fmt.Fprintln(out, "⚠️ You are on testnet. No real funds will be sent.")
		} else {
			fmt.Fprintln(out, "🚨 You are on main network. Real funds will be sent to this address.")
		}
		if !p.confirm("Confirm transaction") {
			fmt.Fprintln(out, "❌ Transaction cancelled by user")
			return nil
		}
	}

	key, err := p.secret("🔑 Private key: ")
	if err != nil {
		return err
	}
	keyStr := string(key)
	clear(key)

	timeout := payFlags.timeout
	if timeout <= 0 {
		timeout = cfg.Server.SendTimeout
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := withSpinner(cmd, "Broadcasting and waiting for confirmation", func() (*chains.Result, error) {
		return a.service.Send(sendCtx, dispatch.SendRequest{
			Chain:   chain,
			From:    payFlags.from,
			To:      args[2],
			Amount:  args[1],
			Key:     keyStr,
			KeyMode: mode,
			Options: opts,
		})
	})
	printResult(out, res)
	if err != nil {
		if res != nil && errors.Is(err, chains.ErrTimeout) {
			fmt.Fprintf(out, "💡 Run 'odyssey status %s %s --wait' to keep tracking it\n", chain, res.TxReference)
		}
		return err
	}
	return nil
}

func sendOptions(cmd *cobra.Command) (chains.SendOptions, error) {
	var opts chains.SendOptions
	flags := cmd.Flags()
	if flags.Changed("fee-rate") {
		rate := payFlags.feeRate
		opts.FeeRate = &rate
	}
	opts.EstimateFeeRate = payFlags.estimateFee
	if flags.Changed("gas-limit") {
		limit := payFlags.gasLimit
		opts.GasLimit = &limit
	}

	var err error
	if opts.GasPrice, err = parseWei("gas-price", payFlags.gasPrice); err != nil {
		return opts, err
	}
	if opts.MaxFeePerGas, err = parseWei("max-fee", payFlags.maxFee); err != nil {
		return opts, err
	}
	if opts.MaxPriorityFeePerGas, err = parseWei("max-priority-fee", payFlags.maxPriorityFee); err != nil {
		return opts, err
	}
	return opts, nil
}

func parseWei(name, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errors.Wrapf(chains.ErrInvalidAmount, "--%s must be a non-negative integer in wei", name)
	}
	return v, nil
}

// withSpinner runs fn while a spinner is shown on stderr.
func withSpinner(cmd *cobra.Command, description string, fn func() (*chains.Result, error)) (*chains.Result, error) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)

	type outcome struct {
		res *chains.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := fn()
		done <- outcome{res, err}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case o := <-done:
			_ = bar.Finish()
			return o.res, o.err
		case <-ticker.C:
			_ = bar.Add(1)
		}
	}
}

func init() {
	flags := payCmd.Flags()
	flags.StringVar(&payFlags.from, "from", "", "sender address (required)")
	flags.StringVar(&payFlags.keyMode, "key-mode", "", "auto, encrypted or plaintext, overrides keys.mode")
	flags.BoolVarP(&payFlags.yes, "yes", "y", false, "skip the confirmation prompt")
	flags.DurationVar(&payFlags.timeout, "timeout", 0, "how long to wait for confirmation, defaults to server.send_timeout")
	flags.Float64Var(&payFlags.feeRate, "fee-rate", 0, "UTXO fee rate in sat/vB")
	flags.BoolVar(&payFlags.estimateFee, "estimate-fee", false, "UTXO: use the index fee estimate")
	flags.StringVar(&payFlags.gasPrice, "gas-price", "", "EVM legacy gas price in wei")
	flags.StringVar(&payFlags.maxFee, "max-fee", "", "EVM max fee per gas in wei")
	flags.StringVar(&payFlags.maxPriorityFee, "max-priority-fee", "", "EVM max priority fee per gas in wei")
	flags.Uint64Var(&payFlags.gasLimit, "gas-limit", 0, "EVM gas limit, estimated when unset")
}

// statusColor renders s in the color of its state.
func statusColor(s chains.Status) string {
	switch s {
	case chains.StatusConfirmed:
		return color.GreenString(string(s))
	case chains.StatusFailed:
		return color.RedString(string(s))
	}
	return color.YellowString(string(s))
}
