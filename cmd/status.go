package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/chinmay1088/odyssey-core/chains"
)

var (
	statusWait    bool
	statusTimeout time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status <chain> <tx-reference>",
	Short: "Show the status of a transaction",
	Long: `Show the normalized status of a transaction: pending, confirmed or failed.

A reference the chain has not seen yet is reported as pending.

Examples:
  odyssey status eth 0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060
  odyssey status sol 5VfYmGBjvQKe3Z9nvL5mLZyV9Y5dHMwxKjNQAKumtDwH... --wait`,
	Args: cobra.ExactArgs(2),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := contextOrBackground(cmd)
	var res *chains.Result
	if statusWait {
		waitCtx, cancel := context.WithTimeout(ctx, statusTimeout)
		defer cancel()
		res, err = withSpinner(cmd, "Waiting for confirmation", func() (*chains.Result, error) {
			return a.service.WaitStatus(waitCtx, args[0], args[1])
		})
	} else {
		res, err = a.service.GetStatus(ctx, args[0], args[1])
	}
	printResult(cmd.OutOrStdout(), res)
	return err
}

func printResult(w io.Writer, res *chains.Result) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "   Tx:            %s\n", res.TxReference)
	fmt.Fprintf(w, "   Status:        %s\n", statusColor(res.Status))
	if res.Height != nil {
		fmt.Fprintf(w, "   Height/Slot:   %d\n", *res.Height)
	}
	fmt.Fprintf(w, "   Confirmations: %d\n", res.Confirmations)
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWait, "wait", "w", false, "poll until the transaction is confirmed or failed")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 10*time.Minute, "how long --wait polls")
}
