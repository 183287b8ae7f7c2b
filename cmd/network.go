package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/chinmay1088/odyssey-core/config"
)

var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Show the network and configured endpoints",
	Long: `Show the selected network and the endpoints of every chain.

The network is chosen with --network, the network key of the config file or
ODYSSEY_NETWORK.

Examples:
  odyssey network
  odyssey --network testnet network`,
	Args: cobra.NoArgs,
	RunE: runNetwork,
}

func runNetwork(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🌐 Current network: %s\n", networkLabel())
	if cfg.File != "" {
		fmt.Fprintf(out, "📄 Config: %s\n", cfg.File)
	}
	fmt.Fprintln(out)

	for _, id := range cfg.ChainIDs() {
		ch := cfg.Chains[id]
		name := color.CyanString(id)
		if len(ch.Aliases) > 0 {
			name += " (" + strings.Join(ch.Aliases, ", ") + ")"
		}
		fmt.Fprintf(out, "%s [%s", name, ch.Family)
		if ch.ChainID != 0 {
			fmt.Fprintf(out, ", chain id %d", ch.ChainID)
		}
		fmt.Fprintln(out, "]")
		printEndpoints(cmd, "node", ch.Endpoints)
		if ch.Index.Primary != "" {
			printEndpoints(cmd, "index", ch.Index)
		}
	}
	return nil
}

func printEndpoints(cmd *cobra.Command, label string, e config.Endpoints) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "   %-6s %s %s\n", label, e.Primary, color.GreenString("(primary)"))
	for _, f := range e.Fallbacks {
		fmt.Fprintf(out, "   %-6s %s\n", "", f)
	}
}
