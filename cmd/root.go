package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chinmay1088/odyssey-core/config"
	"github.com/chinmay1088/odyssey-core/log"
)

var (
	version = "2.0.0"

	cfgFile  string
	network  string
	logLevel string
	jsonLogs bool

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "odyssey",
	Aliases: []string{"ody"},
	Short:   "Multi-chain transaction core",
	Long: `Odyssey builds, signs, broadcasts and tracks native transfers on
Bitcoin, EVM chains and Solana. Endpoints are health-checked and calls fail
over to the next healthy endpoint of a chain.

Keys are passed per call, either sealed with the configured secret or as
plaintext, and are never stored.

Examples:
  odyssey serve                                  # Run the HTTP API
  odyssey balance 0x742d35Cc6634C0532925a3b8D4C9db96C4b4d8b6
  odyssey pay eth 0.1 0x1234... --from 0xabcd... # Send 0.1 ETH
  odyssey status sol 5VfY... --wait              # Wait for a signature
  odyssey health                                 # Probe every endpoint
  odyssey keys seal                              # Seal a private key
  odyssey --network testnet network              # Show testnet endpoints`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile, network)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevel
		}
		if cmd.Flags().Changed("json-logs") {
			loaded.Log.JSON = jsonLogs
		}
		log.Init(loaded.Log.Level, loaded.Log.JSON)
		cfg = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./odyssey.yaml)")
	rootCmd.PersistentFlags().StringVarP(&network, "network", "n", "", "mainnet or testnet, overrides the config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, error or disabled")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log as JSON")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(payCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(networkCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(versionCmd)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	// Skip config loading.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Odyssey Core v%s\n", version)
	},
}
