package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/config"
	"github.com/chinmay1088/odyssey-core/crypto"
	"github.com/chinmay1088/odyssey-core/wallet"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Seal and derive signing keys",
}

var keysSealCmd = &cobra.Command{
	Use:   "seal",
	Short: "Seal a private key with keys.secret",
	Long: `Read a private key from standard input and print it sealed with the
configured keys.secret. The sealed form can be passed to pay or to the HTTP
API with key mode auto or encrypted.

Examples:
  ODYSSEY_KEYS_SECRET=... odyssey keys seal`,
	Args: cobra.NoArgs,
	RunE: runKeysSeal,
}

var (
	deriveGenerate  bool
	derivePlaintext bool
	derivePath      string
)

var keysDeriveCmd = &cobra.Command{
	Use:   "derive <chain>",
	Short: "Derive a key from a BIP-39 mnemonic",
	Long: `Derive the signing key of a chain from a BIP-39 mnemonic and print its
address and sealed key. The mnemonic is read from standard input, or a new
24-word mnemonic is generated with --generate.

Default paths (mainnet / testnet):
  utxo    m/44'/0'/0'/0/0    m/44'/1'/0'/0/0
  evm     m/44'/60'/0'/0/0   m/44'/1'/0'/0/0
  solana  m/44'/501'/0'/0'   m/44'/501'/0'/1'

Examples:
  odyssey keys derive eth
  odyssey keys derive sol --generate
  odyssey keys derive btc --path "m/44'/0'/1'/0/0"`,
	Args: cobra.ExactArgs(1),
	RunE: runKeysDerive,
}

func runKeysSeal(cmd *cobra.Command, args []string) error {
	if cfg.Keys.Secret == "" {
		return errors.New("keys.secret is not configured")
	}
	gate := crypto.NewGate([]byte(cfg.Keys.Secret), []byte(cfg.Keys.Salt))

	key, err := newPrompter(cmd).secret("🔑 Private key: ")
	if err != nil {
		return err
	}
	defer clear(key)

	sealed, err := gate.Seal(key)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), sealed)
	return nil
}

func runKeysDerive(cmd *cobra.Command, args []string) error {
	family, err := chainFamily(cfg, args[0])
	if err != nil {
		return err
	}
	testnet := cfg.Network == config.NetworkTestnet
	path := derivePath
	if path == "" {
		if path, err = wallet.DerivationPath(family, testnet); err != nil {
			return err
		}
	}
	if cfg.Keys.Secret == "" && !derivePlaintext {
		return errors.New("keys.secret is not configured, set it or pass --plaintext")
	}

	out := cmd.OutOrStdout()
	var mnemonic string
	if deriveGenerate {
		if mnemonic, err = wallet.GenerateMnemonic(); err != nil {
			return err
		}
		fmt.Fprintln(out, "📝 Recovery phrase, write it down and keep it offline:")
		fmt.Fprintf(out, "   %s\n\n", color.YellowString(mnemonic))
	} else {
		raw, err := newPrompter(cmd).secret("📝 Recovery phrase: ")
		if err != nil {
			return err
		}
		mnemonic = string(raw)
		clear(raw)
	}

	seed, err := wallet.Seed(mnemonic, "")
	if err != nil {
		return err
	}
	defer clear(seed)

	key, err := wallet.Derive(seed, family, path, bitcoinParams(cfg.Network))
	if err != nil {
		return err
	}
	defer key.Zero()

	fmt.Fprintf(out, "   Family:  %s\n", key.Family)
	fmt.Fprintf(out, "   Path:    %s\n", key.Path)
	fmt.Fprintf(out, "   Address: %s\n", color.GreenString(key.Address))
	if derivePlaintext {
		fmt.Fprintf(out, "   Key:     %s\n", key.Secret)
		return nil
	}
	gate := crypto.NewGate([]byte(cfg.Keys.Secret), []byte(cfg.Keys.Salt))
	sealed, err := gate.Seal(key.Secret)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "   Sealed:  %s\n", sealed)
	return nil
}

// chainFamily resolves a configured chain, one of its aliases or a family name.
func chainFamily(c *config.Config, name string) (chains.Family, error) {
	name = strings.ToLower(name)
	for _, id := range c.ChainIDs() {
		ch := c.Chains[id]
		match := id == name
		for _, alias := range ch.Aliases {
			match = match || strings.ToLower(alias) == name
		}
		if match {
			family, _ := chains.ParseFamily(ch.Family)
			return family, nil
		}
	}
	if family, ok := chains.ParseFamily(name); ok {
		return family, nil
	}
	return "", errors.Wrapf(chains.ErrUnsupportedChain, "%q", name)
}

func init() {
	keysDeriveCmd.Flags().BoolVar(&deriveGenerate, "generate", false, "generate a new 24-word mnemonic")
	keysDeriveCmd.Flags().BoolVar(&derivePlaintext, "plaintext", false, "print the key unsealed")
	keysDeriveCmd.Flags().StringVar(&derivePath, "path", "", "derivation path, defaults to the family path of the network")

	keysCmd.AddCommand(keysSealCmd)
	keysCmd.AddCommand(keysDeriveCmd)
}
