// Package config loads the odyssey-core configuration from an optional YAML
// file, ODYSSEY_* environment variables and built-in per-network defaults.
package config

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/crypto"
)

// EnvPrefix prefixes every environment override, e.g. ODYSSEY_KEYS_SECRET.
const EnvPrefix = "ODYSSEY"

// Endpoints is a primary endpoint plus ordered fallbacks.
type Endpoints struct {
	Primary   string   `mapstructure:"primary"`
	Fallbacks []string `mapstructure:"fallbacks"`
}

// Chain configures one chain identifier.
type Chain struct {
	Family    string `mapstructure:"family"`
	ChainID   int64  `mapstructure:"chain_id"`
	Endpoints `mapstructure:",squash"`
	// Index is the Esplora-compatible UTXO index of a utxo chain.
	Index           Endpoints     `mapstructure:"index"`
	DefaultFeeSats  int64         `mapstructure:"default_fee_sats"`
	ConfirmInterval time.Duration `mapstructure:"confirm_interval"`
	ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout"`
	SendRetries     int           `mapstructure:"send_retries"`
	Aliases         []string      `mapstructure:"aliases"`
}

// Config is the complete configuration.
type Config struct {
	Network string `mapstructure:"network"`
	Log     struct {
		Level string `mapstructure:"level"`
		JSON  bool   `mapstructure:"json"`
	} `mapstructure:"log"`
	RPC struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"rpc"`
	Health struct {
		Interval   time.Duration `mapstructure:"interval"`
		StaleAfter time.Duration `mapstructure:"stale_after"`
	} `mapstructure:"health"`
	Keys struct {
		Secret string `mapstructure:"secret"`
		Salt   string `mapstructure:"salt"`
		Mode   string `mapstructure:"mode"`
	} `mapstructure:"keys"`
	Server struct {
		Listen       string        `mapstructure:"listen"`
		SendTimeout  time.Duration `mapstructure:"send_timeout"`
		LocalMetrics bool          `mapstructure:"local_metrics"`
	} `mapstructure:"server"`
	Chains map[string]Chain `mapstructure:"chains"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// Load reads path (or ./odyssey.yaml when path is empty and the file
// exists), applies environment overrides and fills in the defaults of the
// selected network. A non-empty network overrides the configured one.
func Load(path, network string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
	} else {
		v.SetConfigName("odyssey")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "failed to read config")
			}
		}
	}

	setDefaults(v)
	if network != "" {
		v.Set("network", strings.ToLower(network))
	}
	setChainDefaults(v, strings.ToLower(v.GetString("network")))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	cfg.File = v.ConfigFileUsed()
	cfg.Network = strings.ToLower(cfg.Network)
	for id, c := range cfg.Chains {
		c.Family = strings.ToLower(c.Family)
		cfg.Chains[id] = c
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("network", NetworkMainnet)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("rpc.timeout", DefaultRPCTimeout)
	v.SetDefault("health.interval", DefaultHealthInterval)
	v.SetDefault("health.stale_after", DefaultStaleAfter)
	v.SetDefault("keys.secret", "")
	v.SetDefault("keys.salt", "")
	v.SetDefault("keys.mode", string(crypto.KeyModeAuto))
	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.send_timeout", DefaultSendTimeout)
	v.SetDefault("server.local_metrics", false)
}

// setChainDefaults sets leaf defaults so a file can override single fields
// of a built-in chain.
func setChainDefaults(v *viper.Viper, network string) {
	for id, c := range chainDefaults[network] {
		prefix := "chains." + id + "."
		v.SetDefault(prefix+"family", c.Family)
		v.SetDefault(prefix+"primary", c.Primary)
		v.SetDefault(prefix+"fallbacks", c.Fallbacks)
		if c.ChainID != 0 {
			v.SetDefault(prefix+"chain_id", c.ChainID)
		}
		if c.Index.Primary != "" {
			v.SetDefault(prefix+"index.primary", c.Index.Primary)
			v.SetDefault(prefix+"index.fallbacks", c.Index.Fallbacks)
		}
		if c.DefaultFeeSats != 0 {
			v.SetDefault(prefix+"default_fee_sats", c.DefaultFeeSats)
		}
		if len(c.Aliases) > 0 {
			v.SetDefault(prefix+"aliases", c.Aliases)
		}
	}
}

// Validate checks the configuration for values the core cannot run with.
func (c *Config) Validate() error {
	if c.Network != NetworkMainnet && c.Network != NetworkTestnet {
		return errors.Errorf("invalid network %q, use mainnet or testnet", c.Network)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error", "disabled":
	default:
		return errors.Errorf("invalid log level %q", c.Log.Level)
	}
	if c.RPC.Timeout <= 0 {
		return errors.New("rpc.timeout must be positive")
	}
	if _, err := crypto.ParseKeyMode(c.Keys.Mode); err != nil {
		return errors.Wrap(err, "keys.mode")
	}
	if len(c.Chains) == 0 {
		return errors.New("no chains configured")
	}

	aliases := make(map[string]string)
	for _, id := range c.ChainIDs() {
		ch := c.Chains[id]
		family, ok := chains.ParseFamily(ch.Family)
		if !ok {
			return errors.Errorf("chain %s: unknown family %q", id, ch.Family)
		}
		if ch.Primary == "" {
			return errors.Errorf("chain %s: no primary endpoint", id)
		}
		switch family {
		case chains.FamilyEVM:
			if ch.ChainID <= 0 {
				return errors.Errorf("chain %s: evm chains need a chain_id", id)
			}
		case chains.FamilyUTXO:
			if ch.Index.Primary == "" {
				return errors.Errorf("chain %s: utxo chains need an index endpoint", id)
			}
		}
		if ch.ConfirmInterval < 0 || ch.ConfirmTimeout < 0 || ch.SendRetries < 0 || ch.DefaultFeeSats < 0 {
			return errors.Errorf("chain %s: negative timing or fee values", id)
		}
		for _, alias := range ch.Aliases {
			alias = strings.ToLower(alias)
			if other, dup := aliases[alias]; dup {
				return errors.Errorf("alias %s is used by %s and %s", alias, other, id)
			}
			if _, clash := c.Chains[alias]; clash {
				return errors.Errorf("alias %s of %s is also a chain identifier", alias, id)
			}
			aliases[alias] = id
		}
	}
	return nil
}

// ChainIDs returns the configured chain identifiers, sorted.
func (c *Config) ChainIDs() []string {
	ids := make([]string, 0, len(c.Chains))
	for id := range c.Chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IndexGroup names the health group of a utxo chain's index.
func IndexGroup(chainID string) string {
	return chainID + "-index"
}
