package kinnet

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kinecosystem/kinnet/stellarnetwork"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/txnbuild"
)

const (
	// DefaultAppID marks transactions from apps that didn't set an app id.
	DefaultAppID = "anon"
	// DefaultMemoTemplate is formatted with the app id and prepended to
	// every memo.
	DefaultMemoTemplate = "1-%s-"
	// DefaultMinAccountBalance is the starting balance of new accounts and
	// the amount a depleted channel is topped up with.
	DefaultMinAccountBalance = "2"
	// MaxMemoLength is the ledger limit for text memos in bytes.
	MaxMemoLength = 28
)

var appIDRegexp = regexp.MustCompile(`^[a-zA-Z0-9]{3,4}$`)

// Duration is a time.Duration that decodes from TOML strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds the settings shared by ChannelManager and Account.
type Config struct {
	Network           string   `toml:"network"`
	NetworkPassphrase string   `toml:"network_passphrase"`
	HorizonURL        string   `toml:"horizon_url"`
	AppID             string   `toml:"app_id"`
	MemoTemplate      string   `toml:"memo_template"`
	MinAccountBalance string   `toml:"min_account_balance"`
	BaseFee           int64    `toml:"base_fee"`
	TxTimeout         Duration `toml:"tx_timeout"`
	AcquireTimeout    Duration `toml:"acquire_timeout"`
	MonitorBackoff    Duration `toml:"monitor_backoff"`
	Token             Asset    `toml:"token"`
}

// DefaultConfig returns a Config for the public network.
func DefaultConfig() Config {
	return Config{
		Network:           stellarnetwork.PublicNetwork.Name,
		NetworkPassphrase: stellarnetwork.PublicNetwork.Passphrase,
		HorizonURL:        stellarnetwork.PublicNetwork.HorizonURL,
		AppID:             DefaultAppID,
		MemoTemplate:      DefaultMemoTemplate,
		MinAccountBalance: DefaultMinAccountBalance,
		BaseFee:           txnbuild.MinBaseFee,
		MonitorBackoff:    Duration{time.Second},
	}
}

// ParseConfig decodes TOML data on top of DefaultConfig. A network name
// fills in the passphrase and horizon url unless they are set explicitly.
func ParseConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	cfg.NetworkPassphrase = ""
	cfg.HorizonURL = ""
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.applyNetwork(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// LoadConfig reads a TOML config file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	cfg.NetworkPassphrase = ""
	cfg.HorizonURL = ""
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	if err := cfg.applyNetwork(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyNetwork() error {
	if c.Network == "" {
		return nil
	}
	n, err := stellarnetwork.ByName(c.Network)
	if err != nil {
		if c.NetworkPassphrase != "" {
			// custom network, e.g. a private test ledger
			return nil
		}
		return &ConfigurationError{Reason: err.Error()}
	}
	if c.NetworkPassphrase == "" {
		c.NetworkPassphrase = n.Passphrase
	}
	if c.HorizonURL == "" {
		c.HorizonURL = n.HorizonURL
	}
	return nil
}

// Validate checks the config for values the ledger would reject.
func (c Config) Validate() error {
	if c.NetworkPassphrase == "" {
		return configErrorf("network passphrase is required")
	}
	if !appIDRegexp.MatchString(c.AppID) {
		return configErrorf("app id %q must be 3-4 alphanumeric characters", c.AppID)
	}
	if strings.Count(c.MemoTemplate, "%s") != 1 || strings.Count(c.MemoTemplate, "%") != 1 {
		return configErrorf("memo template %q must contain exactly one %%s and no other verbs", c.MemoTemplate)
	}
	if len(c.MemoPrefix()) > MaxMemoLength {
		return configErrorf("memo prefix %q is longer than %d bytes", c.MemoPrefix(), MaxMemoLength)
	}
	if _, err := ParseAmount("min_account_balance", c.MinAccountBalance, false); err != nil {
		return configErrorf("min account balance: %v", err)
	}
	if c.BaseFee < txnbuild.MinBaseFee {
		return configErrorf("base fee %d is below the network minimum %d", c.BaseFee, txnbuild.MinBaseFee)
	}
	if c.TxTimeout.Duration < 0 || c.AcquireTimeout.Duration < 0 || c.MonitorBackoff.Duration < 0 {
		return configErrorf("timeouts must not be negative")
	}
	if err := c.Token.Validate(); err != nil {
		return configErrorf("token: %v", err)
	}
	return nil
}

// MemoPrefix is the memo template formatted with the app id.
func (c Config) MemoPrefix() string {
	return fmt.Sprintf(c.MemoTemplate, c.AppID)
}

func (c Config) minBalance() decimal.Decimal {
	d, err := decimal.NewFromString(c.MinAccountBalance)
	if err != nil {
		return decimal.Zero
	}
	return d
}
