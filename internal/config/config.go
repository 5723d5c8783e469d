// Package config provides configuration management for the ILP payment-channel connector.
// It handles loading and parsing of configuration files, environment variables,
// and provides structured access to application settings.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/ucarion/redact"

	"github.com/warrant1/chain-xrpl-ilp/internal/crypto"
)

// LogConfig holds configuration for logging.
type LogConfig struct {
	// Level specifies the minimum log level to output.
	// Valid values: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`

	// Format specifies the output format for log messages.
	// Valid values: "logfmt" (default), "json"
	Format string `mapstructure:"format"`
}

// LedgerConfig holds configuration for the connector's own XRP account and the
// ledger RPC endpoint it submits transactions against.
type LedgerConfig struct {
	// XRPServer is the XRPL RPC endpoint URL, e.g. "https://s.altnet.rippletest.net:51234".
	XRPServer string `mapstructure:"xrpServer"`

	// Address is the connector's own XRP account, the destination of every incoming
	// channel and the source of every outgoing channel.
	Address string `mapstructure:"address"`

	// Secret is the signing secret for Address. Also the root material for the
	// per-account HMAC claim-key derivation (see internal/claimcodec). Mutually
	// exclusive with HexSeed: exactly one must be set.
	Secret string `mapstructure:"secret"`

	// HexSeed is a BIP-44 master seed (hex-encoded) the connector derives its
	// operating secret from at startup, via internal/crypto and DerivationPath.
	// An alternative to configuring Secret directly.
	HexSeed string `mapstructure:"hexSeed"`

	// DerivationPath is the BIP-44 path applied to HexSeed, e.g. "m/44'/144'/0'/0/0".
	DerivationPath string `mapstructure:"derivationPath"`

	// Timeout bounds RPC round-trips to XRPServer.
	Timeout time.Duration `mapstructure:"timeout"`
}

// defaultDerivationPath is BIP-44 purpose 44, coin type 144 (XRP), account 0.
const defaultDerivationPath = "m/44'/144'/0'/0/0"

// EffectiveSecret returns Secret when set, otherwise a family seed derived from
// HexSeed along DerivationPath (default m/44'/144'/0'/0/0). Setting both, or
// neither, is an error: the connector cannot sign ledger transactions without one.
func (l LedgerConfig) EffectiveSecret() (string, error) {
	if l.Secret != "" && l.HexSeed != "" {
		return "", fmt.Errorf("config: ledger.secret and ledger.hexSeed are mutually exclusive")
	}
	if l.Secret != "" {
		return l.Secret, nil
	}
	if l.HexSeed == "" {
		return "", fmt.Errorf("config: ledger.secret or ledger.hexSeed must be set")
	}

	path := l.DerivationPath
	if path == "" {
		path = defaultDerivationPath
	}
	key, err := crypto.GetExtendedKeyFromHexSeedWithPath(l.HexSeed, path)
	if err != nil {
		return "", fmt.Errorf("config: derive key from hexSeed: %w", err)
	}
	return crypto.FamilySeedFromExtendedKey(key)
}

// PaychanConfig holds the admission-control and settlement policy applied to every account.
type PaychanConfig struct {
	// AssetScale is the base-unit exponent for amounts exchanged with peers (default 6,
	// i.e. drops). Mutually exclusive with CurrencyScale; exactly one must be set.
	AssetScale *uint8 `mapstructure:"assetScale"`

	// CurrencyScale is an alias accepted for AssetScale for compatibility with peers
	// that negotiate the older field name.
	CurrencyScale *uint8 `mapstructure:"currencyScale"`

	// Bandwidth is the maximum unsecured liability (in drops) the connector will
	// advance an account ahead of a covering signed claim.
	Bandwidth uint64 `mapstructure:"bandwidth"`

	// MaxBalance is an alias for Bandwidth kept for peers using the older option name.
	MaxBalance *uint64 `mapstructure:"maxBalance"`

	// MaxPacketAmount caps any single incoming PREPARE amount. Zero means unbounded.
	MaxPacketAmount uint64 `mapstructure:"maxPacketAmount"`

	// MaxFeePercent bounds the fraction of claimed income an auto-claim transaction
	// may spend on its own network fee. Default 0.01.
	MaxFeePercent float64 `mapstructure:"maxFeePercent"`

	// ClaimInterval is the auto-claim poll period.
	ClaimInterval time.Duration `mapstructure:"claimInterval"`

	// MinSettleDelay is the minimum settleDelay an incoming channel must declare.
	MinSettleDelay time.Duration `mapstructure:"minSettleDelay"`

	// MinIncomingChannelDrops is the minimum escrow required before fund_channel
	// will open a reverse channel.
	MinIncomingChannelDrops uint64 `mapstructure:"minIncomingChannelDrops"`

	// OutgoingChannelDefaultDrops is the escrow amount used whenever the connector
	// opens or tops up a reverse channel.
	OutgoingChannelDefaultDrops uint64 `mapstructure:"outgoingChannelDefaultDrops"`

	// WatchInterval is the ChannelWatcher poll period.
	WatchInterval time.Duration `mapstructure:"watchInterval"`
}

// EffectiveScale resolves AssetScale/CurrencyScale, preferring AssetScale, defaulting to 6.
func (p PaychanConfig) EffectiveScale() (uint8, error) {
	if p.AssetScale != nil && p.CurrencyScale != nil {
		return 0, fmt.Errorf("config: assetScale and currencyScale are mutually exclusive")
	}
	if p.AssetScale != nil {
		return *p.AssetScale, nil
	}
	if p.CurrencyScale != nil {
		return *p.CurrencyScale, nil
	}
	return 6, nil
}

// EffectiveBandwidth resolves Bandwidth/MaxBalance, preferring MaxBalance when set.
func (p PaychanConfig) EffectiveBandwidth() uint64 {
	if p.MaxBalance != nil {
		return *p.MaxBalance
	}
	return p.Bandwidth
}

// StoreConfig selects the backing key-value store.
type StoreConfig struct {
	// Path selects the store implementation: "memory" or a filesystem path for the
	// JSON file store.
	Path string `mapstructure:"path"`
}

// ServerConfig holds the connector's listen addresses.
type ServerConfig struct {
	// Listen is the TCP address the peer transport (internal/peer) listens on.
	Listen string `mapstructure:"listen"`

	// GRPCListen is the address the operational gRPC surface (internal/api) listens on.
	GRPCListen string `mapstructure:"grpcListen"`
}

// DataHandlerConfig selects where admitted PREPARE packets are forwarded.
// The connector never routes multi-hop ILP traffic itself; this is the
// hand-off point to whatever process actually speaks STREAM/plugin
// semantics to the end customer.
type DataHandlerConfig struct {
	// URL is the downstream HTTP endpoint PREPARE packets are POSTed to. If
	// empty, the connector falls back to rejecting every PREPARE with F02
	// (no downstream configured).
	URL string `mapstructure:"url"`

	// Timeout bounds each forwarded request. Defaults to 30s.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Config contains all configuration parameters for the connector.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Paychan     PaychanConfig     `mapstructure:"paychan"`
	Store       StoreConfig       `mapstructure:"store"`
	Server      ServerConfig      `mapstructure:"server"`
	DataHandler DataHandlerConfig `mapstructure:"dataHandler"`
}

// LoadConfig loads configuration from Viper into the Config structure.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if _, err := cfg.Paychan.EffectiveScale(); err != nil {
		return nil, err
	}
	if _, err := cfg.Ledger.EffectiveSecret(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RedactedConfigLog returns a JSON representation of the config with the signing
// secret masked, safe to print at startup.
func (c *Config) RedactedConfigLog() string {
	sensitiveFields := [][]string{
		{"Ledger", "Secret"},
		{"Ledger", "HexSeed"},
	}
	cfgCopy := *c
	for _, path := range sensitiveFields {
		redact.Redact(path, &cfgCopy)
	}
	b, err := json.Marshal(cfgCopy)
	if err != nil {
		return "<failed to marshal config>"
	}
	return string(b)
}
