// Package config loads the storefront configuration from TOML, .env and
// environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	storefront "github.com/nftmarket/storefront"
	"github.com/nftmarket/storefront/catalog"
	"github.com/nftmarket/storefront/evm"
	"github.com/nftmarket/storefront/faucet"
	"github.com/nftmarket/storefront/purchase"
)

// Environment overrides
const (
	EnvPrivateKey = "STOREFRONT_PRIVATE_KEY"
	EnvRPCURL     = "STOREFRONT_RPC_URL"
	EnvListen     = "STOREFRONT_LISTEN"
)

// DefaultCatalogSize is how many tokens the default catalog shows
const DefaultCatalogSize = 12

// Duration is a time.Duration written as a string such as "10s" in TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete storefront configuration
type Config struct {
	Listen     string `toml:"listen"`
	Network    string `toml:"network"`
	RPCURL     string `toml:"rpc_url"`
	PrivateKey string `toml:"private_key"`

	Marketplace string `toml:"marketplace"`
	NFT         string `toml:"nft"`

	Catalog       CatalogConfig       `toml:"catalog"`
	Purchase      PurchaseConfig      `toml:"purchase"`
	Cache         CacheConfig         `toml:"cache"`
	Faucet        FaucetConfig        `toml:"faucet"`
	HTTP          HTTPConfig          `toml:"http"`
	Log           LogConfig           `toml:"log"`
	Preferences   PreferencesConfig   `toml:"preferences"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// CatalogConfig is the token/listing table and how often it is refreshed
type CatalogConfig struct {
	Entries         []catalog.Entry `toml:"entries"`
	RefreshInterval Duration        `toml:"refresh_interval"`
	Concurrency     int             `toml:"concurrency"`
}

// PurchaseConfig tunes the purchase flow
type PurchaseConfig struct {
	ApprovalPolicy     string   `toml:"approval_policy"`
	SkipAllowanceCheck bool     `toml:"skip_allowance_check"`
	SettleDelay        Duration `toml:"settle_delay"`
	ReceiptTimeout     Duration `toml:"receipt_timeout"`
}

// CacheConfig tunes the read gateway
type CacheConfig struct {
	StaleTime Duration `toml:"stale_time"`
}

// FaucetConfig enables the test token faucet
type FaucetConfig struct {
	Enabled bool           `toml:"enabled"`
	Pause   Duration       `toml:"pause"`
	Tokens  []faucet.Token `toml:"tokens"`
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
	RatePerMinute  int      `toml:"rate_per_minute"`
}

// LogConfig configures the root logger
type LogConfig struct {
	Level   string `toml:"level"`
	Console bool   `toml:"console"`
}

// PreferencesConfig says where preferences are persisted. An empty path keeps them in memory.
type PreferencesConfig struct {
	Path string `toml:"path"`
}

// NotificationsConfig bounds the notification feed
type NotificationsConfig struct {
	Capacity int `toml:"capacity"`
}

// Default returns the compiled-in Lisk Sepolia configuration
func Default() *Config {
	network := evm.NetworkConfigs[evm.NetworkLiskSepolia]

	entries := make([]catalog.Entry, DefaultCatalogSize)
	for i := range entries {
		entries[i] = catalog.Entry{TokenID: uint64(i + 1), ListingID: uint64(i + 1)}
	}

	return &Config{
		Listen:      ":8080",
		Network:     evm.NetworkLiskSepolia,
		RPCURL:      network.RPCURL,
		Marketplace: network.Marketplace,
		NFT:         network.NFT,
		Catalog: CatalogConfig{
			Entries:         entries,
			RefreshInterval: Duration{30 * time.Second},
			Concurrency:     catalog.DefaultConcurrency,
		},
		Purchase: PurchaseConfig{
			ApprovalPolicy: string(purchase.ApprovalExact),
			SettleDelay:    Duration{100 * time.Millisecond},
			ReceiptTimeout: Duration{evm.DefaultReceiptTimeout},
		},
		Cache: CacheConfig{
			StaleTime: Duration{evm.DefaultStaleTime},
		},
		Faucet: FaucetConfig{
			Enabled: true,
			Pause:   Duration{faucet.DefaultPause},
			Tokens:  append([]faucet.Token(nil), faucet.DefaultTokens...),
		},
		HTTP: HTTPConfig{
			AllowedOrigins: []string{"*"},
			RatePerMinute:  120,
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Notifications: NotificationsConfig{
			Capacity: 50,
		},
	}
}

// Load reads path over the defaults, then applies .env and environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if !strings.HasSuffix(path, ".toml") {
			return nil, fmt.Errorf("config file must be a toml file")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional; the environment may be set by docker or systemd instead
	_ = godotenv.Load()
	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes TOML into cfg, keeping values the document does not set.
// Lists the document sets replace the defaults rather than extend them.
func Parse(data []byte, cfg *Config) error {
	var doc map[string]interface{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse TOML config: %w", err)
	}
	if hasKey(doc, "catalog", "entries") {
		cfg.Catalog.Entries = nil
	}
	if hasKey(doc, "faucet", "tokens") {
		cfg.Faucet.Tokens = nil
	}
	if hasKey(doc, "http", "allowed_origins") {
		cfg.HTTP.AllowedOrigins = nil
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return nil
}

func hasKey(doc map[string]interface{}, table, key string) bool {
	t, ok := doc[table].(map[string]interface{})
	if !ok {
		return false
	}
	_, ok = t[key]
	return ok
}

// ApplyEnv overrides settings from the environment
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvPrivateKey); v != "" {
		c.PrivateKey = v
	}
	if v := getenv(EnvRPCURL); v != "" {
		c.RPCURL = v
	}
	if v := getenv(EnvListen); v != "" {
		c.Listen = v
	}
}

// NetworkConfig returns the deployment for the configured network with
// address overrides applied
func (c *Config) NetworkConfig() (evm.NetworkConfig, error) {
	network, ok := evm.NetworkConfigs[c.Network]
	if !ok {
		return evm.NetworkConfig{}, fmt.Errorf("unsupported network: %s", c.Network)
	}
	if c.RPCURL != "" {
		network.RPCURL = c.RPCURL
	}
	if c.Marketplace != "" {
		network.Marketplace = c.Marketplace
	}
	if c.NFT != "" {
		network.NFT = c.NFT
	}
	return network, nil
}

// Validate checks addresses, the catalog table and enumerations
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.NetworkConfig(); err != nil {
		errs = append(errs, err)
	}
	if c.RPCURL == "" {
		errs = append(errs, errors.New("rpc_url is required"))
	}
	if _, err := storefront.ParseAddress(c.Marketplace); err != nil {
		errs = append(errs, fmt.Errorf("marketplace: %w", err))
	}
	if _, err := storefront.ParseAddress(c.NFT); err != nil {
		errs = append(errs, fmt.Errorf("nft: %w", err))
	}

	if len(c.Catalog.Entries) == 0 {
		errs = append(errs, errors.New("catalog.entries must not be empty"))
	}
	seen := make(map[uint64]bool, len(c.Catalog.Entries))
	for _, e := range c.Catalog.Entries {
		if seen[e.TokenID] {
			errs = append(errs, fmt.Errorf("catalog.entries: duplicate token_id %d", e.TokenID))
		}
		seen[e.TokenID] = true
	}
	if c.Catalog.RefreshInterval.Duration <= 0 {
		errs = append(errs, errors.New("catalog.refresh_interval must be positive"))
	}

	switch purchase.ApprovalPolicy(c.Purchase.ApprovalPolicy) {
	case purchase.ApprovalExact, purchase.ApprovalUnlimited:
	default:
		errs = append(errs, fmt.Errorf("purchase.approval_policy must be %q or %q", purchase.ApprovalExact, purchase.ApprovalUnlimited))
	}

	for _, t := range c.Faucet.Tokens {
		if _, err := storefront.ParseAddress(t.Address); err != nil {
			errs = append(errs, fmt.Errorf("faucet token %s: %w", t.Symbol, err))
		}
	}

	if c.HTTP.RatePerMinute < 0 {
		errs = append(errs, errors.New("http.rate_per_minute must not be negative"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not supported", c.Log.Level))
	}

	return errors.Join(errs...)
}
