package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nftmarket/storefront/catalog"
	"github.com/nftmarket/storefront/evm"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Len(t, cfg.Catalog.Entries, DefaultCatalogSize)
	assert.Equal(t, catalog.Entry{TokenID: 12, ListingID: 12}, cfg.Catalog.Entries[11])
	assert.Equal(t, "exact", cfg.Purchase.ApprovalPolicy)
	assert.Equal(t, evm.MarketplaceAddress, cfg.Marketplace)

	network, err := cfg.NetworkConfig()
	require.NoError(t, err)
	assert.Equal(t, int64(4202), network.ChainID.Int64())
}

func TestParse_OverridesDefaults(t *testing.T) {
	doc := `
listen = ":9090"

[catalog]
refresh_interval = "1m"

[[catalog.entries]]
token_id = 3
listing_id = 7

[[catalog.entries]]
token_id = 4
listing_id = 9

[purchase]
approval_policy = "unlimited"
settle_delay = "250ms"

[http]
allowed_origins = ["https://shop.example"]

[log]
level = "debug"
console = false
`
	cfg := Default()
	require.NoError(t, Parse([]byte(doc), cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, []catalog.Entry{{TokenID: 3, ListingID: 7}, {TokenID: 4, ListingID: 9}}, cfg.Catalog.Entries)
	assert.Equal(t, time.Minute, cfg.Catalog.RefreshInterval.Duration)
	assert.Equal(t, "unlimited", cfg.Purchase.ApprovalPolicy)
	assert.Equal(t, 250*time.Millisecond, cfg.Purchase.SettleDelay.Duration)
	assert.Equal(t, []string{"https://shop.example"}, cfg.HTTP.AllowedOrigins)
	assert.False(t, cfg.Log.Console)

	// Untouched sections keep their defaults
	assert.Equal(t, evm.DefaultStaleTime, cfg.Cache.StaleTime.Duration)
	assert.Len(t, cfg.Faucet.Tokens, 4)
}

func TestParse_InvalidDocument(t *testing.T) {
	err := Parse([]byte("listen = "), Default())
	assert.Error(t, err)

	err = Parse([]byte(`[catalog]
refresh_interval = "soon"`), Default())
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		EnvPrivateKey: "0xabc",
		EnvRPCURL:     "http://localhost:8545",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "0xabc", cfg.PrivateKey)
	assert.Equal(t, "http://localhost:8545", cfg.RPCURL)
	assert.Equal(t, ":8080", cfg.Listen)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown network", func(c *Config) { c.Network = "eip155:1" }, "unsupported network"},
		{"bad marketplace", func(c *Config) { c.Marketplace = "0x123" }, "marketplace"},
		{"empty catalog", func(c *Config) { c.Catalog.Entries = nil }, "catalog.entries"},
		{"duplicate token", func(c *Config) {
			c.Catalog.Entries = []catalog.Entry{{TokenID: 1, ListingID: 1}, {TokenID: 1, ListingID: 2}}
		}, "duplicate token_id 1"},
		{"approval policy", func(c *Config) { c.Purchase.ApprovalPolicy = "sometimes" }, "approval_policy"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"refresh interval", func(c *Config) { c.Catalog.RefreshInterval = Duration{} }, "refresh_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storefront.toml")
	require.NoError(t, os.WriteFile(path, []byte(`listen = ":7070"`), 0o600))

	t.Setenv(EnvListen, "")
	t.Setenv(EnvRPCURL, "http://rpc.test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "http://rpc.test", cfg.RPCURL)

	_, err = Load(filepath.Join(dir, "storefront.yaml"))
	assert.Error(t, err)
}
