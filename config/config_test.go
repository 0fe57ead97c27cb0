package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/flashscan/dex/sushiswap"
	"github.com/michaelpento.lv/flashscan/dex/uniswap"
)

const sampleConfig = `
network:
  http_endpoint: http://node:8545
  chain_id: 11155111
scanner:
  interval: 6s
  quote_amount: "5000"
  quote_token: "0x00000000000000000000000000000000000000aa"
  tokens:
    - "0x0000000000000000000000000000000000000001"
  routers:
    - name: uniswap
      address: "0x00000000000000000000000000000000000000f1"
      kind: uniswap_v2
    - name: sushi
      address: "0x00000000000000000000000000000000000000f2"
      kind: sushiswap
  thresholds:
    - token_in: "0x0000000000000000000000000000000000000001"
      min_profit: "100"
execution:
  beneficiary: "0x00000000000000000000000000000000000000bb"
  slippage_bps: 30
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flashscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, int64(11155111), cfg.Network.ChainID)
	assert.Equal(t, 6*time.Second, cfg.Scanner.Interval)
	assert.Equal(t, big.NewInt(5000), cfg.Scanner.QuoteAmountIn())
	assert.Len(t, cfg.Scanner.Routers, 2)
	assert.Equal(t, int64(30), cfg.Execution.SlippageBps)

	// defaults survive a partial file
	assert.Equal(t, DedupeMemory, cfg.Dedupe.Backend)
	assert.Equal(t, time.Minute, cfg.Dedupe.TTL)
	assert.Equal(t, 3*time.Second, cfg.Relay.Timeout)
}

func TestMainnetDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
scanner:
  tokens:
    - "0x6B175474E89094C44Da98b954EedeAC495271d0F"
execution:
  beneficiary: "0x00000000000000000000000000000000000000bb"
`))
	require.NoError(t, err)

	assert.Equal(t, uniswap.WETHAddress.Hex(), cfg.Scanner.QuoteToken)
	require.Len(t, cfg.Scanner.Routers, 2)
	assert.Equal(t, uniswap.MainnetRouter.Hex(), cfg.Scanner.Routers[0].Address)
	assert.Equal(t, RouterKindUniswapV2, cfg.Scanner.Routers[0].Kind)
	assert.Equal(t, sushiswap.MainnetRouter.Hex(), cfg.Scanner.Routers[1].Address)
	assert.Equal(t, RouterKindSushiSwap, cfg.Scanner.Routers[1].Kind)

	// a configured router list replaces the defaults
	cfg, err = LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "0x00000000000000000000000000000000000000f1", cfg.Scanner.Routers[0].Address)
}

func TestParseThresholdsDefaultsToQuoteToken(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	th, err := cfg.Scanner.ParseThresholds()
	require.NoError(t, err)

	key := [2]common.Address{
		common.HexToAddress("0x0000000000000000000000000000000000000001"),
		common.HexToAddress("0x00000000000000000000000000000000000000aa"),
	}
	require.Contains(t, th, key)
	assert.Equal(t, big.NewInt(100), th[key])
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvRelayURL, "http://relay.local")
	t.Setenv(EnvSimulateOnly, "true")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "http://relay.local", cfg.Relay.URL)
	assert.True(t, cfg.Relay.SimulateOnly)
}

func TestValidateConfigCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ValidateConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scanner config error")
	assert.Contains(t, err.Error(), "execution config error")
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown router kind", func(c *Config) { c.Scanner.Routers[0].Kind = "curve" }, "unknown kind"},
		{"bad slippage", func(c *Config) { c.Execution.SlippageBps = 10000 }, "slippage_bps"},
		{"negative threshold", func(c *Config) { c.Scanner.Thresholds[0].MinProfit = "-1" }, "min_profit"},
		{"redis without addr", func(c *Config) { c.Dedupe.Backend = DedupeRedis }, "redis.addr"},
		{"unknown backend", func(c *Config) { c.Dedupe.Backend = "etcd" }, "unknown backend"},
		{"zero relay rate", func(c *Config) { c.Relay.RateLimit.RequestsPerSecond = 0 }, "relay rate limit"},
		{"zero network timeout", func(c *Config) { c.Network.Timeout = 0 }, "network.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, sampleConfig))
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.ValidateConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadSecureConfig(t *testing.T) {
	t.Setenv(EnvPrivateKey, "")
	t.Setenv(EnvFlashbotsKey, "")
	_, err := LoadSecureConfig()
	assert.Error(t, err)

	t.Setenv(EnvPrivateKey, "aa")
	t.Setenv(EnvFlashbotsKey, "bb")
	sec, err := LoadSecureConfig()
	require.NoError(t, err)
	assert.Equal(t, "aa", sec.PrivateKey)
	assert.Equal(t, "bb", sec.FlashbotsKey)
}
