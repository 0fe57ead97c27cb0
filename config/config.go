package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/michaelpento.lv/flashscan/dex/sushiswap"
	"github.com/michaelpento.lv/flashscan/dex/uniswap"
)

// Router kinds understood by the scanner
const (
	RouterKindUniswapV2 = "uniswap_v2"
	RouterKindSushiSwap = "sushiswap"
)

// Dedupe backends
const (
	DedupeMemory = "memory"
	DedupeRedis  = "redis"
)

type Config struct {
	Network      NetworkConfig   `yaml:"network"`
	Scanner      ScannerConfig   `yaml:"scanner"`
	Execution    ExecutionConfig `yaml:"execution"`
	Relay        RelayConfig     `yaml:"relay"`
	Dedupe       DedupeConfig    `yaml:"dedupe"`
	Storage      StorageConfig   `yaml:"storage"`
	Metrics      MetricsConfig   `yaml:"metrics"`
	RPCRateLimit RateLimitConfig `yaml:"rpc_rate_limit"`
	Log          LogConfig       `yaml:"log"`

	// Internal components
	Logger *zap.Logger `yaml:"-"`
}

type NetworkConfig struct {
	HTTPEndpoint string        `yaml:"http_endpoint"`
	WSEndpoint   string        `yaml:"ws_endpoint"`
	ChainID      int64         `yaml:"chain_id"`
	Timeout      time.Duration `yaml:"timeout"`
}

type RouterConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Kind    string `yaml:"kind"`
}

// ThresholdConfig sets the minimum profit for a pair. An empty TokenOut means
// the scanner's quote token.
type ThresholdConfig struct {
	TokenIn   string `yaml:"token_in"`
	TokenOut  string `yaml:"token_out"`
	MinProfit string `yaml:"min_profit"`
}

type ScannerConfig struct {
	Interval            time.Duration     `yaml:"interval"`
	QuoteAmount         string            `yaml:"quote_amount"`
	QuoteToken          string            `yaml:"quote_token"`
	Tokens              []string          `yaml:"tokens"`
	Routers             []RouterConfig    `yaml:"routers"`
	Thresholds          []ThresholdConfig `yaml:"thresholds"`
	QuoteTimeout        time.Duration     `yaml:"quote_timeout"`
	MaxConcurrentQuotes int               `yaml:"max_concurrent_quotes"`
}

type ExecutionConfig struct {
	Beneficiary          string        `yaml:"beneficiary"`
	SlippageBps          int64         `yaml:"slippage_bps"`
	DeadlineWindow       time.Duration `yaml:"deadline_window"`
	GasLimit             uint64        `yaml:"gas_limit"`
	MaxFeePerGas         string        `yaml:"max_fee_per_gas"`
	FeeTimeout           time.Duration `yaml:"fee_timeout"`
	MaxConcurrentBundles int           `yaml:"max_concurrent_bundles"`
}

type RelayConfig struct {
	URL          string          `yaml:"url"`
	Timeout      time.Duration   `yaml:"timeout"`
	SimulateOnly bool            `yaml:"simulate_only"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	TLSEnabled bool   `yaml:"tls_enabled"`
	KeyPrefix  string `yaml:"key_prefix"`
}

type DedupeConfig struct {
	Backend       string        `yaml:"backend"`
	TTL           time.Duration `yaml:"ttl"`
	Capacity      int           `yaml:"capacity"`
	Shards        int           `yaml:"shards"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Redis         RedisConfig   `yaml:"redis"`
}

type StorageConfig struct {
	DSN string `yaml:"dsn"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	Namespace  string `yaml:"namespace"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
	WaitTimeout       time.Duration `yaml:"wait_timeout"`
}

type LogConfig struct {
	Debug       bool     `yaml:"debug"`
	OutputPaths []string `yaml:"output_paths"`
}

type SecureConfig struct {
	PrivateKey   string
	FlashbotsKey string
}

func (c *Config) ValidateConfig() error {
	var errors []string

	// Network
	if c.Network.HTTPEndpoint == "" {
		errors = append(errors, "network.http_endpoint must be specified")
	}
	if c.Network.ChainID <= 0 {
		errors = append(errors, "network.chain_id must be positive")
	}
	if c.Network.Timeout <= 0 {
		errors = append(errors, "network.timeout must be positive")
	}

	// Scanner
	if err := c.Scanner.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("scanner config error: %v", err))
	}

	// Execution
	if err := c.Execution.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("execution config error: %v", err))
	}

	// Relay
	if c.Relay.URL == "" {
		errors = append(errors, "relay.url must be specified")
	}
	if c.Relay.Timeout <= 0 {
		errors = append(errors, "relay.timeout must be positive")
	}
	if err := c.Relay.RateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("relay rate limit error: %v", err))
	}
	if err := c.RPCRateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("RPC rate limit error: %v", err))
	}

	// Dedupe
	if err := c.Dedupe.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("dedupe config error: %v", err))
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		errors = append(errors, "metrics.listen_addr must be specified when metrics are enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *ScannerConfig) Validate() error {
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if amount, ok := parseAmount(s.QuoteAmount); !ok || amount.Sign() <= 0 {
		return fmt.Errorf("quote_amount must be a positive integer, got %q", s.QuoteAmount)
	}
	if !common.IsHexAddress(s.QuoteToken) {
		return fmt.Errorf("quote_token %q is not an address", s.QuoteToken)
	}
	if len(s.Tokens) == 0 {
		return fmt.Errorf("at least one token must be configured")
	}
	for _, token := range s.Tokens {
		if !common.IsHexAddress(token) {
			return fmt.Errorf("token %q is not an address", token)
		}
	}
	if len(s.Routers) == 0 {
		return fmt.Errorf("at least one router must be configured")
	}
	for _, r := range s.Routers {
		if !common.IsHexAddress(r.Address) {
			return fmt.Errorf("router %q address %q is invalid", r.Name, r.Address)
		}
		switch r.Kind {
		case RouterKindUniswapV2, RouterKindSushiSwap, "":
		default:
			return fmt.Errorf("router %q has unknown kind %q", r.Name, r.Kind)
		}
	}
	if _, err := s.ParseThresholds(); err != nil {
		return err
	}
	if s.QuoteTimeout <= 0 {
		return fmt.Errorf("quote_timeout must be positive")
	}
	if s.MaxConcurrentQuotes <= 0 {
		return fmt.Errorf("max_concurrent_quotes must be positive")
	}
	return nil
}

// ParseThresholds converts the configured thresholds into a lookup table keyed
// by (token in, token out)
func (s *ScannerConfig) ParseThresholds() (map[[2]common.Address]*big.Int, error) {
	out := make(map[[2]common.Address]*big.Int, len(s.Thresholds))
	for _, th := range s.Thresholds {
		if !common.IsHexAddress(th.TokenIn) {
			return nil, fmt.Errorf("threshold token_in %q is not an address", th.TokenIn)
		}
		tokenOut := th.TokenOut
		if tokenOut == "" {
			tokenOut = s.QuoteToken
		}
		if !common.IsHexAddress(tokenOut) {
			return nil, fmt.Errorf("threshold token_out %q is not an address", tokenOut)
		}
		minProfit, ok := parseAmount(th.MinProfit)
		if !ok || minProfit.Sign() < 0 {
			return nil, fmt.Errorf("threshold min_profit %q must be a non-negative integer", th.MinProfit)
		}
		out[[2]common.Address{common.HexToAddress(th.TokenIn), common.HexToAddress(tokenOut)}] = minProfit
	}
	return out, nil
}

// QuoteAmountIn returns the input amount quoted on every router
func (s *ScannerConfig) QuoteAmountIn() *big.Int {
	amount, _ := parseAmount(s.QuoteAmount)
	return amount
}

func (e *ExecutionConfig) Validate() error {
	if !common.IsHexAddress(e.Beneficiary) {
		return fmt.Errorf("beneficiary %q is not an address", e.Beneficiary)
	}
	if e.SlippageBps < 0 || e.SlippageBps >= 10000 {
		return fmt.Errorf("slippage_bps must be in [0, 10000)")
	}
	if e.DeadlineWindow <= 0 {
		return fmt.Errorf("deadline_window must be positive")
	}
	if e.MaxFeePerGas != "" {
		if fee, ok := parseAmount(e.MaxFeePerGas); !ok || fee.Sign() <= 0 {
			return fmt.Errorf("max_fee_per_gas %q must be a positive integer", e.MaxFeePerGas)
		}
	}
	if e.FeeTimeout <= 0 {
		return fmt.Errorf("fee_timeout must be positive")
	}
	if e.MaxConcurrentBundles <= 0 {
		return fmt.Errorf("max_concurrent_bundles must be positive")
	}
	return nil
}

// FeeCeiling returns the configured max fee per gas, or nil when unlimited
func (e *ExecutionConfig) FeeCeiling() *big.Int {
	if e.MaxFeePerGas == "" {
		return nil
	}
	fee, _ := parseAmount(e.MaxFeePerGas)
	return fee
}

func (d *DedupeConfig) Validate() error {
	if d.TTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	switch d.Backend {
	case DedupeMemory:
		if d.Shards <= 0 {
			return fmt.Errorf("shards must be positive")
		}
		if d.Capacity < d.Shards {
			return fmt.Errorf("capacity must be at least the shard count")
		}
	case DedupeRedis:
		if d.Redis.Addr == "" {
			return fmt.Errorf("redis.addr must be specified for the redis backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", d.Backend)
	}
	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	if r.WaitTimeout <= 0 {
		return fmt.Errorf("wait timeout must be positive")
	}

	return nil
}

// DefaultConfigPath returns ~/.flashscan.yaml
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".flashscan.yaml"), nil
}

// LoadConfig decodes cfgFile over DefaultConfig, applies environment overrides
// and validates the result
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		path, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		cfgFile = path
	}

	raw, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	_ = LoadEnv()
	applyEnvOverrides(config)

	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

func LoadSecureConfig() (*SecureConfig, error) {
	privateKey, err := GetRequiredEnv(EnvPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("private key not found: %w", err)
	}

	flashbotsKey, err := GetRequiredEnv(EnvFlashbotsKey)
	if err != nil {
		return nil, fmt.Errorf("flashbots key not found: %w", err)
	}

	return &SecureConfig{
		PrivateKey:   privateKey,
		FlashbotsKey: flashbotsKey,
	}, nil
}

func DefaultConfig() *Config {
	return &Config{
		Logger: zap.NewNop(),
		Network: NetworkConfig{
			HTTPEndpoint: "http://localhost:8545",
			ChainID:      1,
			Timeout:      5 * time.Second,
		},
		Scanner: ScannerConfig{
			Interval:            12 * time.Second,
			QuoteAmount:         "1000000000000000000", // 1 token with 18 decimals
			QuoteToken:          uniswap.WETHAddress.Hex(),
			QuoteTimeout:        2 * time.Second,
			MaxConcurrentQuotes: 16,
			Routers: []RouterConfig{
				{Name: "uniswap", Address: uniswap.MainnetRouter.Hex(), Kind: RouterKindUniswapV2},
				{Name: "sushiswap", Address: sushiswap.MainnetRouter.Hex(), Kind: RouterKindSushiSwap},
			},
		},
		Execution: ExecutionConfig{
			SlippageBps:          50,
			DeadlineWindow:       2 * time.Minute,
			MaxFeePerGas:         "500000000000", // 500 Gwei
			FeeTimeout:           2 * time.Second,
			MaxConcurrentBundles: 4,
		},
		Relay: RelayConfig{
			URL:     "https://relay.flashbots.net",
			Timeout: 3 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 10,
				BurstSize:         10,
				WaitTimeout:       time.Second,
			},
		},
		Dedupe: DedupeConfig{
			Backend:       DedupeMemory,
			TTL:           time.Minute,
			Capacity:      1 << 16,
			Shards:        16,
			SweepInterval: 30 * time.Second,
		},
		Storage: StorageConfig{
			DSN: "flashscan.db",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9100",
			Namespace:  "flashscan",
		},
		RPCRateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			BurstSize:         50,
			WaitTimeout:       time.Second,
		},
		Log: LogConfig{
			OutputPaths: []string{"stdout"},
		},
	}
}

func parseAmount(s string) (*big.Int, bool) {
	return new(big.Int).SetString(strings.TrimSpace(s), 10)
}
