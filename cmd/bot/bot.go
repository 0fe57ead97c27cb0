package bot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/flashscan/cache"
	"github.com/michaelpento.lv/flashscan/config"
	"github.com/michaelpento.lv/flashscan/dedupe"
	"github.com/michaelpento.lv/flashscan/dex"
	"github.com/michaelpento.lv/flashscan/dex/sushiswap"
	"github.com/michaelpento.lv/flashscan/dex/uniswap"
	"github.com/michaelpento.lv/flashscan/flashbots"
	"github.com/michaelpento.lv/flashscan/gas"
	"github.com/michaelpento.lv/flashscan/store"
	"github.com/michaelpento.lv/flashscan/strategies/arbitrage"
	"github.com/michaelpento.lv/flashscan/types"
	"github.com/michaelpento.lv/flashscan/utils"
	"github.com/michaelpento.lv/flashscan/utils/metrics"
)

// Bot runs detection cycles against the configured routers and submits
// profitable bundles
type Bot struct {
	cfg      *config.Config
	client   *ethclient.Client
	orch     *arbitrage.Orchestrator
	memStore *dedupe.MemoryStore
	redis    *dedupe.RedisStore
	history  *store.SQLiteStore
	registry *prometheus.Registry
	tokens   []common.Address
	logger   *zap.Logger

	// held while a cycle runs so cycles never overlap
	running sync.Mutex
	wg      sync.WaitGroup
}

// Dial connects to the configured HTTP endpoint
func Dial(ctx context.Context, cfg *config.Config) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Network.Timeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, cfg.Network.HTTPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Network.HTTPEndpoint, err)
	}
	return client, nil
}

// NewRouters builds one router per configured entry, in configuration order
func NewRouters(cfg *config.Config, caller ethereum.ContractCaller) ([]dex.Router, error) {
	routers := make([]dex.Router, 0, len(cfg.Scanner.Routers))
	for _, rc := range cfg.Scanner.Routers {
		var (
			r   dex.Router
			err error
		)
		addr := common.HexToAddress(rc.Address)
		switch rc.Kind {
		case config.RouterKindSushiSwap:
			r, err = sushiswap.NewRouter(rc.Name, addr, caller)
		default:
			r, err = uniswap.NewRouterV2(rc.Name, addr, caller)
		}
		if err != nil {
			return nil, fmt.Errorf("router %s: %w", rc.Name, err)
		}
		routers = append(routers, r)
	}
	return routers, nil
}

// Tokens returns the configured scan tokens
func Tokens(cfg *config.Config) []common.Address {
	tokens := make([]common.Address, 0, len(cfg.Scanner.Tokens))
	for _, t := range cfg.Scanner.Tokens {
		tokens = append(tokens, common.HexToAddress(t))
	}
	return tokens
}

// NewDetector wires the quote fetcher and profit evaluator
func NewDetector(cfg *config.Config, caller ethereum.ContractCaller, m *metrics.PipelineMetrics, logger *zap.Logger) (*arbitrage.Detector, *arbitrage.Evaluator, error) {
	raw, err := cfg.Scanner.ParseThresholds()
	if err != nil {
		return nil, nil, err
	}
	thresholds := make(map[types.TokenPair]*big.Int, len(raw))
	for pair, minProfit := range raw {
		thresholds[types.TokenPair{TokenIn: pair[0], TokenOut: pair[1]}] = minProfit
	}
	evaluator := arbitrage.NewEvaluator(thresholds, logger)

	routers, err := NewRouters(cfg, caller)
	if err != nil {
		return nil, nil, err
	}

	rl := cfg.RPCRateLimit
	detector, err := arbitrage.NewDetector(arbitrage.DetectorConfig{
		QuoteToken:          common.HexToAddress(cfg.Scanner.QuoteToken),
		QuoteAmount:         cfg.Scanner.QuoteAmountIn(),
		QuoteTimeout:        cfg.Scanner.QuoteTimeout,
		MaxConcurrentQuotes: cfg.Scanner.MaxConcurrentQuotes,
		Limiter:             rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), rl.BurstSize),
	}, routers, evaluator, m, logger)
	if err != nil {
		return nil, nil, err
	}
	return detector, evaluator, nil
}

// New creates a new bot instance
func New(ctx context.Context, cfg *config.Config, secure *config.SecureConfig, logger *zap.Logger) (*Bot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bot{
		cfg:      cfg,
		registry: metrics.NewRegistry(),
		tokens:   Tokens(cfg),
		logger:   logger,
	}
	if err := b.init(ctx, secure); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bot) init(ctx context.Context, secure *config.SecureConfig) error {
	cfg := b.cfg
	m := metrics.NewPipelineMetrics(cfg.Metrics.Namespace, b.registry)

	txKey, err := crypto.HexToECDSA(trimHex(secure.PrivateKey))
	if err != nil {
		return fmt.Errorf("%w: invalid private key: %v", types.ErrSigningFailed, err)
	}
	authKey, err := crypto.HexToECDSA(trimHex(secure.FlashbotsKey))
	if err != nil {
		return fmt.Errorf("%w: invalid flashbots key: %v", types.ErrSigningFailed, err)
	}

	b.client, err = Dial(ctx, cfg)
	if err != nil {
		return err
	}

	detector, evaluator, err := NewDetector(cfg, b.client, m, b.logger)
	if err != nil {
		return err
	}

	var dedupeStore dedupe.Store
	switch cfg.Dedupe.Backend {
	case config.DedupeRedis:
		rc := cfg.Dedupe.Redis
		b.redis, err = dedupe.NewRedisStore(ctx, dedupe.RedisConfig{
			Addr:       rc.Addr,
			Password:   rc.Password,
			DB:         rc.DB,
			PoolSize:   rc.PoolSize,
			TLSEnabled: rc.TLSEnabled,
			KeyPrefix:  rc.KeyPrefix,
		}, cfg.Dedupe.TTL)
		if err != nil {
			return err
		}
		dedupeStore = b.redis
	default:
		b.memStore, err = dedupe.NewDefaultMemoryStore(cfg.Dedupe.TTL,
			cache.WithCapacity(cfg.Dedupe.Capacity),
			cache.WithShards(cfg.Dedupe.Shards))
		if err != nil {
			return err
		}
		c := b.memStore.Cache()
		metrics.RegisterCacheGauges(cfg.Metrics.Namespace, b.registry, c.Len, c.Rejections)
		dedupeStore = b.memStore
	}

	builder, err := utils.NewBundler(utils.BundlerConfig{
		ChainID:        big.NewInt(cfg.Network.ChainID),
		Beneficiary:    common.HexToAddress(cfg.Execution.Beneficiary),
		SlippageBps:    cfg.Execution.SlippageBps,
		DeadlineWindow: cfg.Execution.DeadlineWindow,
		GasLimit:       cfg.Execution.GasLimit,
	})
	if err != nil {
		return err
	}

	relay, err := flashbots.NewClient(flashbots.Config{
		RelayURL:          cfg.Relay.URL,
		Timeout:           cfg.Relay.Timeout,
		SimulateOnly:      cfg.Relay.SimulateOnly,
		RequestsPerSecond: cfg.Relay.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.Relay.RateLimit.BurstSize,
		WaitTimeout:       cfg.Relay.RateLimit.WaitTimeout,
	}, b.client, authKey, txKey, b.logger.Named("relay"))
	if err != nil {
		return err
	}

	var recorder arbitrage.Recorder
	if cfg.Storage.DSN != "" {
		b.history, err = store.NewSQLiteStore(cfg.Storage.DSN)
		if err != nil {
			return err
		}
		recorder = b.history
	}

	b.orch, err = arbitrage.NewOrchestrator(arbitrage.OrchestratorConfig{
		FeeTimeout:           cfg.Execution.FeeTimeout,
		MaxFeePerGas:         cfg.Execution.FeeCeiling(),
		MaxConcurrentBundles: cfg.Execution.MaxConcurrentBundles,
		GasLimit:             builder.GasLimit(),
	}, arbitrage.OrchestratorDeps{
		Source:    detector,
		Evaluator: evaluator,
		Store:     dedupeStore,
		Fees:      gas.NewEstimator(b.client, b.logger.Named("gas")),
		Builder:   builder,
		Relay:     relay,
		Recorder:  recorder,
		Metrics:   m,
		Logger:    b.logger.Named("orchestrator"),
	})
	if err != nil {
		return err
	}

	b.logger.Info("Bot initialized",
		zap.Int("tokens", len(b.tokens)),
		zap.Int("routers", len(cfg.Scanner.Routers)),
		zap.String("dedupe", cfg.Dedupe.Backend),
		zap.String("signer", relay.SignerAddress().Hex()),
		zap.Bool("simulateOnly", cfg.Relay.SimulateOnly))
	return nil
}

// Run blocks until ctx is cancelled or the head subscription fails. Either
// way every goroutine it started has exited when it returns.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if b.memStore != nil && b.cfg.Dedupe.SweepInterval > 0 {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.memStore.Cache().StartSweeping(ctx, b.cfg.Dedupe.SweepInterval)
		}()
	}

	if b.cfg.Metrics.Enabled {
		b.serveMetrics(ctx)
	}

	var err error
	if b.cfg.Network.WSEndpoint != "" {
		err = b.runOnHeads(ctx)
	} else {
		b.runOnTicker(ctx)
	}

	cancel()
	b.wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		b.logger.Error("Head feed stopped", zap.Error(err))
	}
	return err
}

// RunCycle runs one detection cycle unless one is already in flight
func (b *Bot) RunCycle(ctx context.Context) {
	if !b.running.TryLock() {
		b.logger.Debug("Previous cycle still running, skipping")
		return
	}
	defer b.running.Unlock()

	if _, err := b.orch.RunCycle(ctx, b.tokens); err != nil {
		b.logger.Error("Cycle failed", zap.Error(err))
	}
}

func (b *Bot) trigger(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.RunCycle(ctx)
	}()
}

func (b *Bot) runOnTicker(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.Scanner.Interval)
	defer ticker.Stop()

	b.trigger(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.trigger(ctx)
		}
	}
}

func (b *Bot) runOnHeads(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, b.cfg.Network.Timeout)
	ws, err := ethclient.DialContext(dialCtx, b.cfg.Network.WSEndpoint)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", b.cfg.Network.WSEndpoint, err)
	}
	defer ws.Close()

	heads := make(chan *ethtypes.Header, 16)
	sub, err := ws.SubscribeNewHead(ctx, heads)
	if err != nil {
		return fmt.Errorf("failed to subscribe to new heads: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("head subscription ended: %w", err)
		case head := <-heads:
			b.logger.Debug("New head", zap.Uint64("block", head.Number.Uint64()))
			b.trigger(ctx)
		}
	}
}

func (b *Bot) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(b.registry))
	srv := &http.Server{
		Addr:              b.cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.logger.Info("Serving metrics", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Error("Metrics server error", zap.Error(err))
		}
	}()
	go func() {
		defer b.wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// Close releases every connection the bot holds
func (b *Bot) Close() {
	b.logger.Info("Stopping bot...")
	if b.history != nil {
		_ = b.history.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.client != nil {
		b.client.Close()
	}
}

func trimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
