package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/michaelpento.lv/flashscan/dex"
	"github.com/michaelpento.lv/flashscan/types"
	"github.com/michaelpento.lv/flashscan/utils/metrics"
)

// DetectorConfig fixes how routers are quoted
type DetectorConfig struct {
	// QuoteToken is the output side of every pair
	QuoteToken  common.Address
	QuoteAmount *big.Int
	// QuoteTimeout bounds each router call
	QuoteTimeout        time.Duration
	MaxConcurrentQuotes int
	// Limiter throttles router calls when set
	Limiter *rate.Limiter
}

// Detector quotes every token against every router and assembles the
// results into opportunities
type Detector struct {
	cfg       DetectorConfig
	routers   []dex.Router
	evaluator *Evaluator
	metrics   *metrics.PipelineMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewDetector creates a new arbitrage detector
func NewDetector(cfg DetectorConfig, routers []dex.Router, evaluator *Evaluator, m *metrics.PipelineMetrics, logger *zap.Logger) (*Detector, error) {
	if len(routers) == 0 {
		return nil, fmt.Errorf("at least one router is required")
	}
	if cfg.QuoteAmount == nil || cfg.QuoteAmount.Sign() <= 0 {
		return nil, fmt.Errorf("quote amount must be positive")
	}
	if cfg.QuoteToken == (common.Address{}) {
		return nil, fmt.Errorf("quote token is required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 2 * time.Second
	}
	if cfg.MaxConcurrentQuotes <= 0 {
		cfg.MaxConcurrentQuotes = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Detector{
		cfg:       cfg,
		routers:   routers,
		evaluator: evaluator,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Routers returns the configured routers in order
func (d *Detector) Routers() []dex.Router {
	return d.routers
}

// Candidates quotes every (token, router) combination concurrently and returns
// one opportunity per token that got at least one quote. Failed or timed out
// quotes are dropped. Candidates are not filtered by profit.
func (d *Detector) Candidates(ctx context.Context, tokens []common.Address) ([]*types.Opportunity, error) {
	for _, token := range tokens {
		if token == (common.Address{}) {
			return nil, fmt.Errorf("%w: empty token address", types.ErrInvalidOpportunity)
		}
		if token == d.cfg.QuoteToken {
			return nil, fmt.Errorf("%w: token %s is the quote token", types.ErrInvalidOpportunity, token.Hex())
		}
	}

	amounts := make([][]*big.Int, len(tokens))
	for i := range amounts {
		amounts[i] = make([]*big.Int, len(d.routers))
	}

	var g errgroup.Group
	g.SetLimit(d.cfg.MaxConcurrentQuotes)
	for ti, token := range tokens {
		ti, token := ti, token
		for ri, router := range d.routers {
			ri, router := ri, router
			g.Go(func() error {
				out, err := d.quote(ctx, router, token)
				d.metrics.QuoteResult(router.Name(), err == nil)
				if err != nil {
					d.logger.Warn("Dropping router quote",
						zap.String("router", router.Name()),
						zap.String("token", token.Hex()),
						zap.Error(err))
					return nil
				}
				amounts[ti][ri] = out
				return nil
			})
		}
	}
	// quote errors are swallowed above
	_ = g.Wait()

	discoveredAt := d.now()
	var opportunities []*types.Opportunity
	for ti, token := range tokens {
		opp := &types.Opportunity{
			TokenIn:      token,
			TokenOut:     d.cfg.QuoteToken,
			AmountIn:     new(big.Int).Set(d.cfg.QuoteAmount),
			DiscoveredAt: discoveredAt,
		}
		for ri, router := range d.routers {
			if amounts[ti][ri] == nil {
				continue
			}
			opp.CandidateRouters = append(opp.CandidateRouters, router.Address())
			opp.ExpectedAmountsOut = append(opp.ExpectedAmountsOut, amounts[ti][ri])
		}
		if len(opp.CandidateRouters) == 0 {
			d.logger.Debug("No quotes for token", zap.String("token", token.Hex()))
			continue
		}
		opportunities = append(opportunities, opp)
	}

	return opportunities, nil
}

// DetectOpportunities returns the candidates that meet their pair threshold
func (d *Detector) DetectOpportunities(ctx context.Context, tokens []common.Address) ([]*types.Opportunity, error) {
	candidates, err := d.Candidates(ctx, tokens)
	if err != nil {
		return nil, err
	}

	var profitable []*types.Opportunity
	for _, opp := range candidates {
		profit, err := d.evaluator.Evaluate(opp)
		if err != nil {
			d.logger.Debug("Opportunity filtered",
				zap.String("pair", opp.Pair().String()),
				zap.String("profit", profit.String()),
				zap.Error(err))
			continue
		}
		profitable = append(profitable, opp)
	}
	return profitable, nil
}

func (d *Detector) quote(ctx context.Context, router dex.Router, token common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.QuoteTimeout)
	defer cancel()

	if d.cfg.Limiter != nil {
		if err := d.cfg.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	amounts, err := router.GetAmountsOut(ctx, d.cfg.QuoteAmount, []common.Address{token, d.cfg.QuoteToken})
	if err != nil {
		return nil, err
	}

	out := dex.FinalAmount(amounts)
	if out == nil || out.Sign() < 0 {
		return nil, errors.New("router returned no output amount")
	}
	return out, nil
}
