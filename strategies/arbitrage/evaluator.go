package arbitrage

import (
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashscan/types"
)

// Evaluator applies the per-pair profit thresholds. Pairs without a threshold
// are rejected.
type Evaluator struct {
	thresholds map[types.TokenPair]*big.Int
	logger     *zap.Logger
}

// NewEvaluator creates an evaluator over a copy of thresholds
func NewEvaluator(thresholds map[types.TokenPair]*big.Int, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	th := make(map[types.TokenPair]*big.Int, len(thresholds))
	for pair, minProfit := range thresholds {
		th[pair] = new(big.Int).Set(minProfit)
	}
	return &Evaluator{thresholds: th, logger: logger}
}

// Threshold returns the minimum profit configured for pair
func (e *Evaluator) Threshold(pair types.TokenPair) (*big.Int, bool) {
	minProfit, ok := e.thresholds[pair]
	return minProfit, ok
}

// Evaluate returns the opportunity's profit when it meets its pair threshold,
// otherwise an error wrapping ErrBelowThreshold
func (e *Evaluator) Evaluate(opp *types.Opportunity) (*big.Int, error) {
	profit := opp.Profit()

	minProfit, ok := e.Threshold(opp.Pair())
	if !ok {
		return profit, fmt.Errorf("%w: no threshold for %s", types.ErrBelowThreshold, opp.Pair())
	}
	if profit.Cmp(minProfit) < 0 {
		return profit, fmt.Errorf("%w: profit %s < %s", types.ErrBelowThreshold, profit, minProfit)
	}
	return profit, nil
}
