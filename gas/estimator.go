package gas

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	fstypes "github.com/michaelpento.lv/flashscan/types"
)

// FeeOracle is the subset of ethclient.Client the estimator reads from
type FeeOracle interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// Estimator provides EIP-1559 fee quotes for bundle transactions
type Estimator struct {
	oracle FeeOracle
	logger *zap.Logger
}

// NewEstimator creates a new gas estimator
func NewEstimator(oracle FeeOracle, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{
		oracle: oracle,
		logger: logger,
	}
}

// CurrentFeeQuote reads the latest base fee and suggested tip. Every call goes
// to the node; quotes are never reused across submissions.
//
// maxFeePerGas = 2*baseFee + tip, which survives six consecutive full blocks.
func (e *Estimator) CurrentFeeQuote(ctx context.Context) (*fstypes.FeeQuote, error) {
	header, err := e.oracle.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		// pre-London chains
		baseFee = new(big.Int)
	}

	tip, err := e.oracle.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get priority fee: %w", err)
	}

	maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)

	e.logger.Debug("Fee quote",
		zap.String("baseFee", baseFee.String()),
		zap.String("tip", tip.String()),
		zap.String("maxFee", maxFee.String()))

	return &fstypes.FeeQuote{
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: new(big.Int).Set(tip),
	}, nil
}

// CostOf multiplies the quote's max fee by gasLimit
func CostOf(quote *fstypes.FeeQuote, gasLimit uint64) *big.Int {
	if quote == nil || quote.MaxFeePerGas == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(quote.MaxFeePerGas, new(big.Int).SetUint64(gasLimit))
}

// EstimateArbitrageGas estimates gas for a typical arbitrage transaction
func EstimateArbitrageGas(numHops int) uint64 {
	// Base cost for transaction
	baseCost := uint64(21000)

	// Cost per DEX hop (approximate)
	// This includes:
	// - Storage reads (~2000)
	// - Token transfers (~50000)
	// - Swap execution (~100000)
	costPerHop := uint64(152000)

	return baseCost + (costPerHop * uint64(numHops))
}
