// Package utils provides the calldata and bundle helpers shared by the
// arbitrage pipeline
package utils

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/flashscan/gas"
	"github.com/michaelpento.lv/flashscan/types"
)

const bpsDenominator = 10000

// BundlerConfig fixes everything the builder needs besides the opportunity
// and the fee quote
type BundlerConfig struct {
	ChainID        *big.Int
	Beneficiary    common.Address
	SlippageBps    int64
	DeadlineWindow time.Duration
	// GasLimit overrides the arbitrage gas estimate when non-zero
	GasLimit uint64
}

// Bundler turns opportunities into unsigned bundle descriptors. Build never
// touches the network so identical inputs yield identical descriptors.
type Bundler struct {
	cfg     BundlerConfig
	decoder *TransactionDecoder
}

// NewBundler creates a new bundler instance
func NewBundler(cfg BundlerConfig) (*Bundler, error) {
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id is required")
	}
	if cfg.SlippageBps < 0 || cfg.SlippageBps >= bpsDenominator {
		return nil, fmt.Errorf("slippage must be in [0, %d) bps, got %d", bpsDenominator, cfg.SlippageBps)
	}
	if cfg.DeadlineWindow <= 0 {
		return nil, fmt.Errorf("deadline window must be positive")
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = gas.EstimateArbitrageGas(1)
	}

	decoder, err := NewTransactionDecoder()
	if err != nil {
		return nil, err
	}

	return &Bundler{cfg: cfg, decoder: decoder}, nil
}

// Decoder exposes the calldata codec
func (b *Bundler) Decoder() *TransactionDecoder {
	return b.decoder
}

// Build encodes a swap through the router with the highest expected output.
// Ties go to the earlier candidate.
func (b *Bundler) Build(opp *types.Opportunity, fee *types.FeeQuote) (*types.BundleDescriptor, error) {
	if err := opp.Validate(); err != nil {
		return nil, err
	}
	if fee == nil || fee.MaxFeePerGas == nil || fee.MaxPriorityFeePerGas == nil {
		return nil, fmt.Errorf("fee quote is required")
	}

	best := BestRouter(opp)
	bestOut := opp.ExpectedAmountsOut[best]

	params := &SwapParams{
		AmountIn:     new(big.Int).Set(opp.AmountIn),
		AmountOutMin: MinAmountOut(bestOut, b.cfg.SlippageBps),
		Path:         []common.Address{opp.TokenIn, opp.TokenOut},
		To:           b.cfg.Beneficiary,
		Deadline:     big.NewInt(opp.DiscoveredAt.Add(b.cfg.DeadlineWindow).Unix()),
	}

	payload, err := b.decoder.EncodeSwap(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap: %w", err)
	}

	return &types.BundleDescriptor{
		Recipient: opp.CandidateRouters[best],
		Payload:   payload,
		Fee: types.FeeQuote{
			MaxFeePerGas:         new(big.Int).Set(fee.MaxFeePerGas),
			MaxPriorityFeePerGas: new(big.Int).Set(fee.MaxPriorityFeePerGas),
		},
		GasLimit: b.cfg.GasLimit,
		ChainID:  new(big.Int).Set(b.cfg.ChainID),
	}, nil
}

// GasLimit returns the gas limit put on every descriptor
func (b *Bundler) GasLimit() uint64 {
	return b.cfg.GasLimit
}

// BestRouter returns the index of the highest expected output, first wins ties
func BestRouter(opp *types.Opportunity) int {
	best := 0
	for i := 1; i < len(opp.ExpectedAmountsOut); i++ {
		if opp.ExpectedAmountsOut[i].Cmp(opp.ExpectedAmountsOut[best]) > 0 {
			best = i
		}
	}
	return best
}

// MinAmountOut applies slippage in basis points, rounding down
func MinAmountOut(amountOut *big.Int, slippageBps int64) *big.Int {
	out := new(big.Int).Mul(amountOut, big.NewInt(bpsDenominator-slippageBps))
	return out.Quo(out, big.NewInt(bpsDenominator))
}
