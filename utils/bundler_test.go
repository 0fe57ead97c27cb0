package utils

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/flashscan/gas"
	"github.com/michaelpento.lv/flashscan/types"
	"github.com/michaelpento.lv/flashscan/utils/testutils"
)

var (
	tokenA      = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenQ      = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	router1     = testutils.Addr(0xf1)
	router2     = testutils.Addr(0xf2)
	beneficiary = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func testBundler(t *testing.T) *Bundler {
	b, err := NewBundler(BundlerConfig{
		ChainID:        big.NewInt(1),
		Beneficiary:    beneficiary,
		SlippageBps:    100,
		DeadlineWindow: time.Minute,
	})
	require.NoError(t, err)
	return b
}

func testOpportunity(amounts ...int64) *types.Opportunity {
	return testutils.Opportunity(tokenA, tokenQ, 100, amounts...)
}

func testFee() *types.FeeQuote {
	return &types.FeeQuote{MaxFeePerGas: big.NewInt(50e9), MaxPriorityFeePerGas: big.NewInt(2e9)}
}

func TestBuildPicksHighestOutput(t *testing.T) {
	b := testBundler(t)

	desc, err := b.Build(testOpportunity(150, 160), testFee())
	require.NoError(t, err)
	assert.Equal(t, router2, desc.Recipient)
	assert.Equal(t, gas.EstimateArbitrageGas(1), desc.GasLimit)
	assert.Equal(t, big.NewInt(1), desc.ChainID)
	assert.Equal(t, big.NewInt(50e9), desc.Fee.MaxFeePerGas)

	params, err := b.Decoder().DecodeSwap(desc.Payload)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), params.AmountIn)
	assert.Equal(t, big.NewInt(158), params.AmountOutMin) // 160 * 9900 / 10000
	assert.Equal(t, []common.Address{tokenA, tokenQ}, params.Path)
	assert.Equal(t, beneficiary, params.To)
	assert.Equal(t, big.NewInt(1700000060), params.Deadline)
}

func TestBuildTieGoesToFirstCandidate(t *testing.T) {
	desc, err := testBundler(t).Build(testOpportunity(150, 150), testFee())
	require.NoError(t, err)
	assert.Equal(t, router1, desc.Recipient)
}

func TestBuildIsDeterministic(t *testing.T) {
	b := testBundler(t)
	first, err := b.Build(testOpportunity(150, 140), testFee())
	require.NoError(t, err)
	second, err := b.Build(testOpportunity(150, 140), testFee())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildRejectsInvalidInput(t *testing.T) {
	b := testBundler(t)

	opp := testOpportunity(150)
	opp.AmountIn = big.NewInt(0)
	_, err := b.Build(opp, testFee())
	assert.ErrorIs(t, err, types.ErrInvalidOpportunity)

	_, err = b.Build(testOpportunity(150), nil)
	assert.Error(t, err)
}

func TestNewBundlerValidation(t *testing.T) {
	_, err := NewBundler(BundlerConfig{DeadlineWindow: time.Minute})
	assert.Error(t, err)

	_, err = NewBundler(BundlerConfig{ChainID: big.NewInt(1), SlippageBps: 10000, DeadlineWindow: time.Minute})
	assert.Error(t, err)

	b, err := NewBundler(BundlerConfig{ChainID: big.NewInt(1), DeadlineWindow: time.Minute, GasLimit: 400000})
	require.NoError(t, err)
	assert.Equal(t, uint64(400000), b.GasLimit())
}

func TestMinAmountOut(t *testing.T) {
	assert.Equal(t, big.NewInt(995), MinAmountOut(big.NewInt(1000), 50))
	assert.Equal(t, big.NewInt(1000), MinAmountOut(big.NewInt(1000), 0))
}
