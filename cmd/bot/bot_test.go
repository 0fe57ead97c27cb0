package bot

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/flashscan/config"
	"github.com/michaelpento.lv/flashscan/dedupe"
	"github.com/michaelpento.lv/flashscan/dex/sushiswap"
	"github.com/michaelpento.lv/flashscan/dex/uniswap"
	"github.com/michaelpento.lv/flashscan/types"
)

const dai = "0x6B175474E89094C44Da98b954EedeAC495271d0F"

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Scanner.Tokens = []string{dai}
	cfg.Scanner.Routers = []config.RouterConfig{
		{Name: "uni", Address: uniswap.MainnetRouter.Hex(), Kind: config.RouterKindUniswapV2},
		{Name: "sushi", Address: sushiswap.MainnetRouter.Hex(), Kind: config.RouterKindSushiSwap},
	}
	cfg.Scanner.Thresholds = []config.ThresholdConfig{
		{TokenIn: dai, MinProfit: "1000"},
	}
	return cfg
}

func TestNewRoutersKeepsConfigOrder(t *testing.T) {
	routers, err := NewRouters(testConfig(), nil)
	require.NoError(t, err)
	require.Len(t, routers, 2)

	assert.Equal(t, "uni", routers[0].Name())
	assert.Equal(t, uniswap.MainnetRouter, routers[0].Address())
	assert.Equal(t, "sushi", routers[1].Name())
	assert.Equal(t, sushiswap.MainnetRouter, routers[1].Address())
}

func TestNewDetectorThresholds(t *testing.T) {
	cfg := testConfig()
	detector, evaluator, err := NewDetector(cfg, nil, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Len(t, detector.Routers(), 2)

	pair := types.TokenPair{
		TokenIn:  common.HexToAddress(dai),
		TokenOut: common.HexToAddress(cfg.Scanner.QuoteToken),
	}
	minProfit, ok := evaluator.Threshold(pair)
	require.True(t, ok)
	assert.Equal(t, big.NewInt(1000), minProfit)

	_, ok = evaluator.Threshold(types.TokenPair{TokenIn: pair.TokenOut, TokenOut: pair.TokenIn})
	assert.False(t, ok)
}

func TestTokensAndTrimHex(t *testing.T) {
	assert.Equal(t, []common.Address{common.HexToAddress(dai)}, Tokens(testConfig()))

	assert.Equal(t, "abcd", trimHex("0xabcd"))
	assert.Equal(t, "abcd", trimHex("0Xabcd"))
	assert.Equal(t, "abcd", trimHex("abcd"))
	assert.Equal(t, "", trimHex("0x"))
}

func TestRunReturnsWhenHeadFeedFails(t *testing.T) {
	cfg := testConfig()
	cfg.Network.WSEndpoint = "ws://127.0.0.1:1"
	cfg.Network.Timeout = time.Second
	cfg.Dedupe.SweepInterval = time.Second

	memStore, err := dedupe.NewDefaultMemoryStore(time.Minute)
	require.NoError(t, err)
	b := &Bot{cfg: cfg, memStore: memStore, logger: zaptest.NewLogger(t)}

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err, "a dead head feed is reported, not swallowed")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the head feed failed")
	}
}
