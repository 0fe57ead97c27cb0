// Package testutils holds helpers shared by package tests
package testutils

import (
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/flashscan/types"
)

// Addr returns an address whose last byte is b
func Addr(b byte) common.Address {
	return common.BytesToAddress([]byte{b})
}

// GenerateKey creates a fresh secp256k1 key
func GenerateKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

// Opportunity builds a valid opportunity selling amountIn of tokenIn for
// tokenOut, with one router per amount
func Opportunity(tokenIn, tokenOut common.Address, amountIn int64, amounts ...int64) *types.Opportunity {
	opp := &types.Opportunity{
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     big.NewInt(amountIn),
		DiscoveredAt: time.Unix(1700000000, 0),
	}
	for i, a := range amounts {
		opp.CandidateRouters = append(opp.CandidateRouters, Addr(byte(0xf1+i)))
		opp.ExpectedAmountsOut = append(opp.ExpectedAmountsOut, big.NewInt(a))
	}
	return opp
}
