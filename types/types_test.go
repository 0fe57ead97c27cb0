package types

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenB  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	router1 = common.HexToAddress("0x0000000000000000000000000000000000000101")
	router2 = common.HexToAddress("0x0000000000000000000000000000000000000202")
)

func newOpportunity() *Opportunity {
	return &Opportunity{
		TokenIn:            tokenA,
		TokenOut:           tokenB,
		AmountIn:           big.NewInt(100),
		CandidateRouters:   []common.Address{router1, router2},
		ExpectedAmountsOut: []*big.Int{big.NewInt(150), big.NewInt(120)},
		DiscoveredAt:       time.Unix(1700000000, 0),
	}
}

func TestOpportunityIDDeterministic(t *testing.T) {
	a := newOpportunity()
	b := newOpportunity()
	b.DiscoveredAt = a.DiscoveredAt.Add(time.Hour)

	assert.Equal(t, a.ID(), b.ID(), "discovery time must not affect the fingerprint")
}

func TestOpportunityIDChangesWithEachField(t *testing.T) {
	base := newOpportunity().ID()

	mutations := map[string]func(o *Opportunity){
		"token in":  func(o *Opportunity) { o.TokenIn = router1 },
		"token out": func(o *Opportunity) { o.TokenOut = router2 },
		"amount in": func(o *Opportunity) { o.AmountIn = big.NewInt(101) },
		"routers":   func(o *Opportunity) { o.CandidateRouters = []common.Address{router2, router1} },
		"amounts":   func(o *Opportunity) { o.ExpectedAmountsOut = []*big.Int{big.NewInt(150), big.NewInt(121)} },
		"router count": func(o *Opportunity) {
			o.CandidateRouters = o.CandidateRouters[:1]
			o.ExpectedAmountsOut = o.ExpectedAmountsOut[:1]
		},
	}

	seen := map[common.Hash]string{base: "base"}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			opp := newOpportunity()
			mutate(opp)
			id := opp.ID()
			prev, dup := seen[id]
			assert.False(t, dup, "collides with %s", prev)
			seen[id] = name
		})
	}
}

func TestOpportunityIDAmountEncoding(t *testing.T) {
	wide := new(big.Int).Lsh(big.NewInt(1), 256)
	wide.Add(wide, big.NewInt(7))

	amounts := map[string]*big.Int{
		"nil":         nil,
		"zero":        big.NewInt(0),
		"positive":    big.NewInt(5),
		"negative":    big.NewInt(-5),
		"over 256bit": wide,
		"low bits":    big.NewInt(7),
	}

	seen := map[common.Hash]string{}
	for name, amount := range amounts {
		opp := newOpportunity()
		opp.AmountIn = amount
		id := opp.ID()
		prev, dup := seen[id]
		assert.False(t, dup, "%s collides with %s", name, prev)
		seen[id] = name
	}

	// a wide amount must not read as its neighbour's bytes
	left := newOpportunity()
	left.ExpectedAmountsOut = []*big.Int{wide, big.NewInt(1)}
	right := newOpportunity()
	right.ExpectedAmountsOut = []*big.Int{new(big.Int).Lsh(wide, 8), big.NewInt(0)}
	assert.NotEqual(t, left.ID(), right.ID())
}

func TestOpportunityProfit(t *testing.T) {
	opp := newOpportunity()
	assert.Equal(t, big.NewInt(170), opp.Profit())

	opp.ExpectedAmountsOut = []*big.Int{big.NewInt(40), big.NewInt(10)}
	assert.Equal(t, big.NewInt(-50), opp.Profit())
}

func TestOpportunityValidate(t *testing.T) {
	require.NoError(t, newOpportunity().Validate())

	tests := []struct {
		name   string
		mutate func(o *Opportunity)
	}{
		{"zero amount", func(o *Opportunity) { o.AmountIn = big.NewInt(0) }},
		{"nil amount", func(o *Opportunity) { o.AmountIn = nil }},
		{"empty token in", func(o *Opportunity) { o.TokenIn = common.Address{} }},
		{"empty token out", func(o *Opportunity) { o.TokenOut = common.Address{} }},
		{"no routers", func(o *Opportunity) {
			o.CandidateRouters = nil
			o.ExpectedAmountsOut = nil
		}},
		{"misaligned", func(o *Opportunity) { o.ExpectedAmountsOut = o.ExpectedAmountsOut[:1] }},
		{"empty router", func(o *Opportunity) { o.CandidateRouters[1] = common.Address{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp := newOpportunity()
			tt.mutate(opp)
			assert.ErrorIs(t, opp.Validate(), ErrInvalidOpportunity)
		})
	}
}

func TestNewSubmissionRecord(t *testing.T) {
	opp := newOpportunity()
	now := time.Now()
	rec := NewSubmissionRecord(opp, opp.Profit(), now)

	assert.Equal(t, opp.ID().Hex(), rec.ID)
	assert.Equal(t, RecordExecuting, rec.State)
	assert.Equal(t, "100", rec.AmountIn)
	assert.Equal(t, "170", rec.Profit)
	assert.Equal(t, now, rec.ReservedAt)
}
