package dex

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidPath is returned for swap paths shorter than two tokens
var ErrInvalidPath = errors.New("path must contain at least 2 tokens")

// Router is a venue that can quote swaps along a token path
type Router interface {
	// Name returns the configured router name
	Name() string

	// Address returns the router contract address
	Address() common.Address

	// GetAmountsOut returns the amount at every hop of path for amountIn,
	// the last element being the final output
	GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
}

// FinalAmount returns the last hop of a getAmountsOut result
func FinalAmount(amounts []*big.Int) *big.Int {
	if len(amounts) == 0 {
		return nil
	}
	return amounts[len(amounts)-1]
}
